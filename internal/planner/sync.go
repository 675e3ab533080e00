package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"weekly-planner/internal/model"
	"weekly-planner/internal/week"
)

// SyncWeek loads the week containing date from the store and merges it into
// memory. Tasks still waiting for their insert to confirm are kept. A failed
// resolve or fetch leaves task state untouched. Overlapping calls for the
// same week are not serialized here.
func (p *Planner) SyncWeek(ctx context.Context, date time.Time) error {
	display := week.DisplayID(date)

	p.mu.Lock()
	p.isSyncing = true
	p.activeSyncs++
	since := p.confirmSeq
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.isSyncing = false
		p.activeSyncs--
		if p.activeSyncs == 0 {
			clear(p.confirmed)
		}
		if display == p.weekDisplayID {
			p.hasFetched = true
		}
		p.mu.Unlock()
	}()

	row, err := p.resolver.ResolveOrCreate(ctx, date)
	if err != nil {
		p.l.Warnf(ctx, "planner: sync %s: %v", display, err)
		return fmt.Errorf("resolve week %s: %w", display, err)
	}
	// Resolver rows are cached and may predate later metadata writes.
	if p.weeks != nil {
		if fresh, err := p.weeks.GetWeek(ctx, row.ID); err == nil {
			row = fresh
		} else {
			p.l.Debugf(ctx, "planner: reload week %s: %v", row.ID, err)
		}
	}

	scheduled, brainDump, err := p.tasks.FetchTasksForWeek(ctx, row.ID)
	if err != nil {
		p.l.Errorf(ctx, "planner: fetch tasks for %s: %v", display, err)
		return fmt.Errorf("fetch tasks for %s: %w", display, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.scheduled = append(scheduled, p.unfetched(p.scheduled, scheduled, since)...)
	p.brainDump = append(brainDump, p.unfetched(p.brainDump, brainDump, since)...)
	p.rememberWeek(display, row.ID)
	p.mergeMeta(display, row)
	p.mergeReview(display, row)

	p.l.Debugf(ctx, "planner: synced %s (%d scheduled, %d in brain dump)", display, len(p.scheduled), len(p.brainDump))
	return nil
}

// unfetched returns the tasks of current the fetch cannot know about: creates
// still in flight, and creates confirmed after the sync started whose row the
// fetch missed.
func (p *Planner) unfetched(current, fetched []model.Task, since uint64) []model.Task {
	seen := make(map[model.TaskID]bool, len(fetched))
	for _, t := range fetched {
		seen[t.ID] = true
	}
	var out []model.Task
	for _, t := range current {
		if seen[t.ID] {
			continue
		}
		if t.ID.IsLocal() || p.confirmed[t.ID] > since {
			out = append(out, t)
		}
	}
	return out
}

// mergeMeta copies remote fields that are set; absent remote values never
// overwrite what memory already knows.
func (p *Planner) mergeMeta(display string, row model.WeekRow) {
	meta := p.ensureMeta(display)
	meta.DurableID = row.ID
	if row.WeeklyChallenge != nil {
		meta.WeeklyChallenge = *row.WeeklyChallenge
	}
	if row.ChallengeProgress != nil {
		meta.ChallengeProgress = append([]string{}, row.ChallengeProgress...)
	}
	if row.RestDay != nil {
		meta.RestDay = *row.RestDay
	}
	if meta.CreatedAt.IsZero() || (!row.CreatedAt.IsZero() && row.CreatedAt.Before(meta.CreatedAt)) {
		meta.CreatedAt = row.CreatedAt
	}
}

// mergeReview builds a review from the week row when memory has none for the week.
func (p *Planner) mergeReview(display string, row model.WeekRow) {
	good, bad, learned := deref(row.ReviewGood), deref(row.ReviewBad), deref(row.ReviewLearned)
	if good == "" && bad == "" && learned == "" {
		return
	}
	for _, r := range p.reviews {
		if r.WeekDisplayID == display {
			return
		}
	}
	p.reviews = append(p.reviews, model.WeeklyReview{
		ID:            uuid.NewString(),
		WeekDisplayID: display,
		Good:          good,
		Bad:           bad,
		Learned:       learned,
		CompletedAt:   row.UpdatedAt,
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
