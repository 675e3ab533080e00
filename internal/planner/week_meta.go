package planner

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"weekly-planner/internal/model"
	"weekly-planner/internal/week"
)

// SetWeeklyChallenge sets the current week's challenge text.
func (p *Planner) SetWeeklyChallenge(text string) model.WeekMeta {
	text = strings.TrimSpace(text)

	p.mu.Lock()
	meta := p.ensureMeta(p.weekDisplayID)
	meta.WeeklyChallenge = text
	out := copyMeta(meta)
	date := p.currentDate
	p.mu.Unlock()

	p.persistWeek(date, model.WeekPatch{WeeklyChallenge: &text})
	return out
}

// ToggleChallengeDay marks or unmarks date as a day the challenge was honoured.
func (p *Planner) ToggleChallengeDay(date string) (model.WeekMeta, error) {
	if _, err := week.ParseDate(date); err != nil {
		return model.WeekMeta{}, err
	}

	p.mu.Lock()
	meta := p.ensureMeta(p.weekDisplayID)
	progress := make([]string, 0, len(meta.ChallengeProgress)+1)
	found := false
	for _, d := range meta.ChallengeProgress {
		if d == date {
			found = true
			continue
		}
		progress = append(progress, d)
	}
	if !found {
		progress = append(progress, date)
	}
	meta.ChallengeProgress = progress
	out := copyMeta(meta)
	current := p.currentDate
	p.mu.Unlock()

	sent := append([]string{}, progress...)
	p.persistWeek(current, model.WeekPatch{ChallengeProgress: &sent})
	return out, nil
}

// SetRestDay makes date the current week's rest day, or clears it when it
// already is.
func (p *Planner) SetRestDay(date string) (model.WeekMeta, error) {
	if _, err := week.ParseDate(date); err != nil {
		return model.WeekMeta{}, err
	}

	p.mu.Lock()
	meta := p.ensureMeta(p.weekDisplayID)
	if meta.RestDay == date {
		meta.RestDay = ""
	} else {
		meta.RestDay = date
	}
	rest := meta.RestDay
	out := copyMeta(meta)
	current := p.currentDate
	p.mu.Unlock()

	p.persistWeek(current, model.WeekPatch{RestDay: &rest})
	return out, nil
}

// SaveReview records the current week's review. A second save for the same
// week replaces the text and completion time of the existing review.
func (p *Planner) SaveReview(good, bad, learned string) model.WeeklyReview {
	good, bad, learned = strings.TrimSpace(good), strings.TrimSpace(bad), strings.TrimSpace(learned)

	p.mu.Lock()
	now := p.now()
	var review model.WeeklyReview
	idx := -1
	for i, r := range p.reviews {
		if r.WeekDisplayID == p.weekDisplayID {
			idx = i
			break
		}
	}
	if idx >= 0 {
		review = p.reviews[idx]
	} else {
		review = model.WeeklyReview{ID: uuid.NewString(), WeekDisplayID: p.weekDisplayID}
	}
	review.Good, review.Bad, review.Learned = good, bad, learned
	review.CompletedAt = now
	if idx >= 0 {
		p.reviews[idx] = review
	} else {
		p.reviews = append(p.reviews, review)
	}
	current := p.currentDate
	p.mu.Unlock()

	p.persistWeek(current, model.WeekPatch{ReviewGood: &good, ReviewBad: &bad, ReviewLearned: &learned})
	return review
}

// persistWeek writes patch to the durable week containing date, resolving it
// first when it is not known yet.
func (p *Planner) persistWeek(date time.Time, patch model.WeekPatch) {
	if p.weeks == nil {
		return
	}
	display := week.DisplayID(date)
	p.background(func(ctx context.Context) {
		p.mu.Lock()
		durable := ""
		if meta, ok := p.metas[display]; ok {
			durable = meta.DurableID
		}
		p.mu.Unlock()

		if durable == "" {
			row, err := p.resolver.ResolveOrCreate(ctx, date)
			if err != nil {
				p.l.Warnf(ctx, "planner: week %s kept locally: %v", display, err)
				return
			}
			durable = row.ID
			p.mu.Lock()
			p.rememberWeek(display, durable)
			p.mu.Unlock()
		}
		if err := p.weeks.UpdateWeek(ctx, durable, patch); err != nil {
			p.l.Errorf(ctx, "planner: update week %s: %v", display, err)
		}
	})
}
