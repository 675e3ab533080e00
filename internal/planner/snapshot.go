package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"weekly-planner/internal/model"
	"weekly-planner/internal/week"
)

var ErrInvalidSnapshot = errors.New("invalid planner snapshot")

const SnapshotVersion = 1

// Snapshot is the portable export of a planner.
type Snapshot struct {
	Version        int                  `json:"version"`
	ExportedAt     time.Time            `json:"exportedAt"`
	Tasks          []model.Task         `json:"tasks"`
	BrainDumpTasks []model.Task         `json:"brainDumpTasks"`
	Reviews        []model.WeeklyReview `json:"reviews"`
}

// Snapshot captures confirmed tasks and reviews. Tasks still waiting for
// their insert are left out.
func (p *Planner) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Version:        SnapshotVersion,
		ExportedAt:     p.now(),
		Tasks:          confirmedOnly(sortedByOrder(p.scheduled)),
		BrainDumpTasks: confirmedOnly(sortedByOrder(p.brainDump)),
		Reviews:        append([]model.WeeklyReview{}, p.reviews...),
	}
}

func (p *Planner) Export() ([]byte, error) {
	data, err := json.MarshalIndent(p.Snapshot(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Import replaces tasks, brain dump and reviews with the snapshot in data.
// Memory is untouched when data is rejected.
func (p *Planner) Import(data []byte) error {
	snap, err := DecodeSnapshot(data)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scheduled = snap.Tasks
	p.brainDump = snap.BrainDumpTasks
	p.reviews = snap.Reviews
	clear(p.aliases)
	p.hasFetched = false
	return nil
}

// Clear empties tasks, brain dump and reviews and forgets confirmed transient ids.
func (p *Planner) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scheduled = nil
	p.brainDump = nil
	p.reviews = nil
	clear(p.aliases)
	p.hasFetched = false
}

// DecodeSnapshot parses and validates an exported snapshot.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var raw struct {
		Version        int                   `json:"version"`
		ExportedAt     time.Time             `json:"exportedAt"`
		Tasks          *[]model.Task         `json:"tasks"`
		BrainDumpTasks *[]model.Task         `json:"brainDumpTasks"`
		Reviews        *[]model.WeeklyReview `json:"reviews"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	switch {
	case raw.Tasks == nil:
		return Snapshot{}, fmt.Errorf("%w: missing tasks", ErrInvalidSnapshot)
	case raw.BrainDumpTasks == nil:
		return Snapshot{}, fmt.Errorf("%w: missing brainDumpTasks", ErrInvalidSnapshot)
	case raw.Reviews == nil:
		return Snapshot{}, fmt.Errorf("%w: missing reviews", ErrInvalidSnapshot)
	case raw.Version > SnapshotVersion:
		return Snapshot{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, raw.Version)
	}

	snap := Snapshot{
		Version:        raw.Version,
		ExportedAt:     raw.ExportedAt,
		Tasks:          *raw.Tasks,
		BrainDumpTasks: *raw.BrainDumpTasks,
		Reviews:        *raw.Reviews,
	}
	for i := range snap.Tasks {
		t := &snap.Tasks[i]
		if err := checkTask(*t); err != nil {
			return Snapshot{}, err
		}
		if t.Date == "" {
			return Snapshot{}, fmt.Errorf("%w: scheduled task %s has no date", ErrInvalidSnapshot, t.ID)
		}
		if _, err := week.ParseDate(t.Date); err != nil {
			return Snapshot{}, fmt.Errorf("%w: task %s: %v", ErrInvalidSnapshot, t.ID, err)
		}
		t.IsBrainDump = false
	}
	for i := range snap.BrainDumpTasks {
		t := &snap.BrainDumpTasks[i]
		if err := checkTask(*t); err != nil {
			return Snapshot{}, err
		}
		t.IsBrainDump = true
		t.Date = ""
		t.WeekID = ""
	}
	return snap, nil
}

func checkTask(t model.Task) error {
	if t.ID.IsZero() {
		return fmt.Errorf("%w: task without id", ErrInvalidSnapshot)
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: task %s has no title", ErrInvalidSnapshot, t.ID)
	}
	return nil
}

func confirmedOnly(tasks []model.Task) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.ID.IsLocal() {
			out = append(out, t)
		}
	}
	return out
}

// RestoreResult counts what Restore wrote to the store.
type RestoreResult struct {
	Tasks   int
	Reviews int
}

// Restore writes a snapshot into the store under the current account. Tasks
// get new durable ids; scheduled tasks are attached to their resolved weeks
// and reviews to the weeks named by their display ids. Unlike the planner
// mutations it runs synchronously and stops at the first store error.
func (p *Planner) Restore(ctx context.Context, snap Snapshot) (RestoreResult, error) {
	var res RestoreResult
	for _, t := range append(append([]model.Task{}, snap.Tasks...), snap.BrainDumpTasks...) {
		in := model.NewTask{
			Title:       t.Title,
			Description: t.Description,
			IsCompleted: t.IsCompleted,
			Priority:    t.Priority,
			StartTime:   t.StartTime,
			IsBrainDump: t.IsBrainDump,
			Date:        t.Date,
			Order:       t.Order,
		}
		if !in.Priority.Valid() {
			in.Priority = model.PriorityMedium
		}
		if !t.IsBrainDump {
			weekID, err := p.resolveWeekID(ctx, t.Date)
			if err != nil {
				return res, fmt.Errorf("restore task %s: %w", t.ID, err)
			}
			in.WeekID = weekID
		}
		if _, err := p.tasks.InsertTask(ctx, in); err != nil {
			return res, fmt.Errorf("restore task %s: %w", t.ID, err)
		}
		res.Tasks++
	}

	if len(snap.Reviews) > 0 && p.weeks == nil {
		return res, errors.New("restore reviews: no week store")
	}
	for _, r := range snap.Reviews {
		start, err := weekStart(r.WeekDisplayID)
		if err != nil {
			return res, fmt.Errorf("restore review %s: %w", r.ID, err)
		}
		row, err := p.resolver.ResolveOrCreate(ctx, start)
		if err != nil {
			return res, fmt.Errorf("restore review %s: %w", r.ID, err)
		}
		good, bad, learned := r.Good, r.Bad, r.Learned
		if err := p.weeks.UpdateWeek(ctx, row.ID, model.WeekPatch{ReviewGood: &good, ReviewBad: &bad, ReviewLearned: &learned}); err != nil {
			return res, fmt.Errorf("restore review %s: %w", r.ID, err)
		}
		res.Reviews++
	}
	return res, nil
}

// weekStart returns the first day of the week named by a display id such as "2026-W07".
func weekStart(displayID string) (time.Time, error) {
	var year, number int
	if _, err := fmt.Sscanf(displayID, "%d-W%d", &year, &number); err != nil || number < 1 || number > 53 {
		return time.Time{}, fmt.Errorf("%w: bad week id %q", ErrInvalidSnapshot, displayID)
	}
	first := week.Start(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC))
	start := first.AddDate(0, 0, 7*(number-1))
	if week.DisplayID(start) != displayID {
		return time.Time{}, fmt.Errorf("%w: bad week id %q", ErrInvalidSnapshot, displayID)
	}
	return start, nil
}
