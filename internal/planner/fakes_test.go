package planner

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"weekly-planner/internal/model"
	"weekly-planner/internal/week"
	pkgLog "weekly-planner/pkg/log"
)

var errStore = errors.New("store unavailable")

// fakeTasks is an in-memory task store with failure injection.
type fakeTasks struct {
	mu        sync.Mutex
	rows      map[model.TaskID]model.Task
	insertErr error
	fetchErr  error
	// gate, when set, holds every insert until it is closed.
	gate chan struct{}
	// hold, when set, blocks every insert after its row is stored until it
	// is closed. committed, when set, receives each stored id first.
	hold      chan struct{}
	committed chan model.TaskID
	// fetched, when set, is signalled once a fetch has read the rows; the
	// fetch then waits for fetchHold to close before returning them.
	fetched   chan struct{}
	fetchHold chan struct{}
	inserts   int
	updates   int
	deletes   []model.TaskID
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{rows: make(map[model.TaskID]model.Task)}
}

func (f *fakeTasks) FetchTasksForWeek(ctx context.Context, weekID string) ([]model.Task, []model.Task, error) {
	scheduled, brainDump, err := f.read(weekID)
	if err != nil {
		return nil, nil, err
	}
	f.mu.Lock()
	fetched, hold := f.fetched, f.fetchHold
	f.mu.Unlock()
	if fetched != nil {
		fetched <- struct{}{}
	}
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	return scheduled, brainDump, nil
}

func (f *fakeTasks) read(weekID string) ([]model.Task, []model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, nil, f.fetchErr
	}
	var scheduled, brainDump []model.Task
	for _, t := range f.rows {
		switch {
		case t.IsBrainDump:
			brainDump = append(brainDump, t)
		case t.WeekID == weekID:
			scheduled = append(scheduled, t)
		}
	}
	byOrder := func(s []model.Task) {
		sort.Slice(s, func(i, j int) bool { return s[i].Order < s[j].Order })
	}
	byOrder(scheduled)
	byOrder(brainDump)
	return scheduled, brainDump, nil
}

func (f *fakeTasks) InsertTask(ctx context.Context, in model.NewTask) (model.Task, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.Task{}, ctx.Err()
		}
	}

	f.mu.Lock()
	f.inserts++
	if f.insertErr != nil {
		f.mu.Unlock()
		return model.Task{}, f.insertErr
	}
	t := model.Task{
		ID:          model.DurableID(uuid.NewString()),
		Title:       in.Title,
		Description: in.Description,
		IsCompleted: in.IsCompleted,
		Priority:    in.Priority,
		StartTime:   in.StartTime,
		IsBrainDump: in.IsBrainDump,
		WeekID:      in.WeekID,
		Date:        in.Date,
		Order:       in.Order,
		CreatedAt:   time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
	}
	f.rows[t.ID] = t
	hold, committed := f.hold, f.committed
	f.mu.Unlock()

	if committed != nil {
		committed <- t.ID
	}
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return model.Task{}, ctx.Err()
		}
	}
	return t, nil
}

func (f *fakeTasks) UpdateTask(_ context.Context, id model.TaskID, patch model.TaskPatch) error {
	if id.IsLocal() {
		return errors.New("transient id")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	t, ok := f.rows[id]
	if !ok {
		return errors.New("not found")
	}
	patch.Apply(&t)
	f.rows[id] = t
	return nil
}

func (f *fakeTasks) DeleteTask(_ context.Context, id model.TaskID) error {
	if id.IsLocal() {
		return errors.New("transient id")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	f.deletes = append(f.deletes, id)
	return nil
}

func (f *fakeTasks) FetchTaskCountsByWeek(context.Context) (map[string]model.WeekCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]model.WeekCounts)
	for _, t := range f.rows {
		if t.IsBrainDump || t.WeekID == "" {
			continue
		}
		c := counts[t.WeekID]
		c.Total++
		if t.IsCompleted {
			c.Completed++
		}
		counts[t.WeekID] = c
	}
	return counts, nil
}

func (f *fakeTasks) get(id model.TaskID) (model.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	return t, ok
}

func (f *fakeTasks) seed(t model.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[t.ID] = t
}

func (f *fakeTasks) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// fakeWeeks resolves and stores week rows keyed "week-<display id>".
type fakeWeeks struct {
	mu         sync.Mutex
	rows       map[string]model.WeekRow
	resolveErr error
	resolves   int
	updates    []model.WeekPatch
}

func newFakeWeeks() *fakeWeeks {
	return &fakeWeeks{rows: make(map[string]model.WeekRow)}
}

func (f *fakeWeeks) ResolveOrCreate(_ context.Context, date time.Time) (model.WeekRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves++
	if f.resolveErr != nil {
		return model.WeekRow{}, f.resolveErr
	}
	id := "week-" + week.DisplayID(date)
	row, ok := f.rows[id]
	if !ok {
		row = model.WeekRow{
			ID:         id,
			Year:       week.Year(date),
			WeekNumber: week.Number(date),
			StartDate:  week.FormatDate(week.Start(date)),
			EndDate:    week.FormatDate(week.End(date)),
		}
		f.rows[id] = row
	}
	return row, nil
}

func (f *fakeWeeks) GetWeek(_ context.Context, id string) (model.WeekRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return model.WeekRow{}, errors.New("not found")
	}
	return row, nil
}

func (f *fakeWeeks) UpdateWeek(_ context.Context, id string, patch model.WeekPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return errors.New("not found")
	}
	f.updates = append(f.updates, patch)
	if patch.WeeklyChallenge != nil {
		row.WeeklyChallenge = patch.WeeklyChallenge
	}
	if patch.ChallengeProgress != nil {
		row.ChallengeProgress = *patch.ChallengeProgress
	}
	if patch.ReviewGood != nil {
		row.ReviewGood = patch.ReviewGood
	}
	if patch.ReviewBad != nil {
		row.ReviewBad = patch.ReviewBad
	}
	if patch.ReviewLearned != nil {
		row.ReviewLearned = patch.ReviewLearned
	}
	if patch.RestDay != nil {
		if *patch.RestDay == "" {
			row.RestDay = nil
		} else {
			row.RestDay = patch.RestDay
		}
	}
	f.rows[id] = row
	return nil
}

func (f *fakeWeeks) ListWeeks(context.Context) ([]model.WeekRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := make([]model.WeekRow, 0, len(f.rows))
	for _, r := range f.rows {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Year != rows[j].Year {
			return rows[i].Year > rows[j].Year
		}
		return rows[i].WeekNumber > rows[j].WeekNumber
	})
	return rows, nil
}

func (f *fakeWeeks) row(id string) (model.WeekRow, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	return r, ok
}

func (f *fakeWeeks) setResolveErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolveErr = err
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Tuesday of 2026-W07 (2026-02-07 .. 2026-02-13).
var today = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

type harness struct {
	p     *Planner
	tasks *fakeTasks
	weeks *fakeWeeks
	clock *clock
}

func newHarness(t *testing.T) harness {
	t.Helper()
	tasks, weeks := newFakeTasks(), newFakeWeeks()
	c := &clock{now: today}
	p, err := New(tasks, weeks, weeks, pkgLog.NewNop(), Options{Now: c.Now, RemoteTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(p.Wait)
	return harness{p: p, tasks: tasks, weeks: weeks, clock: c}
}
