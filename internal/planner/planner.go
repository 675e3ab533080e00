// Package planner holds the in-memory weekly planner: scheduled tasks, the
// brain-dump pool, week metadata and reviews. Mutations apply to memory
// immediately and are persisted in the background; see tasks.go for the
// optimistic create protocol and sync.go for reconciliation with the store.
package planner

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"weekly-planner/internal/model"
	"weekly-planner/internal/week"
	pkgLog "weekly-planner/pkg/log"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrEmptyTitle   = errors.New("task title is required")
	ErrBadPriority  = errors.New("unknown task priority")
)

// TaskRepository is the remote task store.
type TaskRepository interface {
	FetchTasksForWeek(ctx context.Context, weekID string) (scheduled, brainDump []model.Task, err error)
	InsertTask(ctx context.Context, in model.NewTask) (model.Task, error)
	UpdateTask(ctx context.Context, id model.TaskID, patch model.TaskPatch) error
	DeleteTask(ctx context.Context, id model.TaskID) error
}

// WeekResolver maps a date to the durable week row, creating it if needed.
type WeekResolver interface {
	ResolveOrCreate(ctx context.Context, date time.Time) (model.WeekRow, error)
}

// WeekStore reads and writes week metadata by durable id.
type WeekStore interface {
	GetWeek(ctx context.Context, id string) (model.WeekRow, error)
	UpdateWeek(ctx context.Context, id string, patch model.WeekPatch) error
}

type Options struct {
	// BaseContext parents every background store call. Defaults to context.Background().
	BaseContext     context.Context
	RemoteTimeout   time.Duration
	SortPreferences []SortKey
	Now             func() time.Time
}

// Planner owns the planner state of one account. It is safe for concurrent
// use; background persistence re-enters it to reconcile.
type Planner struct {
	tasks    TaskRepository
	weeks    WeekStore
	resolver WeekResolver
	l        pkgLog.Logger

	ctx           context.Context
	remoteTimeout time.Duration
	now           func() time.Time
	inflight      sync.WaitGroup
	queueMu       sync.Mutex
	tail          chan struct{}

	mu            sync.Mutex
	currentDate   time.Time
	weekDisplayID string
	weekDurableID string
	scheduled     []model.Task
	brainDump     []model.Task
	aliases       map[model.TaskID]model.TaskID
	confirmSeq    uint64
	confirmed     map[model.TaskID]uint64 // durable id -> confirmSeq while syncs run
	activeSyncs   int
	metas         map[string]*model.WeekMeta
	reviews       []model.WeeklyReview
	isSyncing     bool
	hasFetched    bool
	sortPrefs     []SortKey
}

func New(tasks TaskRepository, weeks WeekStore, resolver WeekResolver, l pkgLog.Logger, opts Options) (*Planner, error) {
	prefs := DefaultSortPreferences()
	if len(opts.SortPreferences) > 0 {
		if err := ValidateSortPreferences(opts.SortPreferences); err != nil {
			return nil, err
		}
		prefs = append([]SortKey(nil), opts.SortPreferences...)
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if l == nil {
		l = pkgLog.NewNop()
	}

	today := opts.Now()
	return &Planner{
		tasks:         tasks,
		weeks:         weeks,
		resolver:      resolver,
		l:             l,
		ctx:           opts.BaseContext,
		remoteTimeout: opts.RemoteTimeout,
		now:           opts.Now,
		currentDate:   today,
		weekDisplayID: week.DisplayID(today),
		aliases:       make(map[model.TaskID]model.TaskID),
		confirmed:     make(map[model.TaskID]uint64),
		metas:         make(map[string]*model.WeekMeta),
		sortPrefs:     prefs,
	}, nil
}

// Wait blocks until all background store calls issued so far have finished.
func (p *Planner) Wait() {
	p.inflight.Wait()
}

// background runs fn outside the lock with a bounded context. Jobs run one
// at a time in submission order, so store writes land in call order.
func (p *Planner) background(fn func(ctx context.Context)) {
	p.inflight.Add(1)
	done := make(chan struct{})
	p.queueMu.Lock()
	prev := p.tail
	p.tail = done
	p.queueMu.Unlock()

	go func() {
		defer p.inflight.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		ctx, cancel := context.WithTimeout(p.ctx, p.remoteTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// ── Navigation ──

func (p *Planner) GoToNextWeek() { p.shiftWeeks(1) }

func (p *Planner) GoToPrevWeek() { p.shiftWeeks(-1) }

func (p *Planner) GoToToday() { p.SetDate(p.now()) }

func (p *Planner) shiftWeeks(n int) {
	p.mu.Lock()
	next := p.currentDate.AddDate(0, 0, 7*n)
	p.mu.Unlock()
	p.SetDate(next)
}

// SetDate moves the planner to the week containing t.
func (p *Planner) SetDate(t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentDate = t
	display := week.DisplayID(t)
	if display == p.weekDisplayID {
		return
	}
	p.weekDisplayID = display
	p.weekDurableID = ""
	if meta, ok := p.metas[display]; ok {
		p.weekDurableID = meta.DurableID
	}
	p.hasFetched = false
}

// ── Queries. Returned slices are copies. ──

func (p *Planner) CurrentDate() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentDate
}

func (p *Planner) WeekDisplayID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.weekDisplayID
}

func (p *Planner) WeekDurableID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.weekDurableID
}

func (p *Planner) IsSyncing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isSyncing
}

func (p *Planner) HasFetchedForCurrentWeek() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasFetched
}

// Tasks returns every scheduled task held in memory, in stored order.
func (p *Planner) Tasks() []model.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return sortedByOrder(p.scheduled)
}

// BrainDump returns the unscheduled pool in stored order.
func (p *Planner) BrainDump() []model.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return sortedByOrder(p.brainDump)
}

// Task looks a task up in either collection.
func (p *Planner) Task(id model.TaskID) (model.Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if list, i := p.locate(id); list != nil {
		return (*list)[i], true
	}
	return model.Task{}, false
}

// TasksForDate returns a day's tasks in display order.
func (p *Planner) TasksForDate(date string) []model.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return SortForDisplay(p.dayTasks(date), p.sortPrefs)
}

// DayColumn is one day of the current week with its display-sorted tasks.
type DayColumn struct {
	Date    string
	Weekday time.Weekday
	Tasks   []model.Task
}

// DayColumns returns Saturday through Friday of the current week.
func (p *Planner) DayColumns() []DayColumn {
	p.mu.Lock()
	defer p.mu.Unlock()
	days := week.Days(p.currentDate)
	cols := make([]DayColumn, 0, len(days))
	for _, d := range days {
		date := week.FormatDate(d)
		cols = append(cols, DayColumn{
			Date:    date,
			Weekday: d.Weekday(),
			Tasks:   SortForDisplay(p.dayTasks(date), p.sortPrefs),
		})
	}
	return cols
}

// WeekMeta returns the metadata of a week by display id.
func (p *Planner) WeekMeta(displayID string) (model.WeekMeta, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	meta, ok := p.metas[displayID]
	if !ok {
		return model.WeekMeta{}, false
	}
	return copyMeta(meta), true
}

func (p *Planner) CurrentWeekMeta() (model.WeekMeta, bool) {
	return p.WeekMeta(p.WeekDisplayID())
}

func (p *Planner) Reviews() []model.WeeklyReview {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.WeeklyReview(nil), p.reviews...)
}

func (p *Planner) ReviewForWeek(displayID string) (model.WeeklyReview, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.reviews {
		if r.WeekDisplayID == displayID {
			return r, true
		}
	}
	return model.WeeklyReview{}, false
}

// ── Internal helpers. Callers hold p.mu. ──

// locate returns the collection holding id and the index in it, or nil.
func (p *Planner) locate(id model.TaskID) (*[]model.Task, int) {
	for i := range p.scheduled {
		if p.scheduled[i].ID == id {
			return &p.scheduled, i
		}
	}
	for i := range p.brainDump {
		if p.brainDump[i].ID == id {
			return &p.brainDump, i
		}
	}
	return nil, -1
}

func (p *Planner) remove(id model.TaskID) (model.Task, bool) {
	list, i := p.locate(id)
	if list == nil {
		return model.Task{}, false
	}
	task := (*list)[i]
	*list = append((*list)[:i:i], (*list)[i+1:]...)
	return task, true
}

func (p *Planner) dayTasks(date string) []model.Task {
	var out []model.Task
	for _, t := range p.scheduled {
		if t.Date == date {
			out = append(out, t)
		}
	}
	return out
}

// container returns the tasks sharing the destination of date; "" is the brain dump.
func (p *Planner) container(date string) []model.Task {
	if date == "" {
		return append([]model.Task(nil), p.brainDump...)
	}
	return p.dayTasks(date)
}

func (p *Planner) ensureMeta(displayID string) *model.WeekMeta {
	meta, ok := p.metas[displayID]
	if !ok {
		meta = &model.WeekMeta{DisplayID: displayID, ChallengeProgress: []string{}, CreatedAt: p.now()}
		if displayID == p.weekDisplayID {
			meta.DurableID = p.weekDurableID
		}
		p.metas[displayID] = meta
	}
	return meta
}

// knownWeekID returns the durable week id for date if it is already known.
func (p *Planner) knownWeekID(date string) string {
	display, err := week.DisplayIDForDate(date)
	if err != nil {
		return ""
	}
	if display == p.weekDisplayID && p.weekDurableID != "" {
		return p.weekDurableID
	}
	if meta, ok := p.metas[display]; ok {
		return meta.DurableID
	}
	return ""
}

// rememberWeek records a resolved durable week and back-fills tasks of that
// week that were created before it was known.
func (p *Planner) rememberWeek(displayID, durableID string) {
	meta := p.ensureMeta(displayID)
	meta.DurableID = durableID
	if displayID == p.weekDisplayID {
		p.weekDurableID = durableID
	}
	for i := range p.scheduled {
		t := &p.scheduled[i]
		if t.WeekID != "" {
			continue
		}
		if d, err := week.DisplayIDForDate(t.Date); err == nil && d == displayID {
			t.WeekID = durableID
		}
	}
}

func sortedByOrder(tasks []model.Task) []model.Task {
	out := append([]model.Task(nil), tasks...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func copyMeta(m *model.WeekMeta) model.WeekMeta {
	out := *m
	out.ChallengeProgress = append([]string{}, m.ChallengeProgress...)
	return out
}
