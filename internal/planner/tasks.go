package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"weekly-planner/internal/model"
	"weekly-planner/internal/week"
)

var ErrNotInBrainDump = errors.New("task is not in the brain dump")

// AddTaskInput describes a new task. An empty Date puts it in the brain dump.
type AddTaskInput struct {
	Title       string
	Description string
	Date        string
	Priority    model.Priority
	StartTime   string
	IsBrainDump bool
}

// TaskUpdate edits task content. Placement changes go through MoveTask and ScheduleTask.
type TaskUpdate struct {
	Title       *string
	Description *string
	Priority    *model.Priority
	StartTime   *string
	IsCompleted *bool
}

// MoveRequest places a task at NewIndex of the order-sorted destination.
// An empty ToDate is the brain dump.
type MoveRequest struct {
	ID       model.TaskID
	FromDate string
	ToDate   string
	NewIndex int
}

// AddTask inserts the task in memory under a transient id and returns it.
// The store insert runs in the background: on success the entry is replaced
// by the confirmed task, on failure it is removed.
func (p *Planner) AddTask(in AddTaskInput) (model.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return model.Task{}, ErrEmptyTitle
	}
	priority := in.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}
	if !priority.Valid() {
		return model.Task{}, fmt.Errorf("%w: %q", ErrBadPriority, priority)
	}
	date := in.Date
	if in.IsBrainDump {
		date = ""
	}
	if date != "" {
		if _, err := week.ParseDate(date); err != nil {
			return model.Task{}, err
		}
	}
	startTime := in.StartTime
	if startTime != "" {
		startTime = model.NormalizeStartTime(startTime)
	}

	p.mu.Lock()
	task := model.Task{
		ID:          model.NewLocalID(),
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Priority:    priority,
		StartTime:   startTime,
		IsBrainDump: date == "",
		Date:        date,
		Order:       NextOrder(p.container(date)),
		CreatedAt:   p.now(),
	}
	if task.IsBrainDump {
		p.brainDump = append(p.brainDump, task)
	} else {
		task.WeekID = p.knownWeekID(date)
		p.scheduled = append(p.scheduled, task)
		display, _ := week.DisplayIDForDate(date)
		p.ensureMeta(display)
	}
	p.mu.Unlock()

	p.background(func(ctx context.Context) { p.confirmCreate(ctx, task) })
	return task, nil
}

func (p *Planner) confirmCreate(ctx context.Context, sent model.Task) {
	if !sent.IsBrainDump && sent.WeekID == "" {
		weekID, err := p.resolveWeekID(ctx, sent.Date)
		if err != nil {
			p.l.Errorf(ctx, "planner: resolve week for new task %q: %v", sent.Title, err)
			p.rollbackCreate(sent.ID)
			return
		}
		sent.WeekID = weekID
	}

	created, err := p.tasks.InsertTask(ctx, model.NewTask{
		Title:       sent.Title,
		Description: sent.Description,
		IsCompleted: sent.IsCompleted,
		Priority:    sent.Priority,
		StartTime:   sent.StartTime,
		IsBrainDump: sent.IsBrainDump,
		WeekID:      sent.WeekID,
		Date:        sent.Date,
		Order:       sent.Order,
	})
	if err != nil {
		p.l.Errorf(ctx, "planner: insert task %q: %v", sent.Title, err)
		p.rollbackCreate(sent.ID)
		return
	}

	p.mu.Lock()
	// A sync that fetched after the insert committed already holds the row;
	// the transient entry carries the current placement, so it wins.
	p.remove(created.ID)
	list, i := p.locate(sent.ID)
	if list == nil {
		p.mu.Unlock()
		p.l.Debugf(ctx, "planner: task %s deleted before insert confirmed, removing %s", sent.ID, created.ID)
		if err := p.tasks.DeleteTask(ctx, created.ID); err != nil {
			p.l.Errorf(ctx, "planner: delete orphaned task %s: %v", created.ID, err)
		}
		return
	}
	// Edits made while the insert was in flight are carried onto the confirmed row.
	pending := diffTask(sent, (*list)[i])
	confirmed := created
	pending.Apply(&confirmed)
	(*list)[i] = confirmed
	p.aliases[sent.ID] = created.ID
	p.confirmSeq++
	if p.activeSyncs > 0 {
		p.confirmed[created.ID] = p.confirmSeq
	}
	p.mu.Unlock()

	if pending.IsEmpty() {
		return
	}
	if err := p.tasks.UpdateTask(ctx, created.ID, pending); err != nil {
		p.l.Errorf(ctx, "planner: update task %s after insert: %v", created.ID, err)
	}
}

func (p *Planner) rollbackCreate(id model.TaskID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remove(id)
}

// resolveWeekID resolves the durable week of date and records it in memory.
func (p *Planner) resolveWeekID(ctx context.Context, date string) (string, error) {
	t, err := week.ParseDate(date)
	if err != nil {
		return "", err
	}
	row, err := p.resolver.ResolveOrCreate(ctx, t)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	p.rememberWeek(week.DisplayID(t), row.ID)
	p.mu.Unlock()
	return row.ID, nil
}

// UpdateTask applies u in memory and persists the changed fields in the background.
func (p *Planner) UpdateTask(id model.TaskID, u TaskUpdate) (model.Task, error) {
	patch, err := u.toPatch()
	if err != nil {
		return model.Task{}, err
	}

	p.mu.Lock()
	id = p.canonical(id)
	list, i := p.locate(id)
	if list == nil {
		p.mu.Unlock()
		return model.Task{}, ErrTaskNotFound
	}
	patch.Apply(&(*list)[i])
	task := (*list)[i]
	p.mu.Unlock()

	p.persistPatch(id, patch)
	return task, nil
}

// ToggleComplete flips the completion flag.
func (p *Planner) ToggleComplete(id model.TaskID) (model.Task, error) {
	p.mu.Lock()
	id = p.canonical(id)
	list, i := p.locate(id)
	if list == nil {
		p.mu.Unlock()
		return model.Task{}, ErrTaskNotFound
	}
	done := !(*list)[i].IsCompleted
	(*list)[i].IsCompleted = done
	task := (*list)[i]
	p.mu.Unlock()

	p.persistPatch(id, model.TaskPatch{IsCompleted: &done})
	return task, nil
}

// DeleteTask removes the task from memory and from the store in the background.
func (p *Planner) DeleteTask(id model.TaskID) error {
	p.mu.Lock()
	id = p.canonical(id)
	_, ok := p.remove(id)
	p.mu.Unlock()
	if !ok {
		return ErrTaskNotFound
	}

	if id.IsLocal() {
		return nil
	}
	p.background(func(ctx context.Context) {
		if err := p.tasks.DeleteTask(ctx, id); err != nil {
			p.l.Errorf(ctx, "planner: delete task %s: %v", id, err)
		}
	})
	return nil
}

// DuplicateTask adds a copy of the task's title, priority and start time on
// targetDate ("" for the brain dump).
func (p *Planner) DuplicateTask(id model.TaskID, targetDate string) (model.Task, error) {
	src, ok := p.Task(p.Canonical(id))
	if !ok {
		return model.Task{}, ErrTaskNotFound
	}
	return p.AddTask(AddTaskInput{
		Title:     src.Title,
		Date:      targetDate,
		Priority:  src.Priority,
		StartTime: src.StartTime,
	})
}

// MoveTask moves a task into another day or the brain dump, or reorders it
// within its own container.
func (p *Planner) MoveTask(req MoveRequest) (model.Task, error) {
	if req.ToDate != "" {
		if _, err := week.ParseDate(req.ToDate); err != nil {
			return model.Task{}, err
		}
	}

	p.mu.Lock()
	id := p.canonical(req.ID)
	task, ok := p.remove(id)
	if !ok {
		p.mu.Unlock()
		return model.Task{}, ErrTaskNotFound
	}
	task = p.place(task, req.ToDate, OrderAt(p.container(req.ToDate), req.NewIndex))
	p.mu.Unlock()

	p.persistPlacement(id, task)
	return task, nil
}

// ScheduleTask moves a brain-dump task to the end of date.
func (p *Planner) ScheduleTask(id model.TaskID, date string) (model.Task, error) {
	if _, err := week.ParseDate(date); err != nil {
		return model.Task{}, err
	}

	p.mu.Lock()
	id = p.canonical(id)
	list, _ := p.locate(id)
	switch {
	case list == nil:
		p.mu.Unlock()
		return model.Task{}, ErrTaskNotFound
	case list != &p.brainDump:
		p.mu.Unlock()
		return model.Task{}, ErrNotInBrainDump
	}
	task, _ := p.remove(id)
	task = p.place(task, date, NextOrder(p.dayTasks(date)))
	p.mu.Unlock()

	p.persistPlacement(id, task)
	return task, nil
}

// Canonical maps a transient id whose create has been confirmed to its durable id.
func (p *Planner) Canonical(id model.TaskID) model.TaskID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.canonical(id)
}

// Callers hold p.mu.
func (p *Planner) canonical(id model.TaskID) model.TaskID {
	if durable, ok := p.aliases[id]; ok {
		return durable
	}
	return id
}

// place sets the destination fields of task and appends it there. Callers hold p.mu.
func (p *Planner) place(task model.Task, date string, order float64) model.Task {
	task.Date = date
	task.IsBrainDump = date == ""
	task.Order = order
	if task.IsBrainDump {
		task.WeekID = ""
		p.brainDump = append(p.brainDump, task)
		return task
	}
	task.WeekID = p.knownWeekID(date)
	p.scheduled = append(p.scheduled, task)
	display, _ := week.DisplayIDForDate(date)
	p.ensureMeta(display)
	return task
}

func (p *Planner) persistPatch(id model.TaskID, patch model.TaskPatch) {
	p.background(func(ctx context.Context) {
		p.mu.Lock()
		target := p.canonical(id)
		p.mu.Unlock()
		if target.IsLocal() {
			p.l.Debugf(ctx, "planner: task %s not confirmed yet, update carried by insert", target)
			return
		}
		if err := p.tasks.UpdateTask(ctx, target, patch); err != nil {
			p.l.Errorf(ctx, "planner: update task %s: %v", target, err)
		}
	})
}

// persistPlacement writes date, brain-dump flag, week and order of a moved
// task, resolving the destination week first when it is not known yet.
func (p *Planner) persistPlacement(id model.TaskID, moved model.Task) {
	p.background(func(ctx context.Context) {
		if !moved.IsBrainDump && moved.WeekID == "" {
			if _, err := p.resolveWeekID(ctx, moved.Date); err != nil {
				p.l.Errorf(ctx, "planner: resolve week for moved task %s: %v", id, err)
				return
			}
		}

		p.mu.Lock()
		target := p.canonical(id)
		list, i := p.locate(target)
		if list == nil {
			p.mu.Unlock()
			return
		}
		t := (*list)[i]
		p.mu.Unlock()

		if target.IsLocal() {
			p.l.Debugf(ctx, "planner: task %s not confirmed yet, move carried by insert", target)
			return
		}
		patch := model.TaskPatch{Date: &t.Date, IsBrainDump: &t.IsBrainDump, WeekID: &t.WeekID, Order: &t.Order}
		if err := p.tasks.UpdateTask(ctx, target, patch); err != nil {
			p.l.Errorf(ctx, "planner: move task %s: %v", target, err)
		}
	})
}

func (u TaskUpdate) toPatch() (model.TaskPatch, error) {
	patch := model.TaskPatch{
		Description: u.Description,
		Priority:    u.Priority,
		IsCompleted: u.IsCompleted,
	}
	if u.Title != nil {
		title := strings.TrimSpace(*u.Title)
		if title == "" {
			return model.TaskPatch{}, ErrEmptyTitle
		}
		patch.Title = &title
	}
	if u.Priority != nil && !u.Priority.Valid() {
		return model.TaskPatch{}, fmt.Errorf("%w: %q", ErrBadPriority, *u.Priority)
	}
	if u.StartTime != nil {
		st := *u.StartTime
		if st != "" {
			st = model.NormalizeStartTime(st)
		}
		patch.StartTime = &st
	}
	return patch, nil
}

// diffTask returns the fields of current that differ from base.
func diffTask(base, current model.Task) model.TaskPatch {
	var p model.TaskPatch
	if current.Title != base.Title {
		p.Title = &current.Title
	}
	if current.Description != base.Description {
		p.Description = &current.Description
	}
	if current.IsCompleted != base.IsCompleted {
		p.IsCompleted = &current.IsCompleted
	}
	if current.Priority != base.Priority {
		p.Priority = &current.Priority
	}
	if current.StartTime != base.StartTime {
		p.StartTime = &current.StartTime
	}
	if current.IsBrainDump != base.IsBrainDump {
		p.IsBrainDump = &current.IsBrainDump
	}
	if current.WeekID != base.WeekID {
		p.WeekID = &current.WeekID
	}
	if current.Date != base.Date {
		p.Date = &current.Date
	}
	if current.Order != base.Order {
		p.Order = &current.Order
	}
	return p
}
