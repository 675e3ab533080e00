package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"weekly-planner/internal/identity"
	"weekly-planner/internal/model"
	pkgLog "weekly-planner/pkg/log"
)

var (
	// ErrTransientID rejects store calls for tasks that only exist locally.
	ErrTransientID = errors.New("task id is not confirmed by the store")
	ErrNotFound    = errors.New("record not found")
	ErrConflict    = errors.New("record already exists")
)

// TaskRepository reads and writes task rows owned by the signed-in account.
type TaskRepository struct {
	db  *gorm.DB
	ids identity.Provider
	l   pkgLog.Logger
}

func NewTaskRepository(db *gorm.DB, ids identity.Provider, l pkgLog.Logger) *TaskRepository {
	return &TaskRepository{db: db, ids: ids, l: l}
}

// FetchTasksForWeek returns the account's scheduled tasks of one durable week
// and every brain-dump task regardless of week, both ordered by position.
// Without a signed-in account both sets are empty.
func (r *TaskRepository) FetchTasksForWeek(ctx context.Context, weekID string) (scheduled, brainDump []model.Task, err error) {
	userID, ok := r.ids.CurrentUserID(ctx)
	if !ok {
		return nil, nil, nil
	}

	db := r.db.WithContext(ctx)

	var weekRows []model.TaskRow
	if err := db.Where("user_id = ? AND week_id = ? AND is_brain_dump = ?", userID, weekID, false).
		Order("position ASC").
		Find(&weekRows).Error; err != nil {
		return nil, nil, fmt.Errorf("fetch week tasks: %w", err)
	}

	var dumpRows []model.TaskRow
	if err := db.Where("user_id = ? AND is_brain_dump = ?", userID, true).
		Order("position ASC").
		Find(&dumpRows).Error; err != nil {
		return nil, nil, fmt.Errorf("fetch brain dump: %w", err)
	}

	r.l.Debugf(ctx, "tasks: week %s has %d scheduled, %d in brain dump", weekID, len(weekRows), len(dumpRows))
	return rowsToTasks(weekRows), rowsToTasks(dumpRows), nil
}

// InsertTask stores a new task and returns it with its durable id.
func (r *TaskRepository) InsertTask(ctx context.Context, in model.NewTask) (model.Task, error) {
	userID, ok := r.ids.CurrentUserID(ctx)
	if !ok {
		return model.Task{}, identity.ErrNoIdentity
	}

	row := model.TaskRow{
		UserID:      userID,
		WeekID:      nullable(in.WeekID),
		Title:       in.Title,
		Description: nullable(in.Description),
		TaskDate:    nullable(in.Date),
		IsBrainDump: in.IsBrainDump,
		Priority:    string(in.Priority),
		Status:      statusOf(in.IsCompleted),
		StartTime:   nullable(in.StartTime),
		Position:    in.Order,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return model.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return rowToTask(row), nil
}

// UpdateTask writes only the fields set in patch. Transient ids are rejected
// without contacting the store.
func (r *TaskRepository) UpdateTask(ctx context.Context, id model.TaskID, patch model.TaskPatch) error {
	if id.IsLocal() {
		return ErrTransientID
	}
	columns := patchToColumns(patch)
	if len(columns) == 0 {
		return nil
	}
	userID, ok := r.ids.CurrentUserID(ctx)
	if !ok {
		return identity.ErrNoIdentity
	}

	res := r.db.WithContext(ctx).Model(&model.TaskRow{}).
		Where("id = ? AND user_id = ?", id.Value(), userID).
		Updates(columns)
	if res.Error != nil {
		return fmt.Errorf("update task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update task %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteTask removes a task row. Transient ids are rejected without contacting the store.
func (r *TaskRepository) DeleteTask(ctx context.Context, id model.TaskID) error {
	if id.IsLocal() {
		return ErrTransientID
	}
	userID, ok := r.ids.CurrentUserID(ctx)
	if !ok {
		return identity.ErrNoIdentity
	}

	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id.Value(), userID).
		Delete(&model.TaskRow{}).Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// FetchTaskCountsByWeek aggregates scheduled tasks per durable week id.
func (r *TaskRepository) FetchTaskCountsByWeek(ctx context.Context) (map[string]model.WeekCounts, error) {
	counts := make(map[string]model.WeekCounts)
	userID, ok := r.ids.CurrentUserID(ctx)
	if !ok {
		return counts, nil
	}

	var rows []struct {
		WeekID    string
		Total     int
		Completed int
	}
	if err := r.db.WithContext(ctx).Model(&model.TaskRow{}).
		Select("week_id, COUNT(*) AS total, SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS completed", model.StatusCompleted).
		Where("user_id = ? AND is_brain_dump = ? AND week_id IS NOT NULL", userID, false).
		Group("week_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count tasks by week: %w", err)
	}

	for _, row := range rows {
		counts[row.WeekID] = model.WeekCounts{Total: row.Total, Completed: row.Completed}
	}
	return counts, nil
}

func rowToTask(row model.TaskRow) model.Task {
	return model.Task{
		ID:          model.DurableID(row.ID),
		Title:       row.Title,
		Description: deref(row.Description),
		IsCompleted: row.Status == model.StatusCompleted,
		Priority:    model.Priority(row.Priority),
		StartTime:   deref(row.StartTime),
		IsBrainDump: row.IsBrainDump,
		WeekID:      deref(row.WeekID),
		Date:        deref(row.TaskDate),
		Order:       row.Position,
		CreatedAt:   row.CreatedAt,
	}
}

func rowsToTasks(rows []model.TaskRow) []model.Task {
	tasks := make([]model.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, rowToTask(row))
	}
	return tasks
}

func patchToColumns(p model.TaskPatch) map[string]interface{} {
	columns := make(map[string]interface{})
	if p.Title != nil {
		columns["title"] = *p.Title
	}
	if p.Description != nil {
		columns["description"] = nullable(*p.Description)
	}
	if p.IsCompleted != nil {
		columns["status"] = statusOf(*p.IsCompleted)
	}
	if p.Priority != nil {
		columns["priority"] = string(*p.Priority)
	}
	if p.StartTime != nil {
		columns["start_time"] = nullable(*p.StartTime)
	}
	if p.IsBrainDump != nil {
		columns["is_brain_dump"] = *p.IsBrainDump
	}
	if p.WeekID != nil {
		columns["week_id"] = nullable(*p.WeekID)
	}
	if p.Date != nil {
		columns["task_date"] = nullable(*p.Date)
	}
	if p.Order != nil {
		columns["position"] = *p.Order
	}
	return columns
}

func statusOf(completed bool) string {
	if completed {
		return model.StatusCompleted
	}
	return model.StatusPending
}

// nullable maps "" to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
