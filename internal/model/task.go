package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Priority of a task. Meeting marks a scheduled appointment.
type Priority string

const (
	PriorityHigh    Priority = "high"
	PriorityMedium  Priority = "medium"
	PriorityLow     Priority = "low"
	PriorityMeeting Priority = "meeting"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow, PriorityMeeting:
		return true
	}
	return false
}

// Task status values stored in the status column.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Task is a unit of work or an idea, as held by the planner.
// Date is empty exactly when IsBrainDump is true.
type Task struct {
	ID          TaskID    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	IsCompleted bool      `json:"isCompleted"`
	Priority    Priority  `json:"priority"`
	StartTime   string    `json:"startTime,omitempty"`
	IsBrainDump bool      `json:"isBrainDump"`
	WeekID      string    `json:"weekId,omitempty"`
	Date        string    `json:"date,omitempty"`
	Order       float64   `json:"order"`
	CreatedAt   time.Time `json:"createdAt"`
}

// IsMeetingLike reports whether the task sorts with appointments.
func (t Task) IsMeetingLike() bool {
	return t.StartTime != "" || t.Priority == PriorityMeeting
}

// TaskPatch is a partial task update. Nil fields are left untouched; an
// empty string on StartTime, WeekID or Date clears the value.
type TaskPatch struct {
	Title       *string
	Description *string
	IsCompleted *bool
	Priority    *Priority
	StartTime   *string
	IsBrainDump *bool
	WeekID      *string
	Date        *string
	Order       *float64
}

func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.IsCompleted == nil && p.Priority == nil &&
		p.StartTime == nil && p.IsBrainDump == nil && p.WeekID == nil && p.Date == nil && p.Order == nil
}

// Apply copies the set fields onto t.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.IsCompleted != nil {
		t.IsCompleted = *p.IsCompleted
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.StartTime != nil {
		t.StartTime = *p.StartTime
	}
	if p.IsBrainDump != nil {
		t.IsBrainDump = *p.IsBrainDump
	}
	if p.WeekID != nil {
		t.WeekID = *p.WeekID
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Order != nil {
		t.Order = *p.Order
	}
}

// NewTask carries the fields needed to insert a task row.
type NewTask struct {
	Title       string
	Description string
	IsCompleted bool
	Priority    Priority
	StartTime   string
	IsBrainDump bool
	WeekID      string
	Date        string
	Order       float64
}

// TaskRow is the stored shape of a task in the tasks table.
type TaskRow struct {
	ID          string  `gorm:"primaryKey;type:varchar(36)"`
	UserID      string  `gorm:"index;not null"`
	WeekID      *string `gorm:"index"`
	Title       string  `gorm:"not null"`
	Description *string
	TaskDate    *string
	IsBrainDump bool    `gorm:"index;default:false"`
	Priority    string  `gorm:"default:medium"`
	Status      string  `gorm:"default:pending"`
	StartTime   *string
	Position    float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (TaskRow) TableName() string { return "tasks" }

func (r *TaskRow) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// NormalizeStartTime rewrites a time-of-day as HH:MM:SS so values compare as
// text. Unparseable input is returned trimmed.
func NormalizeStartTime(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("15:04:05")
		}
	}
	return s
}
