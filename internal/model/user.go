package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User maps a Telegram account to the planner account id that owns rows.
type User struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	TelegramID int64  `gorm:"uniqueIndex"`
	FirstName  string
	LastName   string
	Username   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
