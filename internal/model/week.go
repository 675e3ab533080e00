package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WeekRow is the durable record of one calendar week for one account.
type WeekRow struct {
	ID                string   `gorm:"primaryKey;type:varchar(36)"`
	UserID            string   `gorm:"not null;uniqueIndex:idx_weeks_owner_year_number"`
	Year              int      `gorm:"not null;uniqueIndex:idx_weeks_owner_year_number"`
	WeekNumber        int      `gorm:"not null;uniqueIndex:idx_weeks_owner_year_number"`
	StartDate         string   `gorm:"not null"`
	EndDate           string   `gorm:"not null"`
	WeeklyChallenge   *string
	ChallengeProgress []string `gorm:"serializer:json"`
	ReviewGood        *string
	ReviewBad         *string
	ReviewLearned     *string
	RestDay           *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (WeekRow) TableName() string { return "weeks" }

func (r *WeekRow) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// WeekPatch is a partial update of week metadata.
type WeekPatch struct {
	WeeklyChallenge   *string
	ChallengeProgress *[]string
	ReviewGood        *string
	ReviewBad         *string
	ReviewLearned     *string
	// RestDay set to "" clears the rest day.
	RestDay *string
}

func (p WeekPatch) IsEmpty() bool {
	return p.WeeklyChallenge == nil && p.ChallengeProgress == nil && p.ReviewGood == nil &&
		p.ReviewBad == nil && p.ReviewLearned == nil && p.RestDay == nil
}

// WeekMeta is planner-side metadata for one calendar week.
type WeekMeta struct {
	DisplayID         string    `json:"weekId"`
	DurableID         string    `json:"weekDbId,omitempty"`
	WeeklyChallenge   string    `json:"weeklyChallenge"`
	ChallengeProgress []string  `json:"challengeProgress"`
	RestDay           string    `json:"restDay,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// HasProgress reports whether date is marked in the challenge progress.
func (m WeekMeta) HasProgress(date string) bool {
	for _, d := range m.ChallengeProgress {
		if d == date {
			return true
		}
	}
	return false
}

// WeeklyReview is the end-of-week retrospective. At most one per week.
type WeeklyReview struct {
	ID            string    `json:"id"`
	WeekDisplayID string    `json:"weekId"`
	Good          string    `json:"good"`
	Bad           string    `json:"bad"`
	Learned       string    `json:"learned"`
	CompletedAt   time.Time `json:"completedAt"`
}

// WeekCounts aggregates scheduled tasks of one durable week.
type WeekCounts struct {
	Total     int
	Completed int
}
