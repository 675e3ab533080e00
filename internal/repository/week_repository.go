package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"weekly-planner/internal/identity"
	"weekly-planner/internal/model"
)

// WeekRepository manages durable week rows.
type WeekRepository struct {
	db  *gorm.DB
	ids identity.Provider
}

func NewWeekRepository(db *gorm.DB, ids identity.Provider) *WeekRepository {
	return &WeekRepository{db: db, ids: ids}
}

func (r *WeekRepository) FindWeek(ctx context.Context, userID string, year, number int) (model.WeekRow, bool, error) {
	var row model.WeekRow
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND year = ? AND week_number = ?", userID, year, number).
		First(&row).Error
	switch {
	case err == nil:
		return row, true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return model.WeekRow{}, false, nil
	default:
		return model.WeekRow{}, false, fmt.Errorf("find week: %w", err)
	}
}

// CreateWeek inserts row. A duplicate (account, year, week) yields ErrConflict.
func (r *WeekRepository) CreateWeek(ctx context.Context, row *model.WeekRow) error {
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("create week: %w", ErrConflict)
		}
		return fmt.Errorf("create week: %w", err)
	}
	return nil
}

// GetWeek loads one of the account's weeks by durable id.
func (r *WeekRepository) GetWeek(ctx context.Context, id string) (model.WeekRow, error) {
	userID, ok := r.ids.CurrentUserID(ctx)
	if !ok {
		return model.WeekRow{}, identity.ErrNoIdentity
	}
	var row model.WeekRow
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&row).Error
	switch {
	case err == nil:
		return row, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return model.WeekRow{}, fmt.Errorf("get week %s: %w", id, ErrNotFound)
	default:
		return model.WeekRow{}, fmt.Errorf("get week: %w", err)
	}
}

// UpdateWeek writes challenge, progress, review and rest-day fields.
func (r *WeekRepository) UpdateWeek(ctx context.Context, id string, patch model.WeekPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	userID, ok := r.ids.CurrentUserID(ctx)
	if !ok {
		return identity.ErrNoIdentity
	}

	updates := model.WeekRow{}
	var columns []string
	if patch.WeeklyChallenge != nil {
		updates.WeeklyChallenge = patch.WeeklyChallenge
		columns = append(columns, "WeeklyChallenge")
	}
	if patch.ChallengeProgress != nil {
		updates.ChallengeProgress = *patch.ChallengeProgress
		if updates.ChallengeProgress == nil {
			updates.ChallengeProgress = []string{}
		}
		columns = append(columns, "ChallengeProgress")
	}
	if patch.ReviewGood != nil {
		updates.ReviewGood = patch.ReviewGood
		columns = append(columns, "ReviewGood")
	}
	if patch.ReviewBad != nil {
		updates.ReviewBad = patch.ReviewBad
		columns = append(columns, "ReviewBad")
	}
	if patch.ReviewLearned != nil {
		updates.ReviewLearned = patch.ReviewLearned
		columns = append(columns, "ReviewLearned")
	}
	if patch.RestDay != nil {
		updates.RestDay = nullable(*patch.RestDay)
		columns = append(columns, "RestDay")
	}

	res := r.db.WithContext(ctx).Model(&model.WeekRow{}).
		Where("id = ? AND user_id = ?", id, userID).
		Select(columns).
		Updates(&updates)
	if res.Error != nil {
		return fmt.Errorf("update week: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update week %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListWeeks returns all of the account's weeks, newest first.
func (r *WeekRepository) ListWeeks(ctx context.Context) ([]model.WeekRow, error) {
	userID, ok := r.ids.CurrentUserID(ctx)
	if !ok {
		return nil, nil
	}
	var rows []model.WeekRow
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("year DESC, week_number DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list weeks: %w", err)
	}
	return rows, nil
}
