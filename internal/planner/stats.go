package planner

import (
	"context"
	"fmt"
	"math"

	"weekly-planner/internal/model"
	"weekly-planner/internal/week"
)

// Stats summarizes the current week.
type Stats struct {
	Total      int
	Completed  int
	Remaining  int
	Percentage int
	BrainDump  int
	ActiveDays int
}

func (p *Planner) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	var s Stats
	for _, d := range week.Days(p.currentDate) {
		tasks := p.dayTasks(week.FormatDate(d))
		if len(tasks) > 0 {
			s.ActiveDays++
		}
		for _, t := range tasks {
			s.Total++
			if t.IsCompleted {
				s.Completed++
			}
		}
	}
	s.Remaining = s.Total - s.Completed
	s.Percentage = percentage(s.Completed, s.Total)
	s.BrainDump = len(p.brainDump)
	return s
}

func percentage(done, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(done) * 100 / float64(total)))
}

// WeekLister lists the account's durable weeks, newest first.
type WeekLister interface {
	ListWeeks(ctx context.Context) ([]model.WeekRow, error)
}

// TaskCounter aggregates scheduled tasks per durable week.
type TaskCounter interface {
	FetchTaskCountsByWeek(ctx context.Context) (map[string]model.WeekCounts, error)
}

// WeekSummary is one row of the weeks overview.
type WeekSummary struct {
	DisplayID  string `json:"weekId" yaml:"week"`
	DurableID  string `json:"id" yaml:"id"`
	StartDate  string `json:"startDate" yaml:"start"`
	EndDate    string `json:"endDate" yaml:"end"`
	Challenge  string `json:"challenge,omitempty" yaml:"challenge,omitempty"`
	Total      int    `json:"total" yaml:"total"`
	Completed  int    `json:"completed" yaml:"completed"`
	Percentage int    `json:"percentage" yaml:"percentage"`
	Reviewed   bool   `json:"reviewed" yaml:"reviewed"`
}

// Overview joins the account's weeks with their task counts.
func Overview(ctx context.Context, weeks WeekLister, counts TaskCounter) ([]WeekSummary, error) {
	rows, err := weeks.ListWeeks(ctx)
	if err != nil {
		return nil, fmt.Errorf("weeks overview: %w", err)
	}
	byWeek, err := counts.FetchTaskCountsByWeek(ctx)
	if err != nil {
		return nil, fmt.Errorf("weeks overview: %w", err)
	}

	out := make([]WeekSummary, 0, len(rows))
	for _, row := range rows {
		c := byWeek[row.ID]
		out = append(out, WeekSummary{
			DisplayID:  fmt.Sprintf("%d-W%02d", row.Year, row.WeekNumber),
			DurableID:  row.ID,
			StartDate:  row.StartDate,
			EndDate:    row.EndDate,
			Challenge:  deref(row.WeeklyChallenge),
			Total:      c.Total,
			Completed:  c.Completed,
			Percentage: percentage(c.Completed, c.Total),
			Reviewed:   deref(row.ReviewGood) != "" || deref(row.ReviewBad) != "" || deref(row.ReviewLearned) != "",
		})
	}
	return out, nil
}
