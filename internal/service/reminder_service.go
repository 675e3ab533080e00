package service

import (
	"fmt"
	"html"
	"strings"
	"time"

	"weekly-planner/internal/model"
	"weekly-planner/internal/planner"
	"weekly-planner/internal/week"
)

// PlannerView is the read side of a planner used to render messages.
type PlannerView interface {
	WeekDisplayID() string
	TasksForDate(date string) []model.Task
	DayColumns() []planner.DayColumn
	BrainDump() []model.Task
	CurrentWeekMeta() (model.WeekMeta, bool)
	ReviewForWeek(displayID string) (model.WeeklyReview, bool)
	Stats() planner.Stats
}

// ReminderService builds human-readable summaries for notifications and listings.
type ReminderService struct {
	loc *time.Location
}

func NewReminderService(loc *time.Location) *ReminderService {
	if loc == nil {
		loc = time.Local
	}
	return &ReminderService{loc: loc}
}

// DailyDigest lists today's tasks in display order with the week's challenge.
func (s *ReminderService) DailyDigest(p PlannerView, now time.Time) string {
	now = now.In(s.loc)
	today := week.FormatDate(now)

	var b strings.Builder
	b.WriteString("📋 <b>Today</b>\n")
	b.WriteString(fmt.Sprintf("🗓 %s · %s\n\n", now.Format("Mon 02.01.2006"), p.WeekDisplayID()))

	meta, _ := p.CurrentWeekMeta()
	if meta.RestDay == today {
		b.WriteString("🛌 Rest day. Nothing has to happen today.\n\n")
	}

	tasks := p.TasksForDate(today)
	if len(tasks) == 0 {
		b.WriteString("— nothing planned\n")
	}
	for _, t := range tasks {
		b.WriteString(formatTask(t))
	}

	if meta.WeeklyChallenge != "" {
		mark := "⬜"
		if meta.HasProgress(today) {
			mark = "✅"
		}
		b.WriteString(fmt.Sprintf("\n🎯 <b>Challenge:</b> %s %s\n", escape(meta.WeeklyChallenge), mark))
	}
	if n := len(p.BrainDump()); n > 0 {
		b.WriteString(fmt.Sprintf("\n💡 %d idea(s) waiting in the inbox\n", n))
	}
	return strings.TrimSpace(b.String())
}

// ReviewReminder asks for the week's review. ok is false when the review is
// already written.
func (s *ReminderService) ReviewReminder(p PlannerView) (text string, ok bool) {
	display := p.WeekDisplayID()
	if _, done := p.ReviewForWeek(display); done {
		return "", false
	}
	st := p.Stats()

	var b strings.Builder
	b.WriteString(fmt.Sprintf("📝 <b>Weekly review</b> · %s\n\n", display))
	b.WriteString(fmt.Sprintf("Done %d of %d tasks (%d%%) on %d active day(s).\n", st.Completed, st.Total, st.Percentage, st.ActiveDays))
	if meta, ok := p.CurrentWeekMeta(); ok && meta.WeeklyChallenge != "" {
		b.WriteString(fmt.Sprintf("🎯 Challenge honoured on %d day(s).\n", len(meta.ChallengeProgress)))
	}
	b.WriteString("\nReply with <code>/review good | bad | learned</code>")
	return b.String(), true
}

// WeekOverview renders the seven day columns and numbers every task. ids[i]
// is the task shown as number i+1.
func (s *ReminderService) WeekOverview(p PlannerView) (text string, ids []model.TaskID) {
	var b strings.Builder
	meta, _ := p.CurrentWeekMeta()
	st := p.Stats()

	b.WriteString(fmt.Sprintf("🗓 <b>%s</b> · %d/%d done\n", p.WeekDisplayID(), st.Completed, st.Total))
	if meta.WeeklyChallenge != "" {
		b.WriteString(fmt.Sprintf("🎯 %s (%d/7)\n", escape(meta.WeeklyChallenge), len(meta.ChallengeProgress)))
	}

	for _, col := range p.DayColumns() {
		day, _ := week.ParseDate(col.Date)
		header := fmt.Sprintf("\n<b>%s %s</b>", day.Format("Mon"), day.Format("02.01"))
		if meta.RestDay == col.Date {
			header += " 🛌"
		}
		if meta.HasProgress(col.Date) {
			header += " 🎯"
		}
		b.WriteString(header + "\n")
		if len(col.Tasks) == 0 {
			b.WriteString("   —\n")
			continue
		}
		for _, t := range col.Tasks {
			ids = append(ids, t.ID)
			b.WriteString(fmt.Sprintf("%d. %s", len(ids), formatTask(t)))
		}
	}
	return strings.TrimSpace(b.String()), ids
}

// InboxList renders the brain dump with numbers, like WeekOverview.
func (s *ReminderService) InboxList(p PlannerView) (text string, ids []model.TaskID) {
	tasks := p.BrainDump()
	if len(tasks) == 0 {
		return "💡 Inbox is empty. Add ideas with /add without a date.", nil
	}
	var b strings.Builder
	b.WriteString("💡 <b>Inbox</b>\n")
	for _, t := range tasks {
		ids = append(ids, t.ID)
		b.WriteString(fmt.Sprintf("%d. %s", len(ids), formatTask(t)))
	}
	return strings.TrimSpace(b.String()), ids
}

// StatsText renders week statistics.
func (s *ReminderService) StatsText(p PlannerView) string {
	st := p.Stats()
	return fmt.Sprintf("📊 <b>%s</b>\nTotal: %d\nDone: %d (%d%%)\nRemaining: %d\nActive days: %d\nInbox: %d",
		p.WeekDisplayID(), st.Total, st.Completed, st.Percentage, st.Remaining, st.ActiveDays, st.BrainDump)
}

// WeeksList renders the weeks overview, newest first.
func (s *ReminderService) WeeksList(weeks []planner.WeekSummary) string {
	if len(weeks) == 0 {
		return "No weeks yet."
	}
	var b strings.Builder
	b.WriteString("📚 <b>Weeks</b>\n")
	for _, w := range weeks {
		line := fmt.Sprintf("%s · %s–%s · %d/%d (%d%%)", w.DisplayID, w.StartDate, w.EndDate, w.Completed, w.Total, w.Percentage)
		if w.Reviewed {
			line += " 📝"
		}
		if w.Challenge != "" {
			line += " · 🎯 " + escape(w.Challenge)
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimSpace(b.String())
}

func formatTask(t model.Task) string {
	var sb strings.Builder
	if t.IsCompleted {
		sb.WriteString("✅ ")
	} else {
		sb.WriteString(priorityIcon(t.Priority) + " ")
	}
	if t.StartTime != "" {
		sb.WriteString(fmt.Sprintf("<b>%s</b> ", shortTime(t.StartTime)))
	}
	title := escape(t.Title)
	if t.IsCompleted {
		title = "<s>" + title + "</s>"
	}
	sb.WriteString(title)
	if t.Description != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", escape(t.Description)))
	}
	sb.WriteByte('\n')
	return sb.String()
}

func priorityIcon(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return "🔴"
	case model.PriorityLow:
		return "🟢"
	case model.PriorityMeeting:
		return "📅"
	default:
		return "🟡"
	}
}

// shortTime drops the seconds of an HH:MM:SS start time.
func shortTime(s string) string {
	if len(s) == len("15:04:05") {
		return s[:5]
	}
	return s
}

func escape(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
