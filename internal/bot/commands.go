package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"weekly-planner/internal/model"
	"weekly-planner/internal/planner"
	"weekly-planner/internal/week"
)

var (
	errNoArgs     = errors.New("missing arguments")
	errBadNumber  = errors.New("task number must be a positive integer")
	errBadDate    = errors.New("unknown date")
	errEmptyTitle = errors.New("title is empty")
)

const inboxWord = "inbox"

// parseDate understands "inbox", "today", "tomorrow", weekday names inside
// the shown week, YYYY-MM-DD and DD.MM (year of the shown week). inbox is
// true for the brain dump.
func parseDate(arg string, now, shown time.Time) (date string, inbox bool, err error) {
	clean := strings.ToLower(strings.TrimSpace(arg))
	switch clean {
	case "":
		return "", false, errBadDate
	case inboxWord, "-":
		return "", true, nil
	case "today":
		return week.FormatDate(now), false, nil
	case "tomorrow":
		return week.FormatDate(now.AddDate(0, 0, 1)), false, nil
	}

	for _, d := range week.Days(shown) {
		name := strings.ToLower(d.Weekday().String())
		if clean == name || clean == name[:3] {
			return week.FormatDate(d), false, nil
		}
	}

	if t, err := week.ParseDate(clean); err == nil {
		return week.FormatDate(t), false, nil
	}
	if t, err := time.Parse("02.01", clean); err == nil {
		t = time.Date(week.Start(shown).Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return week.FormatDate(t), false, nil
	}
	return "", false, fmt.Errorf("%w: %q", errBadDate, arg)
}

func parsePriority(tok string) (model.Priority, bool) {
	if !strings.HasPrefix(tok, "!") {
		return "", false
	}
	p := model.Priority(strings.ToLower(strings.TrimPrefix(tok, "!")))
	return p, p.Valid()
}

func isClock(tok string) bool {
	_, err := time.Parse("15:04", tok)
	return err == nil
}

// parseAdd reads "/add [date|inbox] [HH:MM] [!priority] title [| description]".
// Without a date the task goes to today.
func parseAdd(args string, now, shown time.Time) (planner.AddTaskInput, error) {
	var in planner.AddTaskInput
	head, desc, _ := strings.Cut(args, "|")
	in.Description = strings.TrimSpace(desc)

	fields := strings.Fields(head)
	if len(fields) == 0 {
		return in, errNoArgs
	}

	in.Date = week.FormatDate(now)
	if date, inbox, err := parseDate(fields[0], now, shown); err == nil {
		in.Date, in.IsBrainDump = date, inbox
		fields = fields[1:]
	}
	if in.IsBrainDump {
		in.Date = ""
	}

	for len(fields) > 0 {
		tok := fields[0]
		if p, ok := parsePriority(tok); ok {
			in.Priority = p
		} else if isClock(tok) {
			in.StartTime = tok
		} else {
			break
		}
		fields = fields[1:]
	}

	in.Title = strings.Join(fields, " ")
	if in.Title == "" {
		return in, errEmptyTitle
	}
	return in, nil
}

func parseNumber(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, errBadNumber
	}
	return n, nil
}

// moveArgs is "/move N date|inbox [position]". Position is 1-based; zero
// means the end of the destination.
type moveArgs struct {
	number   int
	date     string
	position int
}

func parseMove(args string, now, shown time.Time) (moveArgs, error) {
	fields := strings.Fields(args)
	if len(fields) < 2 || len(fields) > 3 {
		return moveArgs{}, errNoArgs
	}
	n, err := parseNumber(fields[0])
	if err != nil {
		return moveArgs{}, err
	}
	date, _, err := parseDate(fields[1], now, shown)
	if err != nil {
		return moveArgs{}, err
	}
	out := moveArgs{number: n, date: date}
	if len(fields) == 3 {
		if out.position, err = parseNumber(fields[2]); err != nil {
			return moveArgs{}, err
		}
	}
	return out, nil
}

// parseNumberAndDate reads "N date".
func parseNumberAndDate(args string, now, shown time.Time) (int, string, bool, error) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return 0, "", false, errNoArgs
	}
	n, err := parseNumber(fields[0])
	if err != nil {
		return 0, "", false, err
	}
	date, inbox, err := parseDate(fields[1], now, shown)
	return n, date, inbox, err
}

// parseReview splits "good | bad | learned". Missing parts are empty.
func parseReview(args string) (good, bad, learned string, err error) {
	if strings.TrimSpace(args) == "" {
		return "", "", "", errNoArgs
	}
	parts := strings.SplitN(args, "|", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]), nil
}

func parseSortKeys(args string) ([]planner.SortKey, error) {
	fields := strings.FieldsFunc(strings.ToLower(args), func(r rune) bool {
		return r == ',' || r == ' '
	})
	return planner.ParseSortPreferences(fields)
}
