package main

import (
	"bytes"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"weekly-planner/internal/planner"
)

var sampleWeeks = []planner.WeekSummary{
	{DisplayID: "2026-W08", StartDate: "2026-02-14", EndDate: "2026-02-20", Total: 2},
	{DisplayID: "2026-W07", StartDate: "2026-02-07", EndDate: "2026-02-13", Challenge: "walk", Total: 4, Completed: 3, Percentage: 75, Reviewed: true},
}

func TestWriteWeeksText(t *testing.T) {
	var buf bytes.Buffer
	if err := writeWeeks(&buf, sampleWeeks, "text"); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "WEEK") || !strings.HasPrefix(lines[1], "2026-W08") {
		t.Errorf("unexpected layout:\n%s", buf.String())
	}
	if f := strings.Fields(lines[2]); len(f) != 8 || f[3] != "3" || f[6] != "yes" || f[7] != "walk" {
		t.Errorf("W07 row = %q", lines[2])
	}
}

func TestWriteWeeksYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := writeWeeks(&buf, sampleWeeks, "yaml"); err != nil {
		t.Fatal(err)
	}
	var got []planner.WeekSummary
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}
	if len(got) != 2 || got[1] != sampleWeeks[1] {
		t.Errorf("got %+v", got)
	}
}

func TestWriteWeeksUnknownFormat(t *testing.T) {
	if err := writeWeeks(&bytes.Buffer{}, nil, "xml"); err == nil {
		t.Error("xml accepted")
	}
}
