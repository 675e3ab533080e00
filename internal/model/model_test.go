package model

import (
	"encoding/json"
	"testing"
)

func TestTaskIDTagSurvivesJSON(t *testing.T) {
	in := []TaskID{DurableID("abc"), LocalID("xyz")}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out []TaskID
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out[0] != in[0] || out[1] != in[1] {
		t.Fatalf("got %v, want %v", out, in)
	}
	if out[0].IsLocal() || !out[1].IsLocal() {
		t.Fatal("local tag lost")
	}
	if DurableID("x") == LocalID("x") {
		t.Fatal("local and durable ids with the same value must differ")
	}
}

func TestNormalizeStartTime(t *testing.T) {
	tests := []struct{ in, want string }{
		{"09:00", "09:00:00"},
		{"9:05", "09:05:00"},
		{"14:30:15", "14:30:15"},
		{" 08:00 ", "08:00:00"},
		{"soon", "soon"},
	}
	for _, tt := range tests {
		if got := NormalizeStartTime(tt.in); got != tt.want {
			t.Errorf("NormalizeStartTime(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTaskPatchApply(t *testing.T) {
	task := Task{Title: "a", Date: "2026-02-07", Order: 1}
	title := "b"
	empty := ""
	bd := true
	TaskPatch{Title: &title, Date: &empty, IsBrainDump: &bd}.Apply(&task)
	if task.Title != "b" || task.Date != "" || !task.IsBrainDump || task.Order != 1 {
		t.Fatalf("unexpected task %+v", task)
	}
	if !(TaskPatch{}).IsEmpty() {
		t.Fatal("zero patch must be empty")
	}
}
