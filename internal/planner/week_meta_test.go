package planner

import (
	"context"
	"testing"
	"time"
)

func TestSaveReviewTwiceUpdatesSingleReview(t *testing.T) {
	h := newHarness(t)

	first := h.p.SaveReview("shipped", "slept late", "plan mornings")
	h.clock.Advance(time.Hour)
	second := h.p.SaveReview("shipped twice", "", "plan evenings")

	reviews := h.p.Reviews()
	if len(reviews) != 1 {
		t.Fatalf("got %d reviews, want 1", len(reviews))
	}
	if second.ID != first.ID {
		t.Error("second save created a new review")
	}
	if !second.CompletedAt.After(first.CompletedAt) {
		t.Errorf("completedAt not advanced: %v then %v", first.CompletedAt, second.CompletedAt)
	}
	if reviews[0].Good != "shipped twice" || reviews[0].Bad != "" || reviews[0].Learned != "plan evenings" {
		t.Errorf("review = %+v", reviews[0])
	}

	h.p.Wait()
	row, ok := h.weeks.row("week-2026-W07")
	if !ok {
		t.Fatal("week not resolved for review")
	}
	if deref(row.ReviewGood) != "shipped twice" || deref(row.ReviewLearned) != "plan evenings" {
		t.Errorf("stored review = %v / %v", deref(row.ReviewGood), deref(row.ReviewLearned))
	}
}

func TestReviewsArePerWeek(t *testing.T) {
	h := newHarness(t)
	h.p.SaveReview("w7", "", "")
	h.p.GoToNextWeek()
	h.p.SaveReview("w8", "", "")

	if got := len(h.p.Reviews()); got != 2 {
		t.Fatalf("got %d reviews", got)
	}
	r, ok := h.p.ReviewForWeek("2026-W07")
	if !ok || r.Good != "w7" {
		t.Errorf("W07 review = %+v", r)
	}
	if _, ok := h.p.ReviewForWeek("2026-W09"); ok {
		t.Error("review for a week that has none")
	}
}

func TestWeeklyChallenge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.p.SyncWeek(ctx, today); err != nil {
		t.Fatal(err)
	}

	meta := h.p.SetWeeklyChallenge("  10k steps ")
	if meta.WeeklyChallenge != "10k steps" {
		t.Errorf("challenge = %q", meta.WeeklyChallenge)
	}
	if _, err := h.p.ToggleChallengeDay("2026-02-08"); err != nil {
		t.Fatal(err)
	}
	meta, _ = h.p.ToggleChallengeDay("2026-02-09")
	if !meta.HasProgress("2026-02-08") || !meta.HasProgress("2026-02-09") {
		t.Errorf("progress = %v", meta.ChallengeProgress)
	}
	meta, _ = h.p.ToggleChallengeDay("2026-02-08")
	if meta.HasProgress("2026-02-08") || len(meta.ChallengeProgress) != 1 {
		t.Errorf("untoggle left progress = %v", meta.ChallengeProgress)
	}
	if _, err := h.p.ToggleChallengeDay("monday"); err == nil {
		t.Error("bad date accepted")
	}

	h.p.Wait()
	row, _ := h.weeks.row("week-2026-W07")
	if deref(row.WeeklyChallenge) != "10k steps" {
		t.Errorf("stored challenge = %q", deref(row.WeeklyChallenge))
	}
	if len(row.ChallengeProgress) != 1 || row.ChallengeProgress[0] != "2026-02-09" {
		t.Errorf("stored progress = %v", row.ChallengeProgress)
	}
}

func TestSetRestDayToggles(t *testing.T) {
	h := newHarness(t)

	meta, err := h.p.SetRestDay("2026-02-13")
	if err != nil {
		t.Fatal(err)
	}
	if meta.RestDay != "2026-02-13" {
		t.Fatalf("rest day = %q", meta.RestDay)
	}
	h.p.Wait()
	row, _ := h.weeks.row("week-2026-W07")
	if deref(row.RestDay) != "2026-02-13" {
		t.Errorf("stored rest day = %q", deref(row.RestDay))
	}

	meta, _ = h.p.SetRestDay("2026-02-12")
	if meta.RestDay != "2026-02-12" {
		t.Errorf("moved rest day = %q", meta.RestDay)
	}
	meta, _ = h.p.SetRestDay("2026-02-12")
	if meta.RestDay != "" {
		t.Errorf("second set did not clear: %q", meta.RestDay)
	}
	h.p.Wait()
	row, _ = h.weeks.row("week-2026-W07")
	if row.RestDay != nil {
		t.Errorf("stored rest day not cleared: %q", *row.RestDay)
	}
}

func TestWeekMetaKeptLocallyWithoutIdentity(t *testing.T) {
	h := newHarness(t)
	h.weeks.setResolveErr(errStore)

	h.p.SetWeeklyChallenge("offline")
	h.p.Wait()

	meta, ok := h.p.CurrentWeekMeta()
	if !ok || meta.WeeklyChallenge != "offline" {
		t.Errorf("local meta = %+v", meta)
	}
	if len(h.weeks.updates) != 0 {
		t.Error("week written without a resolved row")
	}
}
