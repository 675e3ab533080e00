package main

import (
	"context"
	"testing"
	"time"

	"weekly-planner/internal/repository"
	pkgLog "weekly-planner/pkg/log"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	db, err := repository.NewDB(":memory:")
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	a := &app{db: db, l: pkgLog.NewNop()}
	t.Cleanup(a.close)
	return a
}

// currentUser reads the session id, failing if the call does not return.
func currentUser(t *testing.T, a *app) (string, bool) {
	t.Helper()
	type result struct {
		id string
		ok bool
	}
	done := make(chan result, 1)
	sess := a.signIn(context.Background())
	go func() {
		id, ok := sess.CurrentUserID(context.Background())
		done <- result{id, ok}
	}()
	select {
	case r := <-done:
		return r.id, r.ok
	case <-time.After(2 * time.Second):
		t.Fatal("CurrentUserID still waiting after sign in finished")
		return "", false
	}
}

func TestSignInUnknownAccountReportsNobody(t *testing.T) {
	a := newTestApp(t)

	a.account = "no-such-account"
	if id, ok := currentUser(t, a); ok {
		t.Errorf("unknown account signed in as %q", id)
	}

	a.account, a.telegramID = "", 42
	if id, ok := currentUser(t, a); ok {
		t.Errorf("unknown telegram id signed in as %q", id)
	}
}

func TestSignInKnownAccount(t *testing.T) {
	a := newTestApp(t)
	u, err := repository.NewUserRepository(a.db).UpsertFromTelegram(context.Background(), 42, "Ann", "", "ann")
	if err != nil {
		t.Fatal(err)
	}

	a.telegramID = 42
	if id, ok := currentUser(t, a); !ok || id != u.ID {
		t.Errorf("by telegram id: got %q %t, want %q", id, ok, u.ID)
	}

	a.telegramID, a.account = 0, u.ID
	if id, ok := currentUser(t, a); !ok || id != u.ID {
		t.Errorf("by account: got %q %t, want %q", id, ok, u.ID)
	}
}
