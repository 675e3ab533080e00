package week

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"weekly-planner/internal/identity"
	"weekly-planner/internal/model"
	pkgLog "weekly-planner/pkg/log"
)

func date(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCalendar(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		start     string
		end       string
		year      int
		number    int
		displayID string
	}{
		{"saturday opens week", "2026-02-07", "2026-02-07", "2026-02-13", 2026, 7, "2026-W07"},
		{"friday closes week", "2026-02-13", "2026-02-07", "2026-02-13", 2026, 7, "2026-W07"},
		{"week straddling new year belongs to new year", "2025-12-30", "2025-12-27", "2026-01-02", 2026, 1, "2026-W01"},
		{"last full week of the old year", "2025-12-26", "2025-12-20", "2025-12-26", 2025, 52, "2025-W52"},
		{"53 week year", "2021-12-31", "2021-12-25", "2021-12-31", 2021, 53, "2021-W53"},
		{"new year on saturday", "2022-01-01", "2022-01-01", "2022-01-07", 2022, 1, "2022-W01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := date(tt.in)
			if got := FormatDate(Start(d)); got != tt.start {
				t.Errorf("Start = %s, want %s", got, tt.start)
			}
			if got := FormatDate(End(d)); got != tt.end {
				t.Errorf("End = %s, want %s", got, tt.end)
			}
			if got := Year(d); got != tt.year {
				t.Errorf("Year = %d, want %d", got, tt.year)
			}
			if got := Number(d); got != tt.number {
				t.Errorf("Number = %d, want %d", got, tt.number)
			}
			if got := DisplayID(d); got != tt.displayID {
				t.Errorf("DisplayID = %s, want %s", got, tt.displayID)
			}
		})
	}
}

func TestStartIgnoresClockAndZone(t *testing.T) {
	zone := time.FixedZone("UTC+14", 14*3600)
	late := time.Date(2026, 2, 13, 23, 59, 0, 0, zone)
	if got := FormatDate(Start(late)); got != "2026-02-07" {
		t.Fatalf("Start = %s", got)
	}
	days := Days(late)
	if len(days) != 7 || days[0].Weekday() != time.Saturday || days[6].Weekday() != time.Friday {
		t.Fatalf("unexpected days %v", days)
	}
}

type fakeStore struct {
	mu        sync.Mutex
	rows      map[string]model.WeekRow
	finds     int
	creates   int
	createErr error
	// raceRow is inserted just before a create fails, simulating a concurrent writer.
	raceRow    *model.WeekRow
	createWait time.Duration
	// findGate, when set, holds every find until it closes or ctx ends.
	// findStarted receives a value as each find begins.
	findGate    chan struct{}
	findStarted chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]model.WeekRow)}
}

func storeKey(userID string, year, number int) string {
	return cacheKey{userID: userID, year: year, number: number}.String()
}

func (s *fakeStore) FindWeek(ctx context.Context, userID string, year, number int) (model.WeekRow, bool, error) {
	if s.findStarted != nil {
		s.findStarted <- struct{}{}
	}
	if s.findGate != nil {
		select {
		case <-s.findGate:
		case <-ctx.Done():
			return model.WeekRow{}, false, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	row, ok := s.rows[storeKey(userID, year, number)]
	return row, ok, nil
}

func (s *fakeStore) CreateWeek(_ context.Context, row *model.WeekRow) error {
	time.Sleep(s.createWait)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	k := storeKey(row.UserID, row.Year, row.WeekNumber)
	if s.raceRow != nil {
		s.rows[k] = *s.raceRow
		return errors.New("duplicate key")
	}
	if s.createErr != nil {
		return s.createErr
	}
	if _, exists := s.rows[k]; exists {
		return errors.New("duplicate key")
	}
	row.ID = "week-" + k
	s.rows[k] = *row
	return nil
}

func TestResolveOrCreateCreatesAndCaches(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, identity.Static("acc"), NewCache(), pkgLog.NewNop())

	row, err := r.ResolveOrCreate(context.Background(), date("2026-02-10"))
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	if row.Year != 2026 || row.WeekNumber != 7 || row.StartDate != "2026-02-07" || row.EndDate != "2026-02-13" {
		t.Fatalf("unexpected row %+v", row)
	}

	again, err := r.ResolveOrCreate(context.Background(), date("2026-02-12"))
	if err != nil {
		t.Fatalf("ResolveOrCreate again: %v", err)
	}
	if again.ID != row.ID {
		t.Fatalf("ids differ: %s vs %s", again.ID, row.ID)
	}
	if store.finds != 1 || store.creates != 1 {
		t.Fatalf("finds=%d creates=%d, want 1/1", store.finds, store.creates)
	}
}

func TestResolveOrCreateNoIdentity(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, identity.Static(""), nil, pkgLog.NewNop())

	_, err := r.ResolveOrCreate(context.Background(), date("2026-02-10"))
	if !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("err = %v, want ErrNoIdentity", err)
	}
	if store.finds != 0 || store.creates != 0 {
		t.Fatal("store must not be contacted without identity")
	}
}

func TestResolveOrCreateRequeriesOnConflict(t *testing.T) {
	store := newFakeStore()
	store.raceRow = &model.WeekRow{ID: "winner", UserID: "acc", Year: 2026, WeekNumber: 7}
	r := NewResolver(store, identity.Static("acc"), nil, pkgLog.NewNop())

	row, err := r.ResolveOrCreate(context.Background(), date("2026-02-10"))
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	if row.ID != "winner" {
		t.Fatalf("row.ID = %s, want winner", row.ID)
	}
}

func TestResolveOrCreateFailsWhenRequeryFindsNothing(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("store down")
	r := NewResolver(store, identity.Static("acc"), nil, pkgLog.NewNop())

	if _, err := r.ResolveOrCreate(context.Background(), date("2026-02-10")); err == nil {
		t.Fatal("expected error")
	}
	// Failures are not cached.
	store.createErr = nil
	if _, err := r.ResolveOrCreate(context.Background(), date("2026-02-10")); err != nil {
		t.Fatalf("second attempt: %v", err)
	}
}

func TestResolveOrCreateConcurrentCallsCreateOnce(t *testing.T) {
	store := newFakeStore()
	store.createWait = 20 * time.Millisecond
	cache := NewCache()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Separate resolvers sharing a cache, like two sessions of one account.
			r := NewResolver(store, identity.Static("acc"), cache, pkgLog.NewNop())
			row, err := r.ResolveOrCreate(context.Background(), date("2026-02-10"))
			if err != nil {
				t.Errorf("ResolveOrCreate: %v", err)
				return
			}
			ids[i] = row.ID
		}(i)
	}
	wg.Wait()

	if store.creates != 1 {
		t.Fatalf("creates = %d, want 1", store.creates)
	}
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("callers observed different rows: %v", ids)
		}
	}
	if cache.Len() != 1 {
		t.Fatalf("cache.Len = %d", cache.Len())
	}
}

func TestResolveOrCreateSurvivesCancelledWaiter(t *testing.T) {
	store := newFakeStore()
	store.findGate = make(chan struct{})
	store.findStarted = make(chan struct{}, 4)
	cache := NewCache()
	newResolver := func() *Resolver {
		return NewResolver(store, identity.Static("acc"), cache, pkgLog.NewNop())
	}

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := newResolver().ResolveOrCreate(ctx, date("2026-02-10"))
		first <- err
	}()
	<-store.findStarted

	type result struct {
		row model.WeekRow
		err error
	}
	second := make(chan result, 1)
	go func() {
		row, err := newResolver().ResolveOrCreate(context.Background(), date("2026-02-10"))
		second <- result{row, err}
	}()
	// Let the second caller join the lookup in flight.
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-first:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("cancelled caller: err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller still waiting")
	}

	close(store.findGate)
	res := <-second
	if res.err != nil {
		t.Fatalf("other caller failed with the cancelled caller: %v", res.err)
	}
	if res.row.ID == "" || res.row.WeekNumber != 7 {
		t.Fatalf("row = %+v", res.row)
	}
	if store.creates != 1 {
		t.Fatalf("creates = %d, want 1", store.creates)
	}
}

func TestCacheIsPerAccount(t *testing.T) {
	store := newFakeStore()
	cache := NewCache()
	a := NewResolver(store, identity.Static("a"), cache, pkgLog.NewNop())
	b := NewResolver(store, identity.Static("b"), cache, pkgLog.NewNop())

	ra, _ := a.ResolveOrCreate(context.Background(), date("2026-02-10"))
	rb, _ := b.ResolveOrCreate(context.Background(), date("2026-02-10"))
	if ra.ID == rb.ID {
		t.Fatal("accounts must not share week rows")
	}
}
