package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"weekly-planner/internal/identity"
	"weekly-planner/internal/model"
	"weekly-planner/internal/planner"
	"weekly-planner/internal/repository"
	"weekly-planner/internal/week"
	pkgLog "weekly-planner/pkg/log"
)

// Session is one account's open planner plus the numbering of the last list
// shown to it.
type Session struct {
	UserID  string
	Planner *planner.Planner

	mu      sync.Mutex
	listing []model.TaskID
}

// SetListing remembers which task each shown number refers to.
func (s *Session) SetListing(ids []model.TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listing = append([]model.TaskID(nil), ids...)
}

// Pick returns the task shown as number n (1-based) in the last listing.
func (s *Session) Pick(n int) (model.TaskID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 1 || n > len(s.listing) {
		return model.TaskID{}, false
	}
	return s.listing[n-1], true
}

type PlannerOptions struct {
	SortPreferences []string
	RemoteTimeout   time.Duration
	SessionTTL      time.Duration
	SessionLimit    int
	Now             func() time.Time
}

// PlannerService opens planners per account and keeps recently used ones in memory.
type PlannerService struct {
	db        *gorm.DB
	weekCache *week.Cache
	sessions  *expirable.LRU[string, *Session]
	opens     singleflight.Group
	syncs     singleflight.Group
	opts      PlannerOptions
	sortPrefs []planner.SortKey
	l         pkgLog.Logger
}

func NewPlannerService(db *gorm.DB, opts PlannerOptions, l pkgLog.Logger) (*PlannerService, error) {
	prefs := planner.DefaultSortPreferences()
	if len(opts.SortPreferences) > 0 {
		var err error
		if prefs, err = planner.ParseSortPreferences(opts.SortPreferences); err != nil {
			return nil, err
		}
	}
	if opts.SessionLimit <= 0 {
		opts.SessionLimit = 1000
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &PlannerService{
		db:        db,
		weekCache: week.NewCache(),
		sessions:  expirable.NewLRU[string, *Session](opts.SessionLimit, nil, opts.SessionTTL),
		opts:      opts,
		sortPrefs: prefs,
		l:         l,
	}, nil
}

// Open returns the account's session, creating and syncing a planner for
// the current week when none is cached.
func (s *PlannerService) Open(ctx context.Context, userID string) (*Session, error) {
	if sess, ok := s.sessions.Get(userID); ok {
		return sess, nil
	}
	v, err, _ := s.opens.Do(userID, func() (interface{}, error) {
		if sess, ok := s.sessions.Get(userID); ok {
			return sess, nil
		}
		return s.open(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (s *PlannerService) open(ctx context.Context, userID string) (*Session, error) {
	p, err := s.newPlanner(userID)
	if err != nil {
		return nil, err
	}
	sess := &Session{UserID: userID, Planner: p}
	if err := s.Sync(ctx, sess); err != nil {
		s.l.Warnf(ctx, "planner: initial sync for %s: %v", userID, err)
	}
	s.sessions.Add(userID, sess)
	return sess, nil
}

func (s *PlannerService) newPlanner(userID string) (*planner.Planner, error) {
	ids := identity.Static(userID)
	tasks := repository.NewTaskRepository(s.db, ids, s.l)
	weeks := repository.NewWeekRepository(s.db, ids)
	resolver := week.NewResolver(weeks, ids, s.weekCache, s.l)

	p, err := planner.New(tasks, weeks, resolver, s.l, planner.Options{
		BaseContext:     pkgLog.WithAccount(context.Background(), userID),
		RemoteTimeout:   s.opts.RemoteTimeout,
		SortPreferences: s.sortPrefs,
		Now:             s.opts.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("open planner: %w", err)
	}
	return p, nil
}

// View returns a planner showing the account's current week. An open session
// already on that week is reused; otherwise a separate planner is synced, so
// the week a session is browsing never changes.
func (s *PlannerService) View(ctx context.Context, userID string) (*planner.Planner, error) {
	today := s.opts.Now()
	if sess, ok := s.sessions.Get(userID); ok && sess.Planner.WeekDisplayID() == week.DisplayID(today) {
		return sess.Planner, nil
	}
	p, err := s.newPlanner(userID)
	if err != nil {
		return nil, err
	}
	if err := p.SyncWeek(pkgLog.WithAccount(ctx, userID), today); err != nil {
		return nil, err
	}
	return p, nil
}

// Sync refreshes the session's current week. Concurrent calls for the same
// account and week share one store round trip.
func (s *PlannerService) Sync(ctx context.Context, sess *Session) error {
	date := sess.Planner.CurrentDate()
	key := sess.UserID + "/" + week.DisplayID(date)
	_, err, _ := s.syncs.Do(key, func() (interface{}, error) {
		return nil, sess.Planner.SyncWeek(pkgLog.WithAccount(ctx, sess.UserID), date)
	})
	return err
}

// ResyncAll refreshes every open session.
func (s *PlannerService) ResyncAll(ctx context.Context) {
	for _, sess := range s.sessions.Values() {
		if err := ctx.Err(); err != nil {
			return
		}
		if err := s.Sync(ctx, sess); err != nil {
			s.l.Warnf(ctx, "planner: resync %s: %v", sess.UserID, err)
		}
	}
}

// Overview joins the account's weeks with their task counts.
func (s *PlannerService) Overview(ctx context.Context, userID string) ([]planner.WeekSummary, error) {
	ids := identity.Static(userID)
	return planner.Overview(ctx, repository.NewWeekRepository(s.db, ids), repository.NewTaskRepository(s.db, ids, s.l))
}

// Close waits for pending store writes of every open session.
func (s *PlannerService) Close() {
	for _, sess := range s.sessions.Values() {
		sess.Planner.Wait()
	}
}
