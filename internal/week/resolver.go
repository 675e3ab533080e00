package week

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"weekly-planner/internal/identity"
	"weekly-planner/internal/model"
	pkgLog "weekly-planner/pkg/log"
)

// ErrNoIdentity is returned when nobody is signed in. No row is created.
var ErrNoIdentity = identity.ErrNoIdentity

// lookupTimeout bounds a shared find-or-create round trip.
const lookupTimeout = 30 * time.Second

// Store is the slice of the weeks table the resolver needs.
type Store interface {
	// FindWeek returns found=false with a nil error when no row matches.
	FindWeek(ctx context.Context, userID string, year, number int) (row model.WeekRow, found bool, err error)
	CreateWeek(ctx context.Context, row *model.WeekRow) error
}

type cacheKey struct {
	userID string
	year   int
	number int
}

func (k cacheKey) String() string {
	return fmt.Sprintf("%s-%d-%d", k.userID, k.year, k.number)
}

// Cache holds resolved week rows per (account, year, week number) for the
// life of the process. Entries are never evicted.
type Cache struct {
	mu    sync.RWMutex
	rows  map[cacheKey]model.WeekRow
	group singleflight.Group
}

func NewCache() *Cache {
	return &Cache{rows: make(map[cacheKey]model.WeekRow)}
}

func (c *Cache) get(k cacheKey) (model.WeekRow, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	row, ok := c.rows[k]
	return row, ok
}

func (c *Cache) put(k cacheKey, row model.WeekRow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[k] = row
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rows)
}

// Resolver maps dates to durable week rows of the current account.
type Resolver struct {
	store Store
	ids   identity.Provider
	cache *Cache
	l     pkgLog.Logger
}

// NewResolver builds a Resolver. Resolvers for different accounts may share one Cache.
func NewResolver(store Store, ids identity.Provider, cache *Cache, l pkgLog.Logger) *Resolver {
	if cache == nil {
		cache = NewCache()
	}
	return &Resolver{store: store, ids: ids, cache: cache, l: l}
}

// ResolveOrCreate finds the account's row for the week of date, creating it
// when absent. Concurrent calls for the same week share one lookup, and a
// create that loses a race to another writer falls back to the winner's row.
// A caller whose ctx ends stops waiting; the shared lookup carries on for
// the others.
func (r *Resolver) ResolveOrCreate(ctx context.Context, date time.Time) (model.WeekRow, error) {
	userID, ok := r.ids.CurrentUserID(ctx)
	if !ok {
		r.l.Warn(ctx, "week: no auth, cannot resolve week")
		return model.WeekRow{}, ErrNoIdentity
	}

	key := cacheKey{userID: userID, year: Year(date), number: Number(date)}
	if row, ok := r.cache.get(key); ok {
		return row, nil
	}

	ch := r.cache.group.DoChan(key.String(), func() (any, error) {
		if row, ok := r.cache.get(key); ok {
			return row, nil
		}
		// Waiters share this lookup; it ends on its own deadline, not on any caller's.
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		row, err := r.findOrCreate(lctx, key, date)
		if err != nil {
			return model.WeekRow{}, err
		}
		r.cache.put(key, row)
		return row, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return model.WeekRow{}, res.Err
		}
		return res.Val.(model.WeekRow), nil
	case <-ctx.Done():
		return model.WeekRow{}, ctx.Err()
	}
}

func (r *Resolver) findOrCreate(ctx context.Context, key cacheKey, date time.Time) (model.WeekRow, error) {
	existing, found, err := r.store.FindWeek(ctx, key.userID, key.year, key.number)
	if err != nil {
		r.l.Errorf(ctx, "week: find W%d/%d: %v", key.number, key.year, err)
	}
	if found {
		r.l.Debugf(ctx, "week: found existing week %s W%d/%d", existing.ID, key.number, key.year)
		return existing, nil
	}

	row := model.WeekRow{
		UserID:     key.userID,
		Year:       key.year,
		WeekNumber: key.number,
		StartDate:  FormatDate(Start(date)),
		EndDate:    FormatDate(End(date)),
	}
	createErr := r.store.CreateWeek(ctx, &row)
	if createErr == nil {
		r.l.Infof(ctx, "week: created week %s W%d/%d", row.ID, key.number, key.year)
		return row, nil
	}

	// Another writer may have created it between our find and create.
	r.l.Warnf(ctx, "week: create W%d/%d: %v, re-querying", key.number, key.year, createErr)
	retry, found, err := r.store.FindWeek(ctx, key.userID, key.year, key.number)
	if err == nil && found {
		return retry, nil
	}
	return model.WeekRow{}, fmt.Errorf("resolve week %d/%d: %w", key.number, key.year, createErr)
}
