// Package catalog keeps an in-memory snapshot of the upstream models that
// can serve generation requests, refreshed in the background so request
// handlers never block on the upstream listing call.
package catalog

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/plotark/plotark/internal/generator"
	log "github.com/sirupsen/logrus"
)

const (
	defaultSyncInterval   = 30 * time.Minute
	defaultRequestTimeout = 15 * time.Second
)

// ModelLister lists the upstream models available for generation.
type ModelLister interface {
	ListModels(ctx context.Context) ([]generator.ModelInfo, error)
}

type snapshot struct {
	updatedAt time.Time
	models    []generator.ModelInfo
}

// Catalog syncs the upstream model list into an atomic snapshot.
type Catalog struct {
	lister   ModelLister
	interval time.Duration
	now      func() time.Time
	current  atomic.Value
}

// New constructs a model catalog. A nil lister yields a nil catalog.
func New(lister ModelLister) *Catalog {
	if lister == nil {
		return nil
	}
	c := &Catalog{
		lister:   lister,
		interval: defaultSyncInterval,
		now:      time.Now,
	}
	c.current.Store(snapshot{})
	return c
}

// Start runs the sync loop in the background.
func (c *Catalog) Start(ctx context.Context) {
	if c == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go c.run(ctx)
	log.Infof("model catalog syncer started (interval=%s)", c.interval)
}

func (c *Catalog) run(ctx context.Context) {
	interval := c.interval
	if interval <= 0 {
		interval = defaultSyncInterval
	}

	if err := c.SyncOnce(ctx); err != nil {
		log.WithError(err).Warn("model catalog: initial sync failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.SyncOnce(ctx); err != nil {
				log.WithError(err).Warn("model catalog: sync failed")
			}
		}
	}
}

// SyncOnce refreshes the snapshot from the upstream listing.
func (c *Catalog) SyncOnce(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctxList, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	models, errList := c.lister.ListModels(ctxList)
	if errList != nil {
		return errList
	}
	c.current.Store(snapshot{updatedAt: c.now(), models: models})
	return nil
}

// Models returns the snapshot's model list. An empty snapshot triggers one
// synchronous refresh so a cold catalog still serves its first request.
func (c *Catalog) Models(ctx context.Context) []generator.ModelInfo {
	if c == nil {
		return nil
	}
	snap, _ := c.current.Load().(snapshot)
	if snap.updatedAt.IsZero() {
		if err := c.SyncOnce(ctx); err != nil {
			log.WithError(err).Warn("model catalog: on-demand sync failed")
			return nil
		}
		snap, _ = c.current.Load().(snapshot)
	}
	return snap.models
}

// UpdatedAt reports when the snapshot was last refreshed.
func (c *Catalog) UpdatedAt() time.Time {
	if c == nil {
		return time.Time{}
	}
	snap, _ := c.current.Load().(snapshot)
	return snap.updatedAt
}
