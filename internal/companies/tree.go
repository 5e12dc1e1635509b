package companies

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ledgergate/ledgergate/internal/authz"
)

// TreeProvider builds and caches the company hierarchy snapshot consumed by
// the access engine. Snapshots are immutable; a rebuild swaps the pointer.
// Administrative writes invalidate the cache, and reads in flight keep the
// snapshot they already hold (bounded staleness, one edit at most).
type TreeProvider struct {
	repo   Repository
	logger *slog.Logger
	ttl    time.Duration
	group  singleflight.Group

	mu     sync.RWMutex
	snap   *authz.Snapshot
	loaded time.Time
}

// NewTreeProvider constructs a TreeProvider. ttl bounds how long a snapshot
// may be served without invalidation.
func NewTreeProvider(repo Repository, logger *slog.Logger, ttl time.Duration) *TreeProvider {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &TreeProvider{repo: repo, logger: logger, ttl: ttl}
}

// Snapshot returns the current tree snapshot, rebuilding from storage when
// stale. Concurrent callers share one rebuild.
func (p *TreeProvider) Snapshot(ctx context.Context) (*authz.Snapshot, error) {
	p.mu.RLock()
	snap, loaded := p.snap, p.loaded
	p.mu.RUnlock()
	if snap != nil && time.Since(loaded) < p.ttl {
		return snap, nil
	}

	result, err, _ := p.group.Do("tree", func() (any, error) {
		return p.rebuild(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*authz.Snapshot), nil
}

// Invalidate drops the cached snapshot so the next read rebuilds.
func (p *TreeProvider) Invalidate() {
	p.mu.Lock()
	p.snap = nil
	p.mu.Unlock()
}

// Rebuild forces a fresh snapshot. Used by the background refresh job.
func (p *TreeProvider) Rebuild(ctx context.Context) error {
	_, err := p.rebuild(ctx)
	return err
}

func (p *TreeProvider) rebuild(ctx context.Context) (*authz.Snapshot, error) {
	all, err := p.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	nodes := make([]authz.Company, 0, len(all))
	for _, c := range all {
		nodes = append(nodes, c.Node())
	}
	snap := authz.NewSnapshot(nodes)

	p.mu.Lock()
	p.snap = snap
	p.loaded = time.Now()
	p.mu.Unlock()

	if p.logger != nil {
		p.logger.Debug("company tree snapshot rebuilt", slog.Int("companies", snap.Len()))
	}
	return snap, nil
}
