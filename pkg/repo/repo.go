package repo

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/odvcencio/geograft/pkg/graph"
	"github.com/odvcencio/geograft/pkg/object"
)

// Repo represents an opened geograft repository. Mutating operations are
// not safe for concurrent use and must be serialized by the caller.
type Repo struct {
	RootDir string            // directory holding .geograft/
	Dir     string            // .geograft/ directory
	Store   *object.FileStore // content-addressed object store
	Graph   graph.Database    // commit ancestry
	Blobs   *BlobStore        // operation state surviving restarts
	Config  Config
	Logger  zerolog.Logger

	now          func() time.Time
	storeMetrics *object.StoreMetrics
	graphDB      graph.Database

	finderMu sync.Mutex
	finder   *graph.Finder
}

// Option configures a Repo on Init or Open.
type Option func(*Repo)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Repo) { r.Logger = l }
}

// WithClock overrides the time source used for commit timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repo) { r.now = now }
}

// WithStoreMetrics attaches counters to the object store.
func WithStoreMetrics(m *object.StoreMetrics) Option {
	return func(r *Repo) { r.storeMetrics = m }
}

// WithGraph replaces the on-disk ancestry graph.
func WithGraph(db graph.Database) Option {
	return func(r *Repo) { r.graphDB = db }
}

func (r *Repo) ancestry() *graph.Finder {
	r.finderMu.Lock()
	defer r.finderMu.Unlock()
	if r.finder == nil {
		r.finder = graph.NewFinder(r.Graph)
	}
	return r.finder
}

// resetAncestry drops cached ancestry after the graph is rebuilt.
func (r *Repo) resetAncestry() {
	r.finderMu.Lock()
	r.finder = nil
	r.finderMu.Unlock()
}

// indexCommits makes sure the ancestry graph knows every commit reachable
// from ids.
func (r *Repo) indexCommits(ctx context.Context, ids ...object.ObjectID) error {
	_, err := graph.Index(ctx, r.Store, r.Graph, ids)
	return err
}

// Close releases the ancestry graph.
func (r *Repo) Close() error {
	if r.Graph == nil {
		return nil
	}
	return r.Graph.Close()
}
