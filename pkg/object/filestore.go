package object

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	zstdEncoderOnce sync.Once
	zstdEncoder     *zstd.Encoder
	zstdDecoderOnce sync.Once
	zstdDecoder     *zstd.Decoder
)

func sharedEncoder() *zstd.Encoder {
	zstdEncoderOnce.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(fmt.Sprintf("zstd encoder: %v", err))
		}
		zstdEncoder = enc
	})
	return zstdEncoder
}

func sharedDecoder() *zstd.Decoder {
	zstdDecoderOnce.Do(func() {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
		if err != nil {
			panic(fmt.Sprintf("zstd decoder: %v", err))
		}
		zstdDecoder = dec
	})
	return zstdDecoder
}

// FileStore keeps one file per object with a 2-character fan-out directory
// layout: objects/ab/cdef0123... Files hold the canonical encoding,
// optionally zstd compressed. Writes are atomic: data is written to a temp
// file and then renamed into place.
type FileStore struct {
	root        string
	compress    bool
	parallelism int
	metrics     *StoreMetrics
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithCompression toggles zstd compression of newly written objects.
// Reads always accept both forms.
func WithCompression(on bool) FileStoreOption {
	return func(s *FileStore) { s.compress = on }
}

// WithParallelism bounds the number of concurrent reads in GetAll.
func WithParallelism(n int) FileStoreOption {
	return func(s *FileStore) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithMetrics attaches counters to the store.
func WithMetrics(m *StoreMetrics) FileStoreOption {
	return func(s *FileStore) { s.metrics = m }
}

// NewFileStore creates a FileStore rooted at root. The objects/
// subdirectory is created lazily on first write.
func NewFileStore(root string, opts ...FileStoreOption) *FileStore {
	s := &FileStore{
		root:        root,
		compress:    true,
		parallelism: runtime.GOMAXPROCS(0),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = NewStoreMetrics("file")
	}
	return s
}

// Metrics returns the store's counters.
func (s *FileStore) Metrics() *StoreMetrics { return s.metrics }

func (s *FileStore) objectPath(id ObjectID) string {
	h := id.String()
	return filepath.Join(s.root, "objects", h[:2], h[2:])
}

// Has reports whether the store contains an object with the given id.
func (s *FileStore) Has(id ObjectID) bool {
	if id == EmptyTreeID {
		return true
	}
	_, err := os.Stat(s.objectPath(id))
	return err == nil
}

// Put encodes and stores obj. Existing objects are left untouched.
func (s *FileStore) Put(obj RevObject) (bool, error) {
	id := obj.ID()
	if id.IsNull() {
		return false, fmt.Errorf("%w: put: object has no id", ErrInvalid)
	}
	if s.Has(id) {
		return false, nil
	}
	raw, err := Encode(obj)
	if err != nil {
		return false, fmt.Errorf("object write %s: %w", id.Short(), err)
	}
	if s.compress {
		raw = sharedEncoder().EncodeAll(raw, make([]byte, 0, len(raw)))
	}

	dir := filepath.Dir(s.objectPath(id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("object write mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return false, fmt.Errorf("object write tmpfile: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return false, fmt.Errorf("object write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return false, fmt.Errorf("object write close: %w", err)
	}
	if err := os.Rename(tmpName, s.objectPath(id)); err != nil {
		os.Remove(tmpName)
		return false, fmt.Errorf("object write rename: %w", err)
	}
	s.metrics.Writes.Inc()
	return true, nil
}

// Get reads, decodes and verifies the object stored under id.
func (s *FileStore) Get(id ObjectID) (RevObject, error) {
	if id == EmptyTreeID {
		return EmptyTree, nil
	}
	raw, err := os.ReadFile(s.objectPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.metrics.Misses.Inc()
			return nil, fmt.Errorf("object read %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("object read %s: %w", id, err)
	}
	if bytes.HasPrefix(raw, zstdMagic) {
		raw, err = sharedDecoder().DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("object read %s: decompress: %w", id, err)
		}
	}
	obj, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("object read %s: %w", id, err)
	}
	if obj.ID() != id {
		return nil, fmt.Errorf("%w: object read %s: content hashes to %s", ErrInvalid, id, obj.ID())
	}
	s.metrics.Reads.Inc()
	return obj, nil
}

type fetchResult struct {
	id       ObjectID
	obj      RevObject
	err      error
	notFound bool
}

// GetAll reads the batch with bounded parallelism. Leaving the loop early
// cancels outstanding reads.
func (s *FileStore) GetAll(ctx context.Context, ids []ObjectID, listener BulkListener) iter.Seq2[RevObject, error] {
	if listener == nil {
		listener = NopListener{}
	}
	ids = uniqueIDs(ids)
	return func(yield func(RevObject, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		results := make(chan fetchResult)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.parallelism)
		go func() {
			defer close(results)
			for _, id := range ids {
				if gctx.Err() != nil {
					break
				}
				g.Go(func() error {
					r := fetchResult{id: id}
					r.obj, r.err = s.Get(id)
					if errors.Is(r.err, ErrNotFound) {
						r.notFound, r.err = true, nil
					}
					select {
					case results <- r:
					case <-gctx.Done():
					}
					return nil
				})
			}
			g.Wait()
		}()
		defer func() {
			cancel()
			for range results {
			}
		}()

		for r := range results {
			switch {
			case r.notFound:
				listener.NotFound(r.id)
			case r.err != nil:
				yield(nil, r.err)
				return
			default:
				listener.Found(r.obj)
				if !yield(r.obj, nil) {
					return
				}
			}
		}
		if err := ctx.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// IDs lists every stored object id.
func (s *FileStore) IDs(ctx context.Context) ([]ObjectID, error) {
	base := filepath.Join(s.root, "objects")
	fanout, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list objects: %w", err)
	}
	var ids []ObjectID
	for _, d := range fanout {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !d.IsDir() || len(d.Name()) != 2 {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(base, d.Name()))
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, e := range entries {
			id, err := ParseID(d.Name() + e.Name())
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Prune deletes every loose object not in keep, along with stale temp
// files.
func (s *FileStore) Prune(ctx context.Context, keep map[ObjectID]struct{}) (int, error) {
	base := filepath.Join(s.root, "objects")
	fanout, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("prune objects: %w", err)
	}
	removed := 0
	for _, d := range fanout {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !d.IsDir() {
			continue
		}
		dir := filepath.Join(base, d.Name())
		entries, err := os.ReadDir(dir)
		if err != nil {
			return removed, fmt.Errorf("prune objects: %w", err)
		}
		for _, e := range entries {
			id, perr := ParseID(d.Name() + e.Name())
			if perr == nil {
				if _, ok := keep[id]; ok {
					continue
				}
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				return removed, fmt.Errorf("prune %s: %w", e.Name(), err)
			}
			if perr == nil {
				removed++
			}
		}
		// Best effort: drop empty fan-out directories.
		_ = os.Remove(dir)
	}
	return removed, nil
}
