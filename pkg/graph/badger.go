package graph

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/odvcencio/geograft/pkg/object"
)

// Key layout:
//
//	'p' <commit>           -> concatenated parent ids
//	'c' <parent> <child>   -> empty
const (
	parentsPrefix  = 'p'
	childrenPrefix = 'c'
)

// BadgerConfig configures a badger-backed graph.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in memory, for tests.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger receives badger's internal log output. A nil logger silences
	// it.
	Logger *zerolog.Logger
}

// BadgerDatabase is a Database persisted with badger.
type BadgerDatabase struct {
	db *badger.DB
}

type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any)   { l.log.Error().Msgf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...any) { l.log.Warn().Msgf(format, args...) }
func (l badgerLogger) Infof(format string, args ...any)    { l.log.Debug().Msgf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...any)   { l.log.Trace().Msgf(format, args...) }

// OpenBadger opens (creating if needed) a badger graph database.
func OpenBadger(cfg BadgerConfig) (*BadgerDatabase, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("graph: open badger: path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("graph: open badger: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{log: cfg.Logger.With().Str("component", "graph").Logger()})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("graph: open badger: %w", err)
	}
	return &BadgerDatabase{db: db}, nil
}

func parentsKey(commit object.ObjectID) []byte {
	k := make([]byte, 0, 1+object.IDSize)
	k = append(k, parentsPrefix)
	return append(k, commit[:]...)
}

func childKey(parent, child object.ObjectID) []byte {
	k := make([]byte, 0, 1+2*object.IDSize)
	k = append(k, childrenPrefix)
	k = append(k, parent[:]...)
	return append(k, child[:]...)
}

func encodeParents(parents []object.ObjectID) []byte {
	buf := make([]byte, 0, len(parents)*object.IDSize)
	for _, p := range parents {
		buf = append(buf, p[:]...)
	}
	return buf
}

func decodeParents(commit object.ObjectID, buf []byte) ([]object.ObjectID, error) {
	if len(buf)%object.IDSize != 0 {
		return nil, fmt.Errorf("graph: commit %s: corrupt parent list (%d bytes)", commit.Short(), len(buf))
	}
	out := make([]object.ObjectID, len(buf)/object.IDSize)
	for i := range out {
		copy(out[i][:], buf[i*object.IDSize:])
	}
	return out, nil
}

func (b *BadgerDatabase) Put(commit object.ObjectID, parents []object.ObjectID) (bool, error) {
	if err := checkPut(commit, parents); err != nil {
		return false, err
	}
	inserted := false
	err := b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(parentsKey(commit))
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if err := txn.Set(parentsKey(commit), encodeParents(parents)); err != nil {
			return err
		}
		for _, p := range parents {
			if err := txn.Set(childKey(p, commit), nil); err != nil {
				return err
			}
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("graph: put %s: %w", commit.Short(), err)
	}
	return inserted, nil
}

func (b *BadgerDatabase) Exists(commit object.ObjectID) (bool, error) {
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(parentsKey(commit))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("graph: exists %s: %w", commit.Short(), err)
	}
	return found, nil
}

func (b *BadgerDatabase) Parents(commit object.ObjectID) ([]object.ObjectID, error) {
	var raw []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(parentsKey(commit))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notInGraph(commit)
	}
	if err != nil {
		return nil, fmt.Errorf("graph: parents %s: %w", commit.Short(), err)
	}
	return decodeParents(commit, raw)
}

func (b *BadgerDatabase) Children(commit object.ObjectID) ([]object.ObjectID, error) {
	prefix := make([]byte, 0, 1+object.IDSize)
	prefix = append(prefix, childrenPrefix)
	prefix = append(prefix, commit[:]...)

	var out []object.ObjectID
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			var child object.ObjectID
			copy(child[:], key[len(prefix):])
			out = append(out, child)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("graph: children %s: %w", commit.Short(), err)
	}
	return out, nil
}

func (b *BadgerDatabase) Truncate() error {
	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("graph: truncate: %w", err)
	}
	return nil
}

func (b *BadgerDatabase) Close() error {
	return b.db.Close()
}
