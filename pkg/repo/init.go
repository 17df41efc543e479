package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/odvcencio/geograft/pkg/graph"
	"github.com/odvcencio/geograft/pkg/object"
)

// DirName is the repository metadata directory.
const DirName = ".geograft"

// DefaultBranch is the branch HEAD points at after Init.
const DefaultBranch = "main"

// Init creates a new repository at path with the .geograft/ directory
// structure: HEAD, config.toml, objects/, refs/heads/, refs/tags/, logs/,
// blobs/ and graph/. It fails if .geograft/ already exists. cfg seeds the
// configuration; a nil cfg uses DefaultConfig.
func Init(path string, cfg *Config, opts ...Option) (*Repo, error) {
	dir := filepath.Join(path, DirName)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", dir)
	}

	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}

	dirs := []string{
		filepath.Join(dir, "objects"),
		filepath.Join(dir, "refs", "heads"),
		filepath.Join(dir, "refs", "tags"),
		filepath.Join(dir, "logs", "refs", "heads"),
		filepath.Join(dir, "blobs"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "HEAD"), []byte("ref: refs/heads/"+DefaultBranch+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("init: write HEAD: %w", err)
	}
	if err := WriteConfig(filepath.Join(dir, "config.toml"), c); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}

	r, err := open(path, c, opts)
	if err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	r.Logger.Info().Str("path", dir).Msg("initialized repository")
	return r, nil
}

// Open searches upward from path for a .geograft/ directory and opens the
// repository.
func Open(path string, opts ...Option) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	cur := abs
	for {
		dir := filepath.Join(cur, DirName)
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			cfg, err := LoadConfig(filepath.Join(dir, "config.toml"))
			if err != nil {
				return nil, fmt.Errorf("open: %w", err)
			}
			r, err := open(cur, cfg, opts)
			if err != nil {
				return nil, fmt.Errorf("open: %w", err)
			}
			return r, nil
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("open: not a geograft repository (or any parent up to /)")
		}
		cur = parent
	}
}

func open(root string, cfg Config, opts []Option) (*Repo, error) {
	dir := filepath.Join(root, DirName)
	r := &Repo{
		RootDir: root,
		Dir:     dir,
		Config:  cfg,
		Logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	storeOpts := []object.FileStoreOption{object.WithCompression(cfg.Storage.Compress)}
	if r.storeMetrics != nil {
		storeOpts = append(storeOpts, object.WithMetrics(r.storeMetrics))
	}
	r.Store = object.NewFileStore(dir, storeOpts...)
	r.Blobs = NewBlobStore(filepath.Join(dir, "blobs"))

	if r.graphDB != nil {
		r.Graph = r.graphDB
	} else {
		logger := r.Logger
		db, err := graph.OpenBadger(graph.BadgerConfig{
			Path:   filepath.Join(dir, "graph"),
			Logger: &logger,
		})
		if err != nil {
			return nil, err
		}
		r.Graph = db
	}
	return r, nil
}
