package repo

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/odvcencio/geograft/pkg/object"
	"github.com/odvcencio/geograft/pkg/tree"
)

// Config holds repository-local settings, stored as .geograft/config.toml.
type Config struct {
	User    UserConfig    `toml:"user"`
	Tree    TreeConfig    `toml:"tree"`
	Storage StorageConfig `toml:"storage"`
}

type UserConfig struct {
	Name  string `toml:"name"`
	Email string `toml:"email"`
	// Timezone is an IANA zone name. Empty uses the local zone.
	Timezone string `toml:"timezone,omitempty"`
}

type TreeConfig struct {
	MaxLeafEntries int `toml:"max_leaf_entries"`
	BucketsPerTier int `toml:"buckets_per_tier"`
}

type StorageConfig struct {
	Compress bool `toml:"compress"`
}

// DefaultConfig returns the settings of a fresh repository.
func DefaultConfig() Config {
	th := tree.DefaultThresholds()
	return Config{
		Tree:    TreeConfig{MaxLeafEntries: th.MaxLeafEntries, BucketsPerTier: th.BucketsPerTier},
		Storage: StorageConfig{Compress: true},
	}
}

// Thresholds returns the tree layout settings.
func (c Config) Thresholds() tree.Thresholds {
	return tree.Thresholds{MaxLeafEntries: c.Tree.MaxLeafEntries, BucketsPerTier: c.Tree.BucketsPerTier}
}

// Validate rejects settings the engine cannot work with.
func (c Config) Validate() error {
	if err := c.Thresholds().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.User.Timezone != "" {
		if _, err := time.LoadLocation(c.User.Timezone); err != nil {
			return fmt.Errorf("config: user.timezone: %w", err)
		}
	}
	return nil
}

// Person returns the configured identity stamped with now.
func (c Config) Person(now time.Time) (object.Person, error) {
	if strings.TrimSpace(c.User.Name) == "" {
		return object.Person{}, errors.New("user.name is not configured")
	}
	if c.User.Timezone != "" {
		loc, err := time.LoadLocation(c.User.Timezone)
		if err != nil {
			return object.Person{}, fmt.Errorf("user.timezone: %w", err)
		}
		now = now.In(loc)
	}
	_, offset := now.Zone()
	return object.Person{
		Name:      c.User.Name,
		Email:     c.User.Email,
		Timestamp: now.Unix(),
		TZOffset:  offset / 60,
	}, nil
}

// configKeys lists the keys accepted by Get and Set, in display order.
var configKeys = []string{
	"user.name",
	"user.email",
	"user.timezone",
	"tree.max_leaf_entries",
	"tree.buckets_per_tier",
	"storage.compress",
}

// Keys returns every settable key.
func (c Config) Keys() []string { return slices.Clone(configKeys) }

// Get returns the textual value of key.
func (c Config) Get(key string) (string, error) {
	switch key {
	case "user.name":
		return c.User.Name, nil
	case "user.email":
		return c.User.Email, nil
	case "user.timezone":
		return c.User.Timezone, nil
	case "tree.max_leaf_entries":
		return strconv.Itoa(c.Tree.MaxLeafEntries), nil
	case "tree.buckets_per_tier":
		return strconv.Itoa(c.Tree.BucketsPerTier), nil
	case "storage.compress":
		return strconv.FormatBool(c.Storage.Compress), nil
	}
	return "", fmt.Errorf("config: unknown key %q", key)
}

// Set parses value into key. The result is not validated.
func (c *Config) Set(key, value string) error {
	var err error
	switch key {
	case "user.name":
		c.User.Name = value
	case "user.email":
		c.User.Email = value
	case "user.timezone":
		c.User.Timezone = value
	case "tree.max_leaf_entries":
		c.Tree.MaxLeafEntries, err = strconv.Atoi(value)
	case "tree.buckets_per_tier":
		c.Tree.BucketsPerTier, err = strconv.Atoi(value)
	case "storage.compress":
		c.Storage.Compress, err = strconv.ParseBool(value)
	default:
		return fmt.Errorf("config: unknown key %q", key)
	}
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	return nil
}

// LoadConfig reads a config file on top of the defaults. A missing file
// yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("read config: unknown key %q", undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WriteConfig atomically writes cfg to path.
func WriteConfig(path string, cfg Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("write config: encode: %w", err)
	}
	return writeFileAtomic(path, buf.Bytes())
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write %s: mkdir: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: tmpfile: %w", filepath.Base(path), err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: close: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: rename: %w", filepath.Base(path), err)
	}
	return nil
}

func (r *Repo) configPath() string {
	return filepath.Join(r.Dir, "config.toml")
}

// SetConfig updates one key and persists the configuration.
func (r *Repo) SetConfig(key, value string) error {
	if err := r.guard(OpConfig); err != nil {
		return err
	}
	next := r.Config
	if err := next.Set(key, value); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	if err := WriteConfig(r.configPath(), next); err != nil {
		return err
	}
	r.Config = next
	return nil
}
