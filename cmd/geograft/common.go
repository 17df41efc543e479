package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/odvcencio/geograft/pkg/object"
	"github.com/odvcencio/geograft/pkg/repo"
)

type globalFlags struct {
	verbose bool
	stats   bool
	dir     string
}

var globals = globalFlags{dir: "."}

func newLogger(w io.Writer) zerolog.Logger {
	level := zerolog.WarnLevel
	if globals.verbose {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// withRepo opens the repository around fn. With --stats the object store
// counters are printed to stderr afterwards, even when fn fails.
func withRepo(cmd *cobra.Command, fn func(ctx context.Context, r *repo.Repo) error) (err error) {
	opts := []repo.Option{repo.WithLogger(newLogger(cmd.ErrOrStderr()))}
	var reg *prometheus.Registry
	if globals.stats {
		reg = prometheus.NewRegistry()
		m := object.NewStoreMetrics("loose")
		if err := m.Register(reg); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		opts = append(opts, repo.WithStoreMetrics(m))
	}

	r, err := repo.Open(globals.dir, opts...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, r.Close())
	}()

	err = fn(cmd.Context(), r)
	if reg != nil {
		err = errors.Join(err, printStats(cmd.ErrOrStderr(), reg))
	}
	return err
}

func printStats(w io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	sort.Slice(families, func(i, j int) bool { return families[i].GetName() < families[j].GetName() })
	for _, mf := range families {
		name := strings.TrimPrefix(mf.GetName(), "geograft_objects_")
		for _, m := range mf.GetMetric() {
			fmt.Fprintf(w, "objects %s: %s\n", strings.TrimSuffix(name, "_total"), humanize.Comma(int64(m.GetCounter().GetValue())))
		}
	}
	return nil
}

// parseDescriptor parses an attribute descriptor of the form
// name:type, name:type? (nillable) or name:geometry(CRS).
func parseDescriptor(s string) (object.AttributeDescriptor, error) {
	name, typ, ok := strings.Cut(s, ":")
	if !ok || name == "" {
		return object.AttributeDescriptor{}, fmt.Errorf("attribute %q: want name:type", s)
	}
	d := object.AttributeDescriptor{Name: name}
	if t, ok := strings.CutSuffix(typ, "?"); ok {
		d.Nillable = true
		typ = t
	}
	if i := strings.IndexByte(typ, '('); i >= 0 && strings.HasSuffix(typ, ")") {
		d.CRS = typ[i+1 : len(typ)-1]
		typ = typ[:i]
	}
	ft, err := object.ParseFieldType(typ)
	if err != nil {
		return object.AttributeDescriptor{}, fmt.Errorf("attribute %q: %w", name, err)
	}
	d.Type = ft
	if d.CRS != "" && ft != object.FieldGeometry {
		return object.AttributeDescriptor{}, fmt.Errorf("attribute %q: only geometry attributes take a CRS", name)
	}
	return d, nil
}

// parseFeature builds a feature of type ft from name=value assignments.
// Attributes that are not assigned are left nil.
func parseFeature(ft object.RevFeatureType, assignments []string) (object.RevFeature, error) {
	values := make([]any, ft.Len())
	for _, a := range assignments {
		name, raw, ok := strings.Cut(a, "=")
		if !ok {
			return object.RevFeature{}, fmt.Errorf("value %q: want name=value", a)
		}
		i := ft.IndexOf(name)
		if i < 0 {
			return object.RevFeature{}, fmt.Errorf("feature type %q has no attribute %q", ft.Name(), name)
		}
		v, err := object.ParseValue(ft.Descriptor(i).Type, raw)
		if err != nil {
			return object.RevFeature{}, err
		}
		values[i] = v
	}
	return object.NewFeature(values...)
}

// resolveTarget resolves a commit-ish argument, defaulting to HEAD.
func resolveTarget(r *repo.Repo, args []string, i int) (object.ObjectID, error) {
	rev := repo.HeadRef
	if len(args) > i {
		rev = strings.TrimSpace(args[i])
	}
	return r.ResolveCommit(rev)
}
