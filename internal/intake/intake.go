// Package intake picks up raw toll exports from an inbox directory, renames
// them by billing period and hands them to the object store.
package intake

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opensource-finance/tollwatch/internal/bus"
	"github.com/opensource-finance/tollwatch/internal/domain"
	"github.com/opensource-finance/tollwatch/internal/filename"
	"github.com/opensource-finance/tollwatch/internal/ingest"
)

var contentTypes = map[string]string{
	".csv":  "text/csv",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// Recorder counts how file periods were resolved.
type Recorder interface {
	FilenameResolved(p domain.Period)
}

// Result reports what happened to one inbox file.
type Result struct {
	Original string        `json:"original"`
	Target   string        `json:"target"`
	Object   string        `json:"object,omitempty"`
	Period   domain.Period `json:"period"`
	Err      error         `json:"-"`
}

// Fallback reports whether the period came from the clock.
func (r Result) Fallback() bool {
	return r.Period.Fallback()
}

// Intake copies inbox files to the interim directory and the object store.
type Intake struct {
	store      domain.ObjectStore
	bus        domain.EventBus
	normalizer *filename.Normalizer
	recorder   Recorder
	interimDir string
	rawPrefix  string
}

// Option configures an Intake.
type Option func(*Intake)

// WithNormalizer overrides the filename normalizer.
func WithNormalizer(n *filename.Normalizer) Option {
	return func(in *Intake) { in.normalizer = n }
}

// WithRecorder registers a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(in *Intake) { in.recorder = r }
}

// New creates an intake. bus may be nil when no worker listens.
func New(store domain.ObjectStore, eventBus domain.EventBus, cfg domain.StorageConfig, opts ...Option) *Intake {
	in := &Intake{
		store:      store,
		bus:        eventBus,
		normalizer: filename.NewNormalizer(),
		interimDir: cfg.InterimDir,
		rawPrefix:  cfg.RawPrefix,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Run processes every supported file in dir in name order. Per-file failures
// are reported in the results; only an unreadable inbox fails the run.
func (in *Intake) Run(ctx context.Context, dir string) ([]Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read inbox %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !ingest.Supported(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	results := make([]Result, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := in.File(ctx, filepath.Join(dir, name))
		if res.Err != nil {
			slog.Error("intake failed", "file", name, "error", res.Err)
		} else {
			slog.Info("file staged",
				"file", name,
				"target", res.Target,
				"object", res.Object,
				"period_fallback", res.Fallback(),
			)
		}
		results = append(results, res)
	}
	return results, nil
}

// File stages a single file.
func (in *Intake) File(ctx context.Context, p string) Result {
	base := filepath.Base(p)
	ext := filepath.Ext(base)
	period := in.normalizer.Normalize(base)
	if in.recorder != nil {
		in.recorder.FilenameResolved(period)
	}

	res := Result{
		Original: base,
		Target:   filename.TargetName(period, ext),
		Period:   period,
	}

	data, err := os.ReadFile(p)
	if err != nil {
		res.Err = fmt.Errorf("read %s: %w", base, err)
		return res
	}

	if in.interimDir != "" {
		if err := writeInterim(in.interimDir, res.Target, data); err != nil {
			res.Err = err
			return res
		}
	}

	if in.store == nil {
		return res
	}

	object := path.Join(in.rawPrefix, res.Target)
	contentType := contentTypes[strings.ToLower(ext)]
	if err := in.store.Upload(ctx, object, bytes.NewReader(data), contentType); err != nil {
		res.Err = fmt.Errorf("upload %s: %w", object, err)
		return res
	}
	res.Object = object

	if in.bus != nil {
		ev := domain.FileEvent{
			Object:       object,
			OriginalName: base,
			Period:       period.Token(),
			Fallback:     period.Fallback(),
		}
		if err := bus.PublishJSON(ctx, in.bus, domain.TopicFileReceived, ev); err != nil {
			res.Err = fmt.Errorf("announce %s: %w", object, err)
		}
	}
	return res
}

func writeInterim(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create interim dir: %w", err)
	}
	dst := filepath.Join(dir, name)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return nil
}
