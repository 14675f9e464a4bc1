// Package inbox runs report requests dropped as text files into a directory.
//
// Each "<name>.txt" file is read as one request, run under the configured
// identity and renamed to "<name>.done". The run record is written next to
// it as "<name>.json". Files are processed one at a time in name order.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/digital-iq/llm-report/internal/logging"
	"github.com/digital-iq/llm-report/pkg/models"
)

const (
	requestExt = ".txt"
	doneExt    = ".done"
	recordExt  = ".json"
)

// DefaultSettle is how long the directory must be quiet before new files are read.
const DefaultSettle = 250 * time.Millisecond

// Runner executes one request.
type Runner interface {
	Run(ctx context.Context, identity string, req models.Request) (*models.RunRecord, error)
}

// Config configures a Watcher.
type Config struct {
	Dir      string
	Identity string
	// Settle defaults to DefaultSettle.
	Settle time.Duration
}

// Watcher feeds request files to a Runner.
type Watcher struct {
	dir      string
	identity string
	settle   time.Duration
	runner   Runner
	logger   *zap.Logger
}

// New creates a Watcher, creating the directory if needed.
func New(cfg Config, runner Runner, logger *zap.Logger) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("inbox directory is required")
	}
	if strings.TrimSpace(cfg.Identity) == "" {
		return nil, errors.New("inbox identity is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create inbox directory: %w", err)
	}
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultSettle
	}
	return &Watcher{
		dir:      cfg.Dir,
		identity: cfg.Identity,
		settle:   cfg.Settle,
		runner:   runner,
		logger:   logging.OrNop(logger).Named("inbox"),
	}, nil
}

// Run processes files already present, then watches for new ones until ctx
// is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching inbox", zap.String("dir", w.dir), zap.String("identity", w.identity))

	w.drain(ctx)

	settle := time.NewTimer(w.settle)
	if !settle.Stop() {
		<-settle.C
	}
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isRequest(event.Name) || event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			settle.Reset(w.settle)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		case <-settle.C:
			w.drain(ctx)
		}
	}
}

// drain processes every pending request file in name order.
func (w *Watcher) drain(ctx context.Context) {
	names, err := w.pending()
	if err != nil {
		w.logger.Error("list inbox", zap.Error(err))
		return
	}
	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		if err := w.process(ctx, name); err != nil {
			w.logger.Error("inbox request failed", zap.String("file", name), zap.Error(err))
		}
	}
}

func (w *Watcher) pending() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && isRequest(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// process runs one request file and marks it done.
func (w *Watcher) process(ctx context.Context, name string) error {
	path := filepath.Join(w.dir, name)
	base := strings.TrimSuffix(name, requestExt)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	if err := os.Rename(path, filepath.Join(w.dir, base+doneExt)); err != nil {
		return fmt.Errorf("mark done: %w", err)
	}

	req := models.NewRequest(string(data))
	if req.Empty() {
		w.logger.Warn("empty request file skipped", zap.String("file", name))
		return nil
	}

	w.logger.Info("inbox request", zap.String("file", name))
	// Shutdown does not abandon a request that has already been claimed.
	rec, runErr := w.runner.Run(context.WithoutCancel(ctx), w.identity, req)
	if rec != nil {
		if err := writeRecord(filepath.Join(w.dir, base+recordExt), rec); err != nil {
			return errors.Join(runErr, err)
		}
	}
	return runErr
}

func writeRecord(path string, rec *models.RunRecord) error {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0644); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

func isRequest(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, requestExt) && !strings.HasPrefix(base, ".")
}
