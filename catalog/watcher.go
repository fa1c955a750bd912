package catalog

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
)

const defaultDebounce = 300 * time.Millisecond

// Watcher reloads a catalog when template files in a directory change.
type Watcher struct {
	dir      string
	catalog  *Catalog
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	timer    *time.Timer
	onReload []func(kinds []string)

	done chan struct{}
	wg   sync.WaitGroup
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets how long the watcher waits for writes to settle.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) { w.debounce = d }
}

// Watch starts watching dir. Every reload replaces the catalog contents with
// builtins overlaid by the files currently in dir.
func Watch(c *Catalog, dir string, log *zap.SugaredLogger, opts ...WatchOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create template watcher")
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "watch template dir %s", dir)
	}

	w := &Watcher{
		dir:      dir,
		catalog:  c,
		watcher:  fw,
		debounce: defaultDebounce,
		logger:   logger.OrNop(log),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// OnReload registers fn to run after each successful reload.
func (w *Watcher) OnReload(fn func(kinds []string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = append(w.onReload, fn)
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !IsTemplateFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debugw("Template change detected", "file", event.Name, "op", event.Op.String())
			w.schedule()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("Template watcher error", logger.FieldError, err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	entries, err := LoadDir(w.dir)
	if err != nil {
		w.logger.Errorw("Template reload failed", "dir", w.dir, logger.FieldError, err)
		return
	}
	w.catalog.Replace(append(BuiltinEntries(), entries...))
	kinds := w.catalog.Kinds()
	w.logger.Infow("Template catalog reloaded", "dir", w.dir, logger.FieldCount, len(kinds))

	w.mu.Lock()
	callbacks := append([]func([]string){}, w.onReload...)
	w.mu.Unlock()
	for _, fn := range callbacks {
		fn(kinds)
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
