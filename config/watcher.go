package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/gbpplanner/logging"
)

// A Watcher is responsible for watching for changes
// to a config from some source and delivering those changes
// to some destination.
type Watcher interface {
	Config() <-chan *Config
	Close() error
}

// NewWatcher returns a watcher that delivers the config at path every time the file is written
// and still parses. Invalid edits are logged and skipped.
func NewWatcher(ctx context.Context, path string, logger logging.Logger) (Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// editors often replace the file, so watch its directory
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		return nil, multierr.Combine(err, fsWatcher.Close())
	}
	cancelCtx, cancel := context.WithCancel(ctx)
	w := &fsConfigWatcher{
		fsWatcher: fsWatcher,
		configCh:  make(chan *Config),
		cancel:    cancel,
	}
	w.activeBackgroundWorkers.Add(1)
	utils.PanicCapturingGo(func() {
		defer w.activeBackgroundWorkers.Done()
		w.run(cancelCtx, filepath.Clean(path), logger)
	})
	return w, nil
}

type fsConfigWatcher struct {
	fsWatcher               *fsnotify.Watcher
	configCh                chan *Config
	cancel                  context.CancelFunc
	activeBackgroundWorkers sync.WaitGroup
}

func (w *fsConfigWatcher) run(ctx context.Context, path string, logger logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logger.Errorw("error watching config", "error", err)
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			cfg, err := Read(ctx, path, logger)
			if err != nil {
				logger.Errorw("error reading config after change", "error", err)
				continue
			}
			select {
			case <-ctx.Done():
				return
			case w.configCh <- cfg:
			}
		}
	}
}

func (w *fsConfigWatcher) Config() <-chan *Config {
	return w.configCh
}

func (w *fsConfigWatcher) Close() error {
	w.cancel()
	w.activeBackgroundWorkers.Wait()
	return w.fsWatcher.Close()
}
