package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/gbpplanner/logging"
)

func TestWatcher(t *testing.T) {
	logger := logging.NewTestLogger(t)
	path := filepath.Join(t.TempDir(), "cfg.json")
	test.That(t, os.WriteFile(path, []byte(`{}`), 0o600), test.ShouldBeNil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	watcher, err := NewWatcher(ctx, path, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, watcher.Close(), test.ShouldBeNil)
	}()

	// an invalid edit is skipped and the next valid one is delivered
	test.That(t, os.WriteFile(path, []byte(`{"robot": {"radius": -1}}`), 0o600), test.ShouldBeNil)
	test.That(t, os.WriteFile(path, []byte(`{"robot": {"radius": 3}}`), 0o600), test.ShouldBeNil)

	for {
		select {
		case <-ctx.Done():
			t.Fatal("no config delivered")
		case cfg := <-watcher.Config():
			if cfg.Robot.Radius == 3 {
				return
			}
			test.That(t, cfg.Robot.Radius, test.ShouldEqual, 1.)
		}
	}
}
