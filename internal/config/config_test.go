package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/huishype/huishype/internal/config"
	"github.com/huishype/huishype/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.EventQueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 50_000)
			convey.So(cfg.MaxBoardLimit, convey.ShouldEqual, 100)
			convey.So(cfg.WSEnabled, convey.ShouldBeTrue)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestWatch(t *testing.T) {
	convey.Convey("Given a watched config file", t, func() {
		convey.So(logger.Init(), convey.ShouldBeNil)
		clearConfigEnvVars()

		path := filepath.Join(t.TempDir(), "huishype.yaml")
		convey.So(os.WriteFile(path, []byte("log_level: info\n"), 0o600), convey.ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		changes := make(chan *config.Config, 4)
		errc := make(chan error, 1)
		go func() { errc <- config.Watch(ctx, path, func(c *config.Config) { changes <- c }) }()

		// Give the watcher time to register the file.
		time.Sleep(100 * time.Millisecond)

		convey.Convey("When the file is rewritten with valid settings", func() {
			convey.So(os.WriteFile(path, []byte("log_level: debug\nmax_board_limit: 25\n"), 0o600), convey.ShouldBeNil)

			convey.Convey("Then onChange receives the reloaded config", func() {
				// The truncate may surface as its own reload of an empty file.
				deadline := time.After(2 * time.Second)
				var got *config.Config
				for got == nil {
					select {
					case c := <-changes:
						if c.LogLevel == "debug" {
							got = c
						}
					case <-deadline:
						t.Fatal("no reload observed")
					}
				}
				convey.So(got.MaxBoardLimit, convey.ShouldEqual, 25)
			})
		})

		convey.Convey("When the context is cancelled", func() {
			cancel()

			convey.Convey("Then Watch returns cleanly", func() {
				select {
				case err := <-errc:
					convey.So(err, convey.ShouldBeNil)
				case <-time.After(2 * time.Second):
					t.Fatal("watch did not return")
				}
			})
		})
	})
}

func TestWatchRenameSave(t *testing.T) {
	convey.Convey("Given a watched config file in its own directory", t, func() {
		convey.So(logger.Init(), convey.ShouldBeNil)
		clearConfigEnvVars()

		dir := t.TempDir()
		path := filepath.Join(dir, "huishype.yaml")
		convey.So(os.WriteFile(path, []byte("log_level: info\n"), 0o600), convey.ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		changes := make(chan *config.Config, 8)
		go func() { _ = config.Watch(ctx, path, func(c *config.Config) { changes <- c }) }()
		time.Sleep(100 * time.Millisecond)

		waitForLevel := func(level string) bool {
			deadline := time.After(2 * time.Second)
			for {
				select {
				case c := <-changes:
					if c.LogLevel == level {
						return true
					}
				case <-deadline:
					return false
				}
			}
		}

		convey.Convey("When an editor renames a temp file over it", func() {
			tmp := filepath.Join(dir, ".huishype.yaml.swp")
			convey.So(os.WriteFile(tmp, []byte("log_level: debug\n"), 0o600), convey.ShouldBeNil)
			convey.So(os.Rename(tmp, path), convey.ShouldBeNil)

			convey.Convey("Then the new file is loaded and later writes are still seen", func() {
				convey.So(waitForLevel("debug"), convey.ShouldBeTrue)

				convey.So(os.WriteFile(path, []byte("log_level: warn\n"), 0o600), convey.ShouldBeNil)
				convey.So(waitForLevel("warn"), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a sibling file changes", func() {
			convey.So(os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("log_level: debug\n"), 0o600), convey.ShouldBeNil)

			convey.Convey("Then no reload happens", func() {
				select {
				case c := <-changes:
					t.Fatalf("unexpected reload with level %q", c.LogLevel)
				case <-time.After(300 * time.Millisecond):
				}
			})
		})
	})
}

func TestWatchMissingFile(t *testing.T) {
	convey.Convey("Given a path that does not exist", t, func() {
		convey.So(logger.Init(), convey.ShouldBeNil)
		err := config.Watch(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), func(*config.Config) {})

		convey.Convey("Then Watch fails immediately", func() {
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})
	})
}
