package config

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"github.com/infrapilot/infrapilot/internal/logger"
)

// Watch observes the config file and logs when it changes on disk. The
// running process keeps its startup configuration; the log line tells the
// operator a restart is needed to pick the change up.
func Watch(ctx context.Context, path string, log logger.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
					log.Info("config file changed on disk, restart to apply",
						logger.String("path", event.Name))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error", logger.Error(err))
			}
		}
	}()
	return nil
}
