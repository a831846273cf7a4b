package rubric

import (
	"context"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"

	"call-insights-go/internal/logger"
)

// Watch reloads the catalog from dir whenever a file in it changes, until ctx
// is done. A reload that fails keeps the previous rubrics and is logged.
func (c *Catalog) Watch(ctx context.Context, dir string, log *logger.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rubric watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("rubric watcher: watch %s: %w", dir, err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if err := c.Reload(os.DirFS(dir)); err != nil {
					log.WithError(err).WithField("file", ev.Name).Warn("rubric reload failed, keeping previous rubrics")
					continue
				}
				log.WithField("file", ev.Name).WithField("rubrics", c.Keys()).Info("rubrics reloaded")
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("rubric watcher error")
			}
		}
	}()
	return nil
}
