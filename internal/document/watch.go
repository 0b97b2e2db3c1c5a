package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Watch re-reads the document's source file whenever it is written and
// swaps the new tree in. onReload, if set, runs after each swap. Watch
// blocks until ctx is done.
func (d *Document) Watch(ctx context.Context, onReload func()) error {
	path := d.Source()
	if path == "" {
		return fmt.Errorf("document has no source file to watch")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("unable to watch %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating fsnotify watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	// Editors often replace files instead of writing them, so watch the dir.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("error adding dir to fsnotify watcher: %w", err)
	}
	log.Info("fsnotify watching dir", "dir", dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != path || (!event.Has(fsnotify.Write) && !event.Has(fsnotify.Create)) {
				continue
			}
			log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			if err := d.reload(path); err != nil {
				log.Warn("could not reload document", "file", path, "err", err)
				continue
			}
			if onReload != nil {
				onReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug("fsnotify error", "dir", dir, "error", err)
		}
	}
}

func (d *Document) reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	fresh, err := Decode(data, IsMarkdown(path))
	if err != nil {
		return err
	}
	d.Replace(fresh.root)
	return nil
}
