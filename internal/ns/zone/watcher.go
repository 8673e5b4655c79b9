package zone

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nsauthd/nsauthd/internal/ns/common/log"
	"github.com/nsauthd/nsauthd/internal/ns/domain"
)

// OnReload is called with the freshly loaded zone set after each directory
// reload triggered by Watch, including the initial load.
type OnReload func(zones map[domain.Name]*Zone)

// Watch loads dir once, invokes onReload, then watches dir for filesystem
// events and reloads on change, debouncing bursts of events (editors and
// `cp` commonly emit several events per file write) into a single reload.
// It runs until ctx is canceled.
func Watch(ctx context.Context, dir string, defaultTTL time.Duration, onReload OnReload) error {
	zones, err := LoadDirectory(dir, defaultTTL)
	if err != nil {
		return err
	}
	onReload(zones)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}

	const debounce = 250 * time.Millisecond
	var timer *time.Timer
	reload := func() {
		zones, err := LoadDirectory(dir, defaultTTL)
		if err != nil {
			log.Error(map[string]any{"dir": dir, "error": err.Error()}, "zone reload failed")
			return
		}
		onReload(zones)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error(map[string]any{"dir": dir, "error": err.Error()}, "zone watcher error")
		}
	}
}
