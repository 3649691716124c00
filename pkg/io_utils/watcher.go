package output

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

var (
	watchMutex    sync.Mutex
	watchedDirs   = make(map[string]bool)
	logExtensions = map[string]bool{".log": true, ".txt": true, ".json": true, ".xml": true}
)

// WatchSessionRoot tails the session directory tree and logs artifact
// writes. New per-invocation directories are added to the watch as they
// appear.
func WatchSessionRoot(ctx context.Context, root string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Errorf("Failed to create session watcher: %v", err)
		return
	}
	defer watcher.Close()

	if err := os.MkdirAll(root, 0o755); err != nil {
		log.Errorf("Session root unavailable: %v", err)
		return
	}
	if err := watcher.Add(root); err != nil {
		log.Errorf("Failed to watch %s: %v", root, err)
		return
	}
	log.Infof("Watching session root: %s", root)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if event.Op&fsnotify.Create == fsnotify.Create {
				fi, err := os.Stat(event.Name)
				if err == nil && fi.IsDir() {
					addWatch(watcher, event.Name)
					continue
				}
			}

			if event.Op&fsnotify.Write == fsnotify.Write {
				if !logExtensions[filepath.Ext(event.Name)] {
					continue
				}
				fi, err := os.Stat(event.Name)
				if err != nil || fi.IsDir() {
					continue
				}
				log.WithFields(log.Fields{
					"artifact": event.Name,
					"size":     fi.Size(),
				}).Debug("Session artifact updated")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("Session watcher error: %v", err)
		}
	}
}

func addWatch(watcher *fsnotify.Watcher, dir string) {
	watchMutex.Lock()
	defer watchMutex.Unlock()
	if watchedDirs[dir] {
		return
	}
	if err := watcher.Add(dir); err != nil {
		log.Errorf("Failed to watch %s: %v", dir, err)
		return
	}
	watchedDirs[dir] = true
}
