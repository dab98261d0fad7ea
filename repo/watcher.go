package repo

import (
	"os"
	"path/filepath"
	"time"

	"github.com/chunkernet/chunker/chunkfile"
	"github.com/chunkernet/chunker/crypto"
	"github.com/fsnotify/fsnotify"
)

// startWatcher subscribes to create and delete events under Root,
// recursively, with auto-add for new subdirectories. Modification events are
// deliberately not wired — they fire too often mid-write. Nothing in this
// package rescans periodically: a modification is picked up only when
// AddLocalFiles next runs, and Core calls it only when a repo is created.
func (r *Repo) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	err = filepath.Walk(r.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return err
	}

	if err := r.threads.Add(); err != nil {
		watcher.Close()
		return err
	}
	go func() {
		defer r.threads.Done()
		defer watcher.Close()
		r.watchLoop(watcher)
	}()
	return nil
}

func (r *Repo) watchLoop(watcher *fsnotify.Watcher) {
	for {
		select {
		case <-r.threads.StopChan():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			r.handleFSEvent(watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if r.log != nil {
				r.log.Println("fsnotify error:", err)
			}
		}
	}
}

func (r *Repo) handleFSEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	relPath, err := filepath.Rel(r.Root, event.Name)
	if err != nil {
		return
	}

	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			watcher.Add(event.Name) // auto-add new subdirectories
			return
		}
		mtime := crypto.TSRound(float64(info.ModTime().Unix()))
		if err := r.Update(relPath, chunkfile.VersionRecord{Timestamp: mtime}); err != nil && r.log != nil {
			r.log.Println("watcher update failed for", relPath, ":", err)
		}

	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		ts := crypto.TSRound(float64(time.Now().Unix()))
		if err := r.Update(relPath, chunkfile.VersionRecord{Timestamp: ts, Deleted: true}); err != nil && r.log != nil {
			r.log.Println("watcher delete failed for", relPath, ":", err)
		}
	}
}
