// Package watch re-applies edits whenever the game rewrites its save file.
package watch

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Apply_func does whatever needs doing to the save at path.
// changed says whether it actually had to write anything.
type Apply_func func(path string) (changed bool, err error)

type Save_watcher interface {
	Start_watching() error
	Stop_watching()
}

// New_watcher watches dir for writes to the file called name.  After the last write
// in a burst, it waits settle (so the game can finish with the file) and then calls apply.
func New_watcher(dir string, name string, settle time.Duration, apply Apply_func, log *slog.Logger) Save_watcher {
	return &dir_watcher{dir: dir, name: name, settle: settle, apply: apply, log: log}
}

type dir_watcher struct {
	dir    string
	name   string
	settle time.Duration
	apply  Apply_func
	log    *slog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

func (dw *dir_watcher) path() string {
	return filepath.Join(dw.dir, dw.name)
}

// ours is true for events about the save file.  Windows does not care about case, so neither do we.
func (dw *dir_watcher) ours(event fsnotify.Event) bool {
	if !strings.EqualFold(filepath.Base(event.Name), dw.name) {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}

func (dw *dir_watcher) Start_watching() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "starting file watcher")
	}
	if err := watcher.Add(dw.dir); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "watching %v", dw.dir)
	}
	dw.watcher = watcher
	dw.done = make(chan struct{})

	go dw.loop()
	dw.log.Info("watching for saves", "file", dw.path())
	return nil
}

func (dw *dir_watcher) Stop_watching() {
	dw.once.Do(func() {
		if dw.watcher == nil {
			return
		}
		dw.watcher.Close()
		<-dw.done
	})
}

func (dw *dir_watcher) loop() {
	defer close(dw.done)

	// nil until a write arrives; each further write pushes it back
	var settled <-chan time.Time

	for {
		select {
		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if dw.ours(event) {
				dw.log.Debug("save file touched", "op", event.Op.String())
				settled = time.After(dw.settle)
			}

		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			dw.log.Warn("file watcher error", "err", err)

		case <-settled:
			settled = nil
			dw.handle_file()
		}
	}
}

func (dw *dir_watcher) handle_file() {
	changed, err := dw.apply(dw.path())
	switch {
	case err != nil:
		// Most likely the game was still writing.  The next write will get another go.
		dw.log.Error("could not update save", "file", dw.path(), "err", err)
	case changed:
		dw.log.Info("save updated", "file", dw.path())
	default:
		dw.log.Debug("save already up to date", "file", dw.path())
	}
}
