package tunnel

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a params file whenever it is written and hands the result
// to an Editor.
type Watcher struct {
	path    string
	editor  *Editor
	log     Logger
	watcher *fsnotify.Watcher
	done    chan bool
}

// WatchParams starts watching path. The parent directory is watched so that
// editors which replace the file on save are handled too.
func WatchParams(path string, editor *Editor, log Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{
		path:    filepath.Clean(path),
		editor:  editor,
		log:     OrNop(log),
		watcher: fw,
		done:    make(chan bool),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warnf("params watcher: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	p, err := LoadParams(w.path)
	if err != nil {
		w.log.Warnf("params reload failed: %v", err)
		return
	}
	w.log.Infof("reloaded %s", w.path)
	w.editor.Replace(p)
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
