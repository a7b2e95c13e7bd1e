package config

import (
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file on write and republishes the parsed
// Config to registered callbacks. A bad edit (fails Validate) is logged
// and ignored — the watcher keeps serving the last good config.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher

	mu        sync.RWMutex
	current   Config
	callbacks []func(Config)

	closed chan struct{}
}

// Watch starts watching the directory containing path for changes to it.
// initial is used as the starting config until the first successful reload.
func Watch(path string, initial Config) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    path,
		watcher: fw,
		current: initial,
		closed:  make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers fn to be called with the new config after every
// successful reload. fn is also invoked once immediately with the current
// config so callers don't need a separate initial read.
func (w *Watcher) OnChange(fn func(Config)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, fn)
	cur := w.current
	w.mu.Unlock()
	fn(cur)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	select {
	case <-w.closed:
		return nil
	default:
		close(w.closed)
	}
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	target := filepath.Clean(w.path)
	for {
		select {
		case <-w.closed:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("CONFIG: watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Printf("CONFIG: hot reload failed for %s: %v", w.path, err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	callbacks := make([]func(Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	log.Printf("CONFIG: reloaded %s", w.path)
	for _, fn := range callbacks {
		fn(cfg)
	}
}
