// Package signals watches a control directory for pause, resume, and
// stop signal files, so running queues can be steered from outside the
// process. Dropping a file named pause.research pauses the research
// queue; resume.research resumes it; stop requests a shutdown.
package signals

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/harperlabs/concierge/pkg/models"
)

// pollInterval is the fallback sweep cadence used when the filesystem
// watcher cannot be established, and the safety sweep alongside it.
const pollInterval = 5 * time.Second

// Controller pauses and resumes one worker type's queue. Implemented by
// the orchestrator.
type Controller interface {
	Pause(workerType models.WorkerType)
	Resume(workerType models.WorkerType)
}

// Watcher observes the control directory. Signal files are consumed:
// each is removed once acted on.
type Watcher struct {
	dir        string
	controller Controller
	onStop     func()

	quit chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// DefaultDir returns the XDG state directory for control signals.
func DefaultDir() string {
	if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		return filepath.Join(xdgState, "concierge", "signals")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".local", "state", "concierge", "signals")
	}
	return filepath.Join(home, ".local", "state", "concierge", "signals")
}

// NewWatcher creates a Watcher for dir. onStop is invoked once when a
// stop file appears; it may be nil.
func NewWatcher(dir string, controller Controller, onStop func()) (*Watcher, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	if controller == nil {
		return nil, fmt.Errorf("signals: controller is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create signal dir %s: %w", dir, err)
	}
	return &Watcher{
		dir:        dir,
		controller: controller,
		onStop:     onStop,
		quit:       make(chan struct{}),
	}, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Start begins watching. Falls back to polling when the filesystem
// watcher cannot be created; either way a periodic sweep catches files
// dropped before Start or during watcher hiccups.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		err = fsw.Add(w.dir)
	}
	if err != nil {
		log.Printf("[signals] filesystem watch unavailable, polling %s: %v", w.dir, err)
		fsw = nil
	}

	w.wg.Add(1)
	go w.loop(fsw)
}

// Stop ends watching. It does not remove pending signal files.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	select {
	case <-w.quit:
	default:
		close(w.quit)
	}
	w.wg.Wait()
}

func (w *Watcher) loop(fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	if fsw != nil {
		defer fsw.Close()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	w.sweep()

	for {
		if fsw != nil {
			select {
			case <-w.quit:
				return
			case event, ok := <-fsw.Events:
				if !ok {
					fsw = nil
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
					w.handle(event.Name)
				}
			case err, ok := <-fsw.Errors:
				if ok && err != nil {
					log.Printf("[signals] watch error: %v", err)
				}
			case <-ticker.C:
				w.sweep()
			}
			continue
		}

		select {
		case <-w.quit:
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

// sweep processes any signal files already sitting in the directory.
func (w *Watcher) sweep() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		log.Printf("[signals] read signal dir: %v", err)
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			w.handle(filepath.Join(w.dir, entry.Name()))
		}
	}
}

// handle acts on one signal file and removes it.
func (w *Watcher) handle(path string) {
	name := filepath.Base(path)

	consume := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("[signals] remove %s: %v", name, err)
		}
	}

	switch {
	case name == "stop":
		log.Printf("[signals] stop requested")
		consume()
		if w.onStop != nil {
			w.onStop()
		}

	case strings.HasPrefix(name, "pause."):
		workerType := models.WorkerType(strings.TrimPrefix(name, "pause."))
		consume()
		if !workerType.Valid() {
			log.Printf("[signals] ignoring pause for unknown worker type %q", workerType)
			return
		}
		w.controller.Pause(workerType)

	case strings.HasPrefix(name, "resume."):
		workerType := models.WorkerType(strings.TrimPrefix(name, "resume."))
		consume()
		if !workerType.Valid() {
			log.Printf("[signals] ignoring resume for unknown worker type %q", workerType)
			return
		}
		w.controller.Resume(workerType)
	}
}
