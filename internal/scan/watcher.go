package scan

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last change before a rescan.
const DefaultDebounce = 500 * time.Millisecond

// Watcher rescans one source directory whenever matching files appear,
// disappear, or are renamed, and reports the fresh list.
type Watcher struct {
	scanner  *Scanner
	dir      string
	debounce time.Duration
	onChange func(files []string)
	onError  func(err error)

	watcher *fsnotify.Watcher
	stop    chan struct{}
	done    chan struct{}

	mu    sync.Mutex
	timer *time.Timer
	once  sync.Once
}

// Watch starts watching dir. onChange receives the rescanned file list after
// each debounced burst of relevant events; onError may be nil.
func (s *Scanner) Watch(dir string, debounce time.Duration, onChange func(files []string), onError func(err error)) (*Watcher, error) {
	if _, err := s.Scan(dir); err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, &ScanError{Dir: dir, Err: err}
	}

	w := &Watcher{
		scanner:  s,
		dir:      dir,
		debounce: debounce,
		onChange: onChange,
		onError:  onError,
		watcher:  fw,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.processEvents()
	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Close stops the watcher and waits for its event loop to exit.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stop)
		err = w.watcher.Close()
		<-w.done

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	})
	return err
}

// processEvents filters fsnotify events until the watcher is closed.
func (w *Watcher) processEvents() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.reportError(err)
		case <-w.stop:
			return
		}
	}
}

// handleEvent schedules a rescan for list-changing events on matching names.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if !w.scanner.Matches(event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.rescan)
}

// rescan lists the directory again and forwards the result.
func (w *Watcher) rescan() {
	select {
	case <-w.stop:
		return
	default:
	}

	files, err := w.scanner.Scan(w.dir)
	if err != nil {
		w.reportError(err)
		return
	}
	if w.onChange != nil {
		w.onChange(files)
	}
}

func (w *Watcher) reportError(err error) {
	if w.onError != nil {
		w.onError(err)
	}
}
