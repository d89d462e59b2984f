// Package watch re-triggers work when input files change on disk.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"atsbeaters/internal/errors"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceDelay is used when no delay is configured
const DefaultDebounceDelay = 500 * time.Millisecond

type fileStamp struct {
	modTime time.Time
	size    int64
}

// FileWatcher watches a set of files and calls back, debounced, with the
// ones that changed
type FileWatcher struct {
	mu sync.RWMutex

	files []string
	last  map[string]fileStamp

	fsWatcher     *fsnotify.Watcher
	debounceDelay time.Duration
	debounceTimer *time.Timer

	stopChan   chan struct{}
	reloadChan chan struct{}
	done       chan struct{}

	onChange func(changed []string)
	logger   *errors.Logger

	running bool
}

// NewFileWatcher creates a watcher for files. onChange runs on the watcher
// goroutine; events arriving meanwhile are coalesced into the next call.
func NewFileWatcher(files []string, debounceDelay time.Duration, onChange func(changed []string), logger *errors.Logger) (*FileWatcher, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to watch")
	}
	if onChange == nil {
		return nil, fmt.Errorf("change callback is required")
	}
	if debounceDelay <= 0 {
		debounceDelay = DefaultDebounceDelay
	}

	abs := make([]string, 0, len(files))
	for _, f := range files {
		p, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", f, err)
		}
		if !slices.Contains(abs, p) {
			abs = append(abs, p)
		}
	}

	return &FileWatcher{
		files:         abs,
		last:          make(map[string]fileStamp),
		debounceDelay: debounceDelay,
		stopChan:      make(chan struct{}),
		reloadChan:    make(chan struct{}, 1),
		done:          make(chan struct{}),
		onChange:      onChange,
		logger:        logger,
	}, nil
}

// Start begins watching
func (fw *FileWatcher) Start() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("file watcher is already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	fw.fsWatcher = watcher

	for _, file := range fw.files {
		if stamp, ok := statFile(file); ok {
			fw.last[file] = stamp
		}
	}

	// Watching directories catches editors that save via rename
	for _, dir := range fw.dirs() {
		if err := fw.fsWatcher.Add(dir); err != nil {
			_ = fw.fsWatcher.Close()
			return fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
	}

	fw.running = true
	go fw.watchLoop()

	if fw.logger != nil {
		fw.logger.Info("File watcher started", "files", fw.files, "debounce_delay", fw.debounceDelay)
	}
	return nil
}

// Stop stops the watcher and waits for the loop to exit
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return nil
	}
	close(fw.stopChan)
	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
	}
	fw.running = false
	err := fw.fsWatcher.Close()
	fw.mu.Unlock()

	<-fw.done

	if err != nil {
		if fw.logger != nil {
			fw.logger.LogError(err, "Failed to close file system watcher")
		}
		return err
	}
	if fw.logger != nil {
		fw.logger.Info("File watcher stopped")
	}
	return nil
}

// IsRunning returns whether the watcher is currently running
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	return fw.running
}

// GetWatchedFiles returns the absolute paths being watched
func (fw *FileWatcher) GetWatchedFiles() []string {
	return slices.Clone(fw.files)
}

func (fw *FileWatcher) dirs() []string {
	var dirs []string
	for _, f := range fw.files {
		if d := filepath.Dir(f); !slices.Contains(dirs, d) {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

func (fw *FileWatcher) watchLoop() {
	defer close(fw.done)
	for {
		select {
		case event, ok := <-fw.fsWatcher.Events:
			if !ok {
				return
			}
			if fw.shouldProcessEvent(event) {
				fw.scheduleReload()
			}

		case err, ok := <-fw.fsWatcher.Errors:
			if !ok {
				return
			}
			if fw.logger != nil {
				fw.logger.LogError(err, "File watcher error")
			}

		case <-fw.reloadChan:
			if changed := fw.changedFiles(); len(changed) > 0 {
				if fw.logger != nil {
					fw.logger.Info("Watched files changed", "files", changed)
				}
				fw.onChange(changed)
			}

		case <-fw.stopChan:
			return
		}
	}
}

func (fw *FileWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	name, err := filepath.Abs(event.Name)
	if err != nil || !slices.Contains(fw.files, name) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0
}

// changedFiles compares current stamps with the last seen ones. A deleted
// file is not reported until it reappears.
func (fw *FileWatcher) changedFiles() []string {
	var changed []string
	for _, file := range fw.files {
		stamp, ok := statFile(file)
		if !ok {
			delete(fw.last, file)
			continue
		}
		if prev, seen := fw.last[file]; !seen || !stamp.modTime.Equal(prev.modTime) || stamp.size != prev.size {
			fw.last[file] = stamp
			changed = append(changed, file)
		}
	}
	return changed
}

func (fw *FileWatcher) scheduleReload() {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
	}

	fw.debounceTimer = time.AfterFunc(fw.debounceDelay, func() {
		select {
		case fw.reloadChan <- struct{}{}:
		default:
		}
	})
}

func statFile(path string) (fileStamp, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fileStamp{}, false
	}
	return fileStamp{modTime: info.ModTime(), size: info.Size()}, true
}
