// Package notify provides the filesystem inbox: a watched directory where
// files dropped as <projectID>__<filename> are picked up and ingested
// without going through the HTTP API.
package notify

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Ingestor is the subset of the ingestion coordinator the watcher needs.
type Ingestor interface {
	Ingest(ctx context.Context, data []byte, filename, projectID string) (result interface{}, err error)
}

// IngestFunc adapts a plain function to the Ingestor interface.
type IngestFunc func(ctx context.Context, data []byte, filename, projectID string) (interface{}, error)

// Ingest calls the wrapped function.
func (f IngestFunc) Ingest(ctx context.Context, data []byte, filename, projectID string) (interface{}, error) {
	return f(ctx, data, filename, projectID)
}

// InboxWatcher watches a drop directory for upload files. Processed files
// move to the done/ subdirectory on success and failed/ on error; they are
// never left in place or deleted.
type InboxWatcher struct {
	dir      string
	ingestor Ingestor
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewInboxWatcher creates a watcher over the given inbox directory.
func NewInboxWatcher(dir string, ingestor Ingestor) *InboxWatcher {
	return &InboxWatcher{
		dir:      dir,
		ingestor: ingestor,
		done:     make(chan struct{}),
	}
}

// Start begins watching. Files already sitting in the inbox are drained
// first, then new arrivals are processed as they appear. Call Stop to clean
// up.
func (iw *InboxWatcher) Start() error {
	for _, sub := range []string{"", "done", "failed"} {
		if err := os.MkdirAll(filepath.Join(iw.dir, sub), 0o700); err != nil {
			return err
		}
	}

	iw.drainExisting()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(iw.dir); err != nil {
		_ = w.Close()
		return err
	}
	iw.watcher = w

	go iw.loop()
	log.Printf("notify: watching inbox %s", iw.dir)
	return nil
}

// Stop shuts down the watcher.
func (iw *InboxWatcher) Stop() {
	if iw.watcher != nil {
		_ = iw.watcher.Close()
	}
	<-iw.done
}

func (iw *InboxWatcher) loop() {
	defer close(iw.done)
	for {
		select {
		case evt, ok := <-iw.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
				iw.processFile(evt.Name)
			}
		case err, ok := <-iw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("notify: watcher error: %v", err)
		}
	}
}

func (iw *InboxWatcher) drainExisting() {
	entries, err := os.ReadDir(iw.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			iw.processFile(filepath.Join(iw.dir, entry.Name()))
		}
	}
}

// splitInboxName parses <projectID>__<filename> names. Files without the
// separator are not inbox uploads.
func splitInboxName(name string) (projectID, filename string, ok bool) {
	projectID, filename, found := strings.Cut(name, "__")
	if !found || projectID == "" || filename == "" {
		return "", "", false
	}
	return projectID, filename, true
}

func (iw *InboxWatcher) processFile(path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	name := filepath.Base(path)
	projectID, filename, ok := splitInboxName(name)
	if !ok {
		log.Printf("notify: ignoring %s: inbox files are named <projectID>__<filename>", name)
		return
	}

	// A freshly created file may still be mid-write; a short settle delay
	// covers atomic-rename producers and small direct writes alike.
	time.Sleep(100 * time.Millisecond)

	data, err := os.ReadFile(path)
	if err != nil {
		return // file already consumed
	}

	_, err = iw.ingestor.Ingest(context.Background(), data, filename, projectID)
	if err != nil {
		log.Printf("notify: ingestion of %s failed: %v", name, err)
		iw.moveTo(path, "failed")
		return
	}

	log.Printf("notify: ingested %s into project %s", filename, projectID)
	iw.moveTo(path, "done")
}

func (iw *InboxWatcher) moveTo(path, sub string) {
	dest := filepath.Join(iw.dir, sub, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		log.Printf("notify: failed to move %s to %s/: %v", filepath.Base(path), sub, err)
	}
}
