package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/blackwell-systems/cratebot/internal/logger"
)

// CredentialSource hands out the credentials to use for the next post.
type CredentialSource interface {
	Credentials() (Credentials, error)
}

// Static is a CredentialSource that never changes.
type Static Credentials

// Credentials returns the fixed credentials after validating them.
func (s Static) Credentials() (Credentials, error) {
	c := Credentials(s)
	if err := c.Validate(); err != nil {
		return Credentials{}, err
	}
	return c, nil
}

// CredentialWatcher reloads credentials whenever the secrets file changes.
// A reload that fails keeps the last good credentials.
type CredentialWatcher struct {
	path        string
	requireFile bool
	log         logger.Logger

	mu      sync.RWMutex
	current Credentials

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
	reloads chan struct{}
}

// WatchCredentials loads credentials once and then watches path until ctx is
// cancelled or Close is called. The parent directory is watched so that
// editors which replace the file by rename are picked up.
func WatchCredentials(ctx context.Context, path string, requireFile bool, log logger.Logger) (*CredentialWatcher, error) {
	creds, err := LoadCredentials(path, requireFile)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to resolve secrets path %s: %w", path, err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	w := &CredentialWatcher{
		path:        abs,
		requireFile: requireFile,
		log:         log,
		current:     creds,
		watcher:     fw,
		reloads:     make(chan struct{}, 1),
	}

	w.wg.Add(1)
	go w.run(ctx)

	return w, nil
}

// Credentials returns the most recently loaded credentials.
func (w *CredentialWatcher) Credentials() (Credentials, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current, nil
}

// Reloaded receives a value after every successful reload.
func (w *CredentialWatcher) Reloaded() <-chan struct{} {
	return w.reloads
}

// Close stops watching.
func (w *CredentialWatcher) Close() error {
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *CredentialWatcher) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("secrets file watcher error", logger.Error(err))
		}
	}
}

func (w *CredentialWatcher) reload() {
	creds, err := LoadCredentials(w.path, w.requireFile)
	if err != nil {
		w.log.Warn("failed to reload credentials, keeping previous",
			logger.String("path", w.path),
			logger.Error(err))
		return
	}

	w.mu.Lock()
	w.current = creds
	w.mu.Unlock()

	w.log.Info("reloaded credentials", logger.String("path", w.path))

	select {
	case w.reloads <- struct{}{}:
	default:
	}
}
