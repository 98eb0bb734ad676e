package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/715d/defender/pkg/defender"
)

// watch lowers every file once, then again each time one is written,
// until ctx is done. The containing directories are watched rather than
// the files so that editors replacing a file on save are noticed.
func watch(ctx context.Context, cfg *Config, lowerer *defender.Lowerer, w io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errWithCode(fmt.Errorf("create watcher: %w", err), exitError)
	}
	defer watcher.Close()

	watched := make(map[string]string, len(cfg.Files)) // absolute path -> argument
	dirs := make(map[string]bool)
	for _, file := range cfg.Files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return errWithCode(fmt.Errorf("resolve %s: %w", file, err), exitError)
		}
		watched[abs] = file
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return errWithCode(fmt.Errorf("watch %s: %w", dir, err), exitError)
		}
		dirs[dir] = true
	}

	results, err := lowerFiles(ctx, lowerer, cfg.Files)
	if err != nil {
		return errWithCode(err, exitError)
	}
	if err := writeResults(w, results, cfg); err != nil {
		return errWithCode(fmt.Errorf("format results: %w", err), exitError)
	}
	slog.Info("watching for changes", "files", cfg.Files)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			file, ok := watched[filepath.Clean(ev.Name)]
			if !ok {
				continue
			}
			slog.Debug("file changed", "file", file, "op", ev.Op.String())
			results := []*FileResult{lowerFile(lowerer, file)}
			if err := writeResults(w, results, cfg); err != nil {
				return errWithCode(fmt.Errorf("format results: %w", err), exitError)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("watch error", "err", err)
		}
	}
}
