package orchestrator

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// tempPrefixes are the names our own writers use for unfinished files.
var tempPrefixes = []string{".partial-", ".statuscheck-"}

// CleanupTemps removes leftover temporary files older than maxAge from dir
// and the per-job directories below it. They remain only when a process
// died mid-write.
func CleanupTemps(dir string, maxAge time.Duration) int {
	now := time.Now()
	removed := 0
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !isTemp(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if now.Sub(info.ModTime()) >= maxAge && os.Remove(p) == nil {
			removed++
		}
		return nil
	})
	if removed > 0 {
		log.Info().Str("dir", dir).Int("removed", removed).Msg("removed stale temp files")
	}
	return removed
}

// RunCleanup calls CleanupTemps every interval until ctx ends.
func RunCleanup(ctx context.Context, dir string, interval, maxAge time.Duration) {
	if dir == "" || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			CleanupTemps(dir, maxAge)
		}
	}
}

func isTemp(name string) bool {
	for _, p := range tempPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
