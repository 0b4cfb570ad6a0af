package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Cleanup removes every path it is given. It accepts path strings, *File, []*File, []string
// and nil; anything else is skipped. Failures are logged and never returned.
func (a *Area) Cleanup(items ...any) {
	for _, item := range items {
		switch v := item.(type) {
		case nil:
			continue
		case string:
			a.remove(v)
		case *File:
			if v != nil {
				a.remove(v.Path)
			}
		case []*File:
			for _, f := range v {
				if f != nil {
					a.remove(f.Path)
				}
			}
		case []string:
			for _, p := range v {
				a.remove(p)
			}
		default:
			a.logger.WithField("type", fmt.Sprintf("%T", item)).Debug("Cleanup skipped unsupported item")
		}
	}
}

func (a *Area) remove(path string) {
	if path == "" {
		return
	}
	defer a.release(path)
	if !a.Contains(path) {
		a.logger.WithField("path", path).Warn("Refusing to delete path outside the staging directory")
		a.reportFailure(path, ErrOutsideStaging)
		return
	}

	info, err := os.Lstat(path)
	if err != nil {
		a.logFailure(path, err)
		return
	}

	if info.IsDir() {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		a.logFailure(path, err)
		return
	}

	a.logger.WithField("path", path).Debug("Removed staged entry")
}

func (a *Area) logFailure(path string, err error) {
	if errors.Is(err, fs.ErrNotExist) {
		a.logger.WithField("path", path).Warn("Staged entry already gone")
		return
	}
	a.logger.WithError(err).WithField("path", path).Error("Failed to remove staged entry")
	a.reportFailure(path, err)
}

func (a *Area) reportFailure(path string, err error) {
	if a.onCleanupFailure != nil {
		a.onCleanupFailure(path, err)
	}
}

// Sweep removes top-level entries whose modification time is older than maxAge.
// It recovers space left by requests that never reached their cleanup, for example after a crash.
// Entries still owned by a running request are skipped whatever their age.
func (a *Area) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read staging directory: %w", err)
	}

	cutoff := a.now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(a.dir, entry.Name())
		if a.inFlight(path) {
			a.logger.WithField("path", path).Debug("Sweep skipped in-flight entry")
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			a.logger.WithError(err).WithField("path", path).Warn("Failed to sweep staged entry")
			a.reportFailure(path, err)
			continue
		}
		a.logger.WithFields(logrus.Fields{
			"path": path,
			"age":  a.now().Sub(info.ModTime()).Round(time.Second).String(),
		}).Debug("Swept orphaned entry")
		removed++
	}

	return removed, nil
}
