// FILE: lixenwraith/mavlog/storage.go
package mavlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// rotationPolicy is the storage slice of Config, resolved for one session
type rotationPolicy struct {
	dir       string
	base      string // active file name
	maxSize   int64
	maxCount  int
	minFreeKB int64
	sync      bool
}

// rotatingFile owns the active file of a session and the numbered backups
// next to it. Backup suffix 0 is the most recent; the active file carries no
// suffix.
type rotatingFile struct {
	policy     rotationPolicy
	preamble   func() ([]byte, error) // bytes written at the start of every file
	file       *os.File
	size       int64
	entryStart int64 // size of the active file's preamble
	state      *State
	metrics    *Metrics
	diag       *zap.Logger
}

func (r *rotatingFile) activePath() string {
	return filepath.Join(r.policy.dir, r.policy.base)
}

func (r *rotatingFile) backupPath(n int) string {
	return filepath.Join(r.policy.dir, fmt.Sprintf("%s.%d", r.policy.base, n))
}

// open creates the directory and the first active file. An active file left
// by an earlier session is rotated out first.
func (r *rotatingFile) open() error {
	if err := os.MkdirAll(r.policy.dir, 0755); err != nil {
		r.failed("mkdir")
		return &IOError{Op: "mkdir", Path: r.policy.dir, Err: err}
	}
	return r.rotate()
}

// write appends one encoded record, rotating first when the active file
// already holds an entry and the record would push it past maxSize. A record
// larger than maxSize still lands in a fresh file on its own.
func (r *rotatingFile) write(p []byte) error {
	if r.file == nil {
		// Previous rotation failed part way
		if err := r.rotate(); err != nil {
			return err
		}
	} else if r.size > r.entryStart && r.size+int64(len(p)) > r.policy.maxSize {
		if err := r.rotate(); err != nil {
			return err
		}
	}

	before := r.size
	n, err := r.file.Write(p)
	r.size += int64(n)
	if err != nil {
		r.failed("write")
		ioErr := &IOError{Op: "write", Path: r.activePath(), Err: err, StateUnknown: n > 0}
		if n > 0 {
			// Drop the partial record so later entries stay aligned
			if terr := r.file.Truncate(before); terr == nil {
				r.size = before
			} else {
				r.diag.Warn("failed to truncate partial record", zap.String("file", r.activePath()), zap.Error(terr))
			}
		}
		r.state.CurrentSize.Store(r.size)
		return ioErr
	}
	r.state.CurrentSize.Store(r.size)

	if r.policy.sync {
		if err := r.file.Sync(); err != nil {
			r.failed("sync")
			return &IOError{Op: "sync", Path: r.activePath(), Err: err, StateUnknown: true}
		}
	}
	return nil
}

// rotate closes the active file, shifts the backups and starts a new file
func (r *rotatingFile) rotate() error {
	if r.file != nil {
		if err := r.closeFile(); err != nil {
			// Entries already written stay where they are
			r.diag.Warn("failed to close file before rotation", zap.Error(err))
		}
	}

	moved, deleted, err := r.shift()
	if err != nil {
		return err
	}
	if err := r.create(); err != nil {
		return err
	}

	if moved {
		r.state.TotalRotations.Add(1)
		r.metrics.rotated(deleted)
		r.diag.Debug("rotated",
			zap.String("file", r.activePath()),
			zap.Int("deleted", deleted),
		)
	}
	return nil
}

// shift makes room for a new active file. Backups that would exceed the file
// count are deleted, the rest move one suffix up and the active file becomes
// backup 0. With a file count of one the active file is deleted instead.
func (r *rotatingFile) shift() (moved bool, deleted int, err error) {
	active := r.activePath()
	if _, err := os.Stat(active); err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		r.failed("stat")
		return false, 0, &IOError{Op: "stat", Path: active, Err: err}
	}

	if r.policy.maxCount <= 1 {
		if err := r.remove(active); err != nil {
			return false, 0, err
		}
		r.syncDir()
		return true, 1, nil
	}

	suffixes, err := backupSuffixes(r.policy.dir, r.policy.base)
	if err != nil {
		r.failed("readdir")
		return false, 0, &IOError{Op: "readdir", Path: r.policy.dir, Err: err}
	}

	// Backups end up as 0..maxCount-2
	evictFrom := r.policy.maxCount - 2
	for _, n := range suffixes {
		if n < evictFrom {
			continue
		}
		if err := r.remove(r.backupPath(n)); err != nil {
			return false, deleted, err
		}
		deleted++
	}

	// Descending order never overwrites a backup that has not moved yet
	for _, n := range suffixes {
		if n >= evictFrom {
			continue
		}
		if err := r.rename(r.backupPath(n), r.backupPath(n+1)); err != nil {
			return false, deleted, err
		}
	}

	if err := r.rename(active, r.backupPath(0)); err != nil {
		return false, deleted, err
	}
	r.syncDir()
	return true, deleted, nil
}

// create opens a fresh active file and writes its preamble
func (r *rotatingFile) create() error {
	path := r.activePath()

	if r.policy.minFreeKB > 0 {
		free, err := getDiskFreeSpace(r.policy.dir)
		if err != nil {
			r.diag.Warn("failed to check free disk space", zap.String("dir", r.policy.dir), zap.Error(err))
		} else if free < r.policy.minFreeKB*1024 {
			r.failed("create")
			return &IOError{Op: "create", Path: path, Err: ErrDiskFull}
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		r.failed("create")
		return &IOError{Op: "create", Path: path, Err: err}
	}

	pre, err := r.preamble()
	if err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if len(pre) > 0 {
		if _, err := f.Write(pre); err != nil {
			r.failed("write")
			f.Close()
			os.Remove(path)
			return &IOError{Op: "write", Path: path, Err: err}
		}
	}
	if r.policy.sync {
		if err := f.Sync(); err != nil {
			r.failed("sync")
			f.Close()
			os.Remove(path)
			return &IOError{Op: "sync", Path: path, Err: err}
		}
	}

	r.file = f
	r.size = int64(len(pre))
	r.entryStart = r.size
	r.state.CurrentFile.Store(path)
	r.state.CurrentSize.Store(r.size)
	r.state.TotalFiles.Add(1)
	r.syncDir()
	return nil
}

// close flushes and closes the active file
func (r *rotatingFile) close() error {
	if r.file == nil {
		return nil
	}
	return r.closeFile()
}

func (r *rotatingFile) closeFile() error {
	f := r.file
	r.file = nil

	var finalErr error
	if err := f.Sync(); err != nil {
		r.failed("sync")
		finalErr = combineErrors(finalErr, &IOError{Op: "sync", Path: f.Name(), Err: err})
	}
	if err := f.Close(); err != nil {
		r.failed("close")
		finalErr = combineErrors(finalErr, &IOError{Op: "close", Path: f.Name(), Err: err})
	}
	return finalErr
}

func (r *rotatingFile) remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		r.failed("remove")
		return &IOError{Op: "remove", Path: path, Err: err}
	}
	r.state.TotalDeletions.Add(1)
	r.diag.Debug("deleted", zap.String("file", path))
	return nil
}

func (r *rotatingFile) rename(from, to string) error {
	if err := os.Rename(from, to); err != nil {
		r.failed("rename")
		return &IOError{Op: "rename", Path: from, Err: err}
	}
	return nil
}

// syncDir is best effort; some file systems refuse directory fsync
func (r *rotatingFile) syncDir() {
	if err := syncDir(r.policy.dir); err != nil {
		r.diag.Debug("directory sync failed", zap.String("dir", r.policy.dir), zap.Error(err))
	}
}

func (r *rotatingFile) failed(op string) {
	r.state.TotalIOErrors.Add(1)
	r.metrics.writeFailed(op)
}

// backupSuffixes returns the numeric suffixes of base's backups in dir,
// highest (oldest) first
func backupSuffixes(dir, base string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	prefix := base + "."
	var suffixes []int
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		if n, ok := parseSuffix(entry.Name()[len(prefix):]); ok {
			suffixes = append(suffixes, n)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(suffixes)))
	return suffixes, nil
}

// parseSuffix accepts only plain decimal digits
func parseSuffix(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
