package mavlog

import (
	"errors"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// SessionFiles lists the files of the session whose active file is named
// base, oldest first: backups by descending suffix, then base itself.
// Missing files are simply absent from the result.
func SessionFiles(dir, base string) ([]string, error) {
	suffixes, err := backupSuffixes(dir, base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &IOError{Op: "readdir", Path: dir, Err: err}
	}

	paths := make([]string, 0, len(suffixes)+1)
	for _, n := range suffixes {
		paths = append(paths, filepath.Join(dir, base+"."+strconv.Itoa(n)))
	}
	active := filepath.Join(dir, base)
	if _, err := os.Stat(active); err == nil {
		paths = append(paths, active)
	}
	return paths, nil
}

// ListSessions returns the active file names of every session in dir for
// the given name and extension, oldest first. Sessions with timestamped
// names sort by their embedded time; the plain "name.ext" session sorts last.
func ListSessions(dir, name, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &IOError{Op: "readdir", Path: dir, Err: err}
	}

	plain := name + "." + ext
	prefix := name + "_"
	suffix := "." + ext

	seen := make(map[string]bool)
	var stamped []string
	hasPlain := false
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fname := entry.Name()
		// Fold backups onto their session base
		if i := strings.LastIndexByte(fname, '.'); i >= 0 {
			if _, ok := parseSuffix(fname[i+1:]); ok {
				fname = fname[:i]
			}
		}
		switch {
		case fname == plain:
			hasPlain = true
		case strings.HasPrefix(fname, prefix) && strings.HasSuffix(fname, suffix):
			if !seen[fname] {
				seen[fname] = true
				stamped = append(stamped, fname)
			}
		}
	}

	// Fixed width time layout sorts lexically
	sort.Strings(stamped)
	if hasPlain {
		stamped = append(stamped, plain)
	}
	return stamped, nil
}

// Session concatenates the entry streams of several files in order
type Session struct {
	paths  []string
	idx    int
	cur    *Reader
	opts   []Option
	policy Policy
	diag   *zap.Logger
	tails  []TruncatedTail
	done   bool
}

// OpenSession reads every file of the session whose active file is base, in
// rotation order
func OpenSession(dir, base string, opts ...Option) (*Session, error) {
	paths, err := SessionFiles(dir, base)
	if err != nil {
		return nil, err
	}
	return NewSession(paths, opts...), nil
}

// NewSession reads the given files in the given order
func NewSession(paths []string, opts ...Option) *Session {
	o := newOptions(opts)
	return &Session{
		paths:  append([]string(nil), paths...),
		opts:   opts,
		policy: o.policy,
		diag:   o.diag,
	}
}

// Files returns the paths the session reads
func (s *Session) Files() []string {
	return append([]string(nil), s.paths...)
}

// Next returns the next entry across all files, io.EOF after the last one.
// A file that cannot be opened yields *FileError and, under the lenient
// policy, reading moves on to the next file. A file removed since the
// listing is skipped.
func (s *Session) Next() (Entry, error) {
	for {
		if s.done {
			return Entry{}, io.EOF
		}

		if s.cur == nil {
			if s.idx >= len(s.paths) {
				s.done = true
				return Entry{}, io.EOF
			}
			path := s.paths[s.idx]
			s.idx++

			r, err := OpenFile(path, s.opts...)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					s.diag.Info("session file vanished", zap.String("file", path))
					continue
				}
				s.diag.Warn("session file unusable", zap.String("file", path), zap.Error(err))
				if s.policy == PolicyStrict {
					s.done = true
				}
				return Entry{}, &FileError{Path: path, Err: err}
			}
			s.cur = r
		}

		e, err := s.cur.Next()
		if err == io.EOF {
			if t := s.cur.TruncatedTail(); t != nil {
				s.tails = append(s.tails, *t)
			}
			s.cur.Close()
			s.cur = nil
			continue
		}
		if err != nil && !IsRecoverable(err) {
			// The file's stream has ended
			if s.policy == PolicyStrict {
				s.done = true
				s.cur.Close()
				s.cur = nil
			}
		}
		return e, err
	}
}

// All iterates over the remaining entries of the session
func (s *Session) All() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for {
			e, err := s.Next()
			if err == io.EOF {
				return
			}
			if !yield(e, err) {
				return
			}
		}
	}
}

// TruncatedTails returns the truncated tails found in files read so far
func (s *Session) TruncatedTails() []TruncatedTail {
	return append([]TruncatedTail(nil), s.tails...)
}

// Close releases the file being read
func (s *Session) Close() error {
	s.done = true
	if s.cur == nil {
		return nil
	}
	err := s.cur.Close()
	s.cur = nil
	return err
}
