package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxResults caps SearchFiles when no limit is configured.
const DefaultMaxResults = 100

// Entry is one item in a listing or search result.
type Entry struct {
	// Name is the base name for listings and the root-relative path for searches.
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// String renders the entry for chat replies.
func (e Entry) String() string {
	if e.IsDir {
		return "[DIR] " + e.Name + "/"
	}
	return fmt.Sprintf("[FILE] %s (%s)", e.Name, FormatSize(e.Size))
}

// Options configures a Service.
type Options struct {
	// MaxResults caps SearchFiles. Zero means DefaultMaxResults.
	MaxResults int
	// MaxFileSize caps Open. Zero means unlimited.
	MaxFileSize int64
}

// Service performs file operations confined to a root directory. Every
// path argument is checked with ValidatePath before the filesystem is
// touched.
type Service struct {
	root string
	opts Options
}

// NewService creates a Service rooted at root.
func NewService(root string, opts Options) (*Service, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	return &Service{root: absRoot, opts: opts}, nil
}

// Root returns the absolute root directory.
func (s *Service) Root() string {
	return s.root
}

// Resolve validates path against the root and returns the absolute path.
// An existing target must also stay under the root once symlinks are
// followed.
func (s *Service) Resolve(path string) (string, error) {
	full, err := ValidatePath(path, s.root)
	if err != nil {
		return "", err
	}
	if !s.contained(full) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return full, nil
}

// contained reports whether full stays under the root with symlinks
// followed. Targets that do not exist keep the lexical verdict.
func (s *Service) contained(full string) bool {
	target, err := filepath.EvalSymlinks(full)
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	if err != nil {
		return false
	}
	root, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		root = s.root
	}
	return within(target, root)
}

// Rel returns abs relative to the root, using "." for the root itself.
func (s *Service) Rel(abs string) string {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return abs
	}
	return rel
}

// ListDirectory returns one entry per child of path, sorted by name.
func (s *Service) ListDirectory(path string) ([]Entry, error) {
	dir, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, path)
	}

	children, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(children))
	for _, child := range children {
		entries = append(entries, s.entryFor(filepath.Join(dir, child.Name()), child.Name(), child))
	}
	return entries, nil
}

// entryFor follows symlinks so a link to a directory lists as a directory.
// Links leaving the root are reported without following them.
func (s *Service) entryFor(full, name string, d fs.DirEntry) Entry {
	if d.Type()&fs.ModeSymlink != 0 && !s.contained(full) {
		return Entry{Name: name}
	}
	info, err := os.Stat(full)
	if err != nil {
		// Dangling link or permission problem: report what ReadDir saw.
		return Entry{Name: name, IsDir: d.IsDir()}
	}
	if info.IsDir() {
		return Entry{Name: name, IsDir: true}
	}
	return Entry{Name: name, Size: info.Size()}
}

// FileExists reports whether path is an existing regular file.
// Invalid paths report false.
func (s *Service) FileExists(path string) bool {
	full, err := s.Resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && info.Mode().IsRegular()
}

// DeleteFile removes a regular file. It returns false with a nil error when
// there is nothing to delete, and ErrNotRegularFile for directories.
func (s *Service) DeleteFile(path string) (bool, error) {
	full, err := s.Resolve(path)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return false, fmt.Errorf("%w: %s", ErrNotRegularFile, path)
	}

	if err := os.Remove(full); err != nil {
		return false, fmt.Errorf("deleting %s: %w", path, err)
	}
	return true, nil
}

// SearchFiles walks searchPath recursively and returns entries whose base
// name contains query (case-sensitive), named relative to the root. Hidden
// entries are skipped and hidden directories are not descended into. At
// most MaxResults entries are returned. A missing searchPath yields no
// results.
func (s *Service) SearchFiles(query, searchPath string) ([]Entry, error) {
	if searchPath == "" {
		searchPath = "."
	}
	start, err := s.Resolve(searchPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(start); errors.Is(err, fs.ErrNotExist) {
		return []Entry{}, nil
	}

	var results []Entry
	err = filepath.WalkDir(start, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable subtrees are skipped, not fatal.
			if d != nil && d.IsDir() && p != start {
				return fs.SkipDir
			}
			return nil
		}
		if p == start {
			return nil
		}

		name := d.Name()
		if strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if strings.Contains(name, query) {
			e := s.entryFor(p, s.Rel(p), d)
			results = append(results, e)
			if len(results) >= s.opts.MaxResults {
				return fs.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", searchPath, err)
	}
	return results, nil
}

// Open opens a regular file for download and returns it with its size.
// Files larger than MaxFileSize yield ErrTooLarge.
func (s *Service) Open(path string) (*os.File, int64, error) {
	full, err := s.Resolve(path)
	if err != nil {
		return nil, 0, err
	}

	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotRegularFile, path)
	}
	if s.opts.MaxFileSize > 0 && info.Size() > s.opts.MaxFileSize {
		return nil, 0, fmt.Errorf("%w: %s is %s, limit %s",
			ErrTooLarge, path, FormatSize(info.Size()), FormatSize(s.opts.MaxFileSize))
	}

	f, err := os.Open(full) //nolint:gosec // path validated against root above
	if err != nil {
		return nil, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, info.Size(), nil
}
