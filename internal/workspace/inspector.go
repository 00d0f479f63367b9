package workspace

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Match is a single substring occurrence, 1-based.
type Match struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Snippet string `json:"snippet"`
}

// Inspector provides read-only views of a codebase rooted at a single
// directory. It never writes; answering questions must not mutate the
// workspace.
type Inspector struct {
	guard        *PathGuard
	maxFileBytes int
}

// NewInspector builds an inspector for the given root.
func NewInspector(root string, maxFileBytes int) (*Inspector, error) {
	guard, err := NewPathGuard(root)
	if err != nil {
		return nil, err
	}
	if maxFileBytes <= 0 {
		maxFileBytes = 256 * 1024
	}
	return &Inspector{guard: guard, maxFileBytes: maxFileBytes}, nil
}

// Root returns the absolute workspace root.
func (i *Inspector) Root() string {
	return i.guard.BaseDir
}

// Resolve maps a workspace-relative path to an absolute one inside the root.
func (i *Inspector) Resolve(path string) (string, error) {
	return i.guard.Resolve(path)
}

// ListFiles walks the workspace and returns relative file paths, sorted.
// Hidden directories (leading dot) are skipped entirely.
func (i *Inspector) ListFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(i.guard.BaseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") && path != i.guard.BaseDir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		files = append(files, i.guard.Rel(path))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ReadFile returns file contents, truncated at the configured byte cap with
// an explicit marker so the caller knows content is missing.
func (i *Inspector) ReadFile(path string) (string, error) {
	resolved, err := i.guard.Resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", err
	}
	if len(data) > i.maxFileBytes {
		return string(data[:i.maxFileBytes]) + "\n... [truncated]", nil
	}
	return string(data), nil
}

// FindInFile returns every case-insensitive occurrence of needle in one file.
func (i *Inspector) FindInFile(path, needle string) ([]Match, error) {
	if needle == "" {
		return nil, fmt.Errorf("search string is required")
	}
	resolved, err := i.guard.Resolve(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(resolved)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	rel := i.guard.Rel(resolved)
	lowered := strings.ToLower(needle)

	var matches []Match
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 1
	for scanner.Scan() {
		line := scanner.Text()
		loweredLine := strings.ToLower(line)
		offset := 0
		for {
			idx := strings.Index(loweredLine[offset:], lowered)
			if idx < 0 {
				break
			}
			col := offset + idx
			matches = append(matches, Match{
				Path:    rel,
				Line:    lineNum,
				Column:  col + 1,
				Snippet: strings.TrimSpace(line),
			})
			offset = col + len(lowered)
		}
		lineNum++
	}
	if err := scanner.Err(); err != nil {
		return matches, err
	}
	return matches, nil
}

// FindInRepo searches every listed file for needle, capped at maxResults.
func (i *Inspector) FindInRepo(needle string, maxResults int) ([]Match, error) {
	if needle == "" {
		return nil, fmt.Errorf("search string is required")
	}
	if maxResults <= 0 {
		maxResults = 200
	}

	files, err := i.ListFiles()
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, f := range files {
		found, err := i.FindInFile(f, needle)
		if err != nil {
			// Unreadable or binary-ish files are skipped, not fatal.
			if errors.Is(err, bufio.ErrTooLong) || os.IsPermission(err) {
				continue
			}
			return matches, err
		}
		for _, m := range found {
			matches = append(matches, m)
			if len(matches) >= maxResults {
				return matches, nil
			}
		}
	}
	return matches, nil
}
