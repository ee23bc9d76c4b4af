// Package search implements PicoFS's SearchEngine (spec.md §2): recursive
// name-glob and line-level content grep over the unified namespace. It
// depends on neither internal/tree nor internal/mount directly — a
// Namespace interface lets the caller (the FileSystem facade) supply a
// single read path that dispatches across in-memory and mounted paths the
// same way stat/readDir/readAt already do, so search walks both without
// this package needing to know the difference.
package search

import (
	"bufio"
	"bytes"
	"path"
	"regexp"
	"sort"

	"github.com/picofs/picofs/internal/node"
	"github.com/picofs/picofs/pkg/errors"
)

// Entry is one row of a directory listing, as seen by search.
type Entry struct {
	Name string
	Type node.Type
}

// Info is the stat projection search needs: only the type, to decide
// whether a path is worth recursing into or reading as content.
type Info struct {
	Type node.Type
}

// Namespace is the read surface search walks. The FileSystem facade
// implements it by dispatching each call between the in-memory tree and
// whichever mount owns the path, exactly as it already does for the
// public Stat/ReadDir/ReadAll operations (spec.md §5 groups stat, readDir,
// readAt, and search together as the operations allowed to run
// concurrently under a read guard).
type Namespace interface {
	Stat(p string) (Info, error)
	ReadDir(p string) ([]Entry, error)
	ReadAllContent(p string) ([]byte, error)
}

// errStop aborts an in-progress walk once a MaxResults cap is reached,
// without being surfaced to the caller as a failure.
var errStop = errors.New(errors.ErrCodeUnknown, "search: walk stopped early")

// Engine is the SearchEngine: a thin, stateless walker over a Namespace.
type Engine struct {
	ns Namespace
}

// New creates an Engine that searches ns.
func New(ns Namespace) *Engine {
	return &Engine{ns: ns}
}

// GlobQuery describes a recursive name-glob search, an immutable
// value-type option record per spec.md §9 ("search query ... immutable
// records passed by value").
type GlobQuery struct {
	Root       string // search root; "" defaults to "/"
	Pattern    string // shell glob matched against each entry's base name
	MaxResults int    // 0 means unlimited
}

// GlobHit is one name-glob match.
type GlobHit struct {
	Path string
	Type node.Type
}

// Glob walks q.Root recursively and returns every entry whose base name
// matches q.Pattern (path.Match semantics: '*', '?', and '[...]' classes,
// matched against one path segment at a time — a name containing '/' is
// impossible since base names never do).
func (e *Engine) Glob(q GlobQuery) ([]GlobHit, error) {
	root := q.Root
	if root == "" {
		root = "/"
	}
	if err := validateGlobPattern(q.Pattern); err != nil {
		return nil, errors.InvalidPath(q.Pattern).WithDetail("reason", "malformed glob pattern")
	}

	var hits []GlobHit
	err := e.walk(root, func(p string, entryType node.Type) error {
		if match, _ := path.Match(q.Pattern, path.Base(p)); match {
			hits = append(hits, GlobHit{Path: p, Type: entryType})
			if q.MaxResults > 0 && len(hits) >= q.MaxResults {
				return errStop
			}
		}
		return nil
	})
	if err != nil && err != errStop {
		return nil, err
	}
	return hits, nil
}

// validateGlobPattern checks a glob pattern using the same rules Glob
// matching will apply, so a malformed pattern fails fast instead of
// silently matching nothing on every entry.
func validateGlobPattern(pattern string) error {
	_, err := path.Match(pattern, "")
	return err
}

// GrepQuery describes a recursive line-level content grep.
type GrepQuery struct {
	Root       string // search root; "" defaults to "/"
	Pattern    string // regexp.Compile syntax
	MaxResults int    // 0 means unlimited
}

// GrepHit is one matching line within one file.
type GrepHit struct {
	Path string
	Line int // 1-indexed
	Text string
}

// Grep walks q.Root recursively, compiles q.Pattern once, and scans every
// regular file's content line by line, returning every matching line.
// Directories and symlinks are never grepped; their content has no lines
// to match (symlinks have no content per spec.md §3).
func (e *Engine) Grep(q GrepQuery) ([]GrepHit, error) {
	root := q.Root
	if root == "" {
		root = "/"
	}
	re, err := regexp.Compile(q.Pattern)
	if err != nil {
		return nil, errors.InvalidPath(q.Pattern).WithDetail("reason", "malformed grep pattern")
	}

	var hits []GrepHit
	walkErr := e.walk(root, func(p string, entryType node.Type) error {
		if entryType != node.File {
			return nil
		}
		content, err := e.ns.ReadAllContent(p)
		if err != nil {
			return nil // a file that vanished mid-walk is not a search failure
		}
		lineNo := 0
		scanner := bufio.NewScanner(bytes.NewReader(content))
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if re.MatchString(line) {
				hits = append(hits, GrepHit{Path: p, Line: lineNo, Text: line})
				if q.MaxResults > 0 && len(hits) >= q.MaxResults {
					return errStop
				}
			}
		}
		return nil
	})
	if walkErr != nil && walkErr != errStop {
		return nil, walkErr
	}
	return hits, nil
}

// walk performs a depth-first, name-sorted traversal of root, invoking
// visit for every entry (files, directories, and symlinks alike) with its
// full path and type. Returning errStop from visit aborts the entire walk
// early without being treated as a failure by Glob/Grep; any other error
// aborts the walk and is returned to the caller.
func (e *Engine) walk(root string, visit func(p string, t node.Type) error) error {
	info, err := e.ns.Stat(root)
	if err != nil {
		return err
	}
	return e.walkNode(root, info.Type, visit)
}

func (e *Engine) walkNode(p string, t node.Type, visit func(string, node.Type) error) error {
	if err := visit(p, t); err != nil {
		return err
	}
	if t != node.Directory {
		return nil
	}

	entries, err := e.ns.ReadDir(p)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	for _, child := range entries {
		childPath := path.Join(p, child.Name)
		if err := e.walkNode(childPath, child.Type, visit); err != nil {
			return err
		}
	}
	return nil
}
