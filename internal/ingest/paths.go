package ingest

import (
	"os"
	"path/filepath"
	"strings"

	"weft/internal/modules"
)

// RootModulePath is the module that receives files living at the repo
// root, when no module prefix is configured.
const RootModulePath = "root"

// CanonicalizePath converts an absolute path to a repo-relative
// canonical path: symlinks resolved, forward slashes, relative to the
// repo root.
func CanonicalizePath(absolutePath, repoRoot string) (string, error) {
	resolved, err := filepath.EvalSymlinks(absolutePath)
	if err != nil {
		if os.IsNotExist(err) {
			resolved = absolutePath
		} else {
			return "", err
		}
	}

	rootResolved, err := filepath.EvalSymlinks(repoRoot)
	if err != nil {
		if os.IsNotExist(err) {
			rootResolved = repoRoot
		} else {
			return "", err
		}
	}

	rel, err := filepath.Rel(rootResolved, resolved)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// NormalizePath converts separators to forward slashes and strips any
// leading "./".
func NormalizePath(path string) string {
	p := filepath.ToSlash(path)
	return strings.TrimPrefix(p, "./")
}

// DeriveModulePath converts a repo-relative file path into a dotted
// module path: the file's directory segments joined by dots, under the
// optional prefix. "a/b/c.go" with prefix "project" derives
// "project.a.b"; a root-level file derives the prefix itself, or
// RootModulePath when no prefix is set.
func DeriveModulePath(relPath, prefix string) string {
	dir := filepath.ToSlash(filepath.Dir(NormalizePath(relPath)))
	if dir == "." || dir == "/" || dir == "" {
		if prefix != "" {
			return prefix
		}
		return RootModulePath
	}

	segments := strings.Split(dir, "/")
	for i, seg := range segments {
		segments[i] = sanitizeSegment(seg)
	}
	path := strings.Join(segments, modules.PathSeparator)
	if prefix != "" {
		path = prefix + modules.PathSeparator + path
	}
	return path
}

// sanitizeSegment makes a directory name safe as a dotted-path
// segment: dots and whitespace become dashes so the segment count
// stays stable.
func sanitizeSegment(seg string) string {
	seg = strings.TrimSpace(seg)
	seg = strings.ReplaceAll(seg, ".", "-")
	seg = strings.ReplaceAll(seg, " ", "-")
	if seg == "" {
		return "-"
	}
	return seg
}

// Ignored reports whether a repo-relative path matches any of the
// ignore fragments (compared per path segment).
func Ignored(relPath string, ignore []string) bool {
	if len(ignore) == 0 {
		return false
	}
	segments := strings.Split(NormalizePath(relPath), "/")
	for _, seg := range segments {
		for _, frag := range ignore {
			if seg == frag {
				return true
			}
		}
	}
	return false
}
