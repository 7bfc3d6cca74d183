package uploader

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// localFile is a file to upload and the name it gets in the bucket.
type localFile struct {
	path string
	name string
}

// evaluatePaths expands the glob patterns and drops the paths that don't point to regular files.
// Files matched by a pattern keep their path relative to the pattern base as their name,
// plain paths are named after their base name.
func (u *Uploader) evaluatePaths(paths []string) ([]localFile, error) {
	var expanded []localFile
	for _, path := range paths {
		if !strings.ContainsAny(path, "*?[{") {
			expanded = append(expanded, localFile{path: path, name: filepath.Base(path)})
			continue
		}

		base, pattern := doublestar.SplitPattern(filepath.ToSlash(path))
		absBase, err := u.pathModifier.AbsPath(base) // resolves ~/ and expands any envs
		if err != nil {
			return nil, err
		}
		matches, err := doublestar.Glob(os.DirFS(absBase), pattern, doublestar.WithNoFollow())
		if err != nil {
			u.logger.Warnf("Error in path pattern '%s': %s", path, err)
			continue
		}
		if len(matches) == 0 {
			u.logger.Warnf("No match for path pattern: %s", path)
			continue
		}

		for _, match := range matches {
			expanded = append(expanded, localFile{path: filepath.Join(absBase, match), name: match})
		}
	}

	var files []localFile
	seen := map[string]bool{}
	for _, file := range expanded {
		absPath, err := u.pathModifier.AbsPath(file.path)
		if err != nil {
			u.logger.Warnf("Failed to parse path %s, error: %s", file.path, err)
			continue
		}
		if seen[absPath] {
			continue
		}

		info, err := os.Stat(absPath)
		if err != nil {
			u.logger.Warnf("Upload path doesn't exist: %s", file.path)
			continue
		}
		if !info.Mode().IsRegular() {
			u.logger.Warnf("Upload path is not a regular file: %s", file.path)
			continue
		}

		seen[absPath] = true
		files = append(files, localFile{path: absPath, name: file.name})
	}

	return files, nil
}
