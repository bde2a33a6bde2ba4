// Package fileutil provides case-insensitive file lookup over fs.FS, so
// script directories behave the same on every platform and in embedded
// sample sets.
package fileutil

import (
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
)

// FindFileCaseInsensitiveFS searches dir for a file whose name matches
// filename ignoring case. An exact match wins over a case-folded one.
//
// Example:
//
//	p, err := FindFileCaseInsensitiveFS(os.DirFS("scripts"), ".", "Rules.WZS")
//	// finds "rules.wzs", "RULES.WZS", ...
func FindFileCaseInsensitiveFS(fsys fs.FS, dir, filename string) (string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	match := ""
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if entry.Name() == filename {
			return path.Join(dir, entry.Name()), nil
		}
		if match == "" && strings.EqualFold(entry.Name(), filename) {
			match = path.Join(dir, entry.Name())
		}
	}
	if match == "" {
		return "", fmt.Errorf("file not found: %s (searched in %s): %w", filename, dir, fs.ErrNotExist)
	}
	return match, nil
}

// ReadFile reads name from fsys, resolving the final path element
// case-insensitively. It also returns the path of the file actually read.
func ReadFile(fsys fs.FS, name string) ([]byte, string, error) {
	name = Clean(name)
	actual, err := FindFileCaseInsensitiveFS(fsys, path.Dir(name), path.Base(name))
	if err != nil {
		// ディレクトリを列挙できないFSでは名前どおりに読む
		if data, rerr := fs.ReadFile(fsys, name); rerr == nil {
			return data, name, nil
		}
		return nil, "", err
	}
	data, err := fs.ReadFile(fsys, actual)
	if err != nil {
		return nil, "", err
	}
	return data, actual, nil
}

// FindByExt walks root and returns every file whose extension matches ext
// ignoring case, in lexical order.
func FindByExt(fsys fs.FS, root, ext string) ([]string, error) {
	var found []string
	err := fs.WalkDir(fsys, Clean(root), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		// 拡張子をcase-insensitiveで比較
		if strings.EqualFold(path.Ext(p), ext) {
			found = append(found, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(found)
	return found, nil
}

// Clean turns a slash or backslash separated relative name into an fs.FS
// path.
func Clean(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return "."
	}
	return path.Clean(name)
}
