package syncer

import (
	"fmt"
	"os"
	"path/filepath"
)

// LocalFile is one entry from a directory listing.
type LocalFile struct {
	RelPath string // slash-separated, relative to the listed root
	AbsPath string
	Size    int64
	ModTime int64 // milliseconds since epoch
}

// ListFiles enumerates all regular files under root. The traversal keeps an
// explicit directory stack instead of recursing, so arbitrarily deep trees
// cannot exhaust the call stack.
func ListFiles(root string) ([]LocalFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFolderNotFound
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var files []LocalFile
	stack := []string{root}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", dir, err)
		}
		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				stack = append(stack, full)
				continue
			}
			if !entry.Type().IsRegular() {
				continue
			}
			fi, err := entry.Info()
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", full, err)
			}
			rel, err := filepath.Rel(root, full)
			if err != nil {
				return nil, err
			}
			files = append(files, LocalFile{
				RelPath: filepath.ToSlash(rel),
				AbsPath: full,
				Size:    fi.Size(),
				ModTime: fi.ModTime().UnixMilli(),
			})
		}
	}
	return files, nil
}
