package httpapi

import (
	"io/fs"
	"net/http"
	"strings"
)

// dotlessFS hides every path with a segment starting with ".", so .env and
// .git next to the UI are never served.
type dotlessFS struct {
	http.FileSystem
}

func hasDotSegment(name string) bool {
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}

func (d dotlessFS) Open(name string) (http.File, error) {
	if hasDotSegment(name) {
		return nil, fs.ErrNotExist
	}
	f, err := d.FileSystem.Open(name)
	if err != nil {
		return nil, err
	}
	return dotlessFile{f}, nil
}

// dotlessFile drops dotfiles from directory listings.
type dotlessFile struct {
	http.File
}

func (f dotlessFile) Readdir(n int) ([]fs.FileInfo, error) {
	files, err := f.File.Readdir(n)
	out := files[:0]
	for _, fi := range files {
		if !strings.HasPrefix(fi.Name(), ".") {
			out = append(out, fi)
		}
	}
	return out, err
}
