package files

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

const defaultMimeType = "application/octet-stream"

// FileInfo holds information about a file to be sent
type FileInfo struct {
	// Path is the absolute path to the file
	Path string

	// Name is the filename (without directory)
	Name string

	// Size is the file size in bytes
	Size int64

	// Type is the MIME type of the file (e.g., "application/pdf", "text/plain")
	Type string
}

// Validate checks that path is a readable regular file. A maxSize above
// zero rejects larger files.
func Validate(path string, maxSize int64) (FileInfo, error) {
	if path == "" {
		return FileInfo{}, errors.New("no file specified")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("%s: file does not exist", path)
		}
		return FileInfo{}, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}

	if stat.IsDir() {
		return FileInfo{}, fmt.Errorf("%s: is a directory", path)
	}
	if maxSize > 0 && stat.Size() > maxSize {
		return FileInfo{}, fmt.Errorf("%s: file is larger than %d bytes", path, maxSize)
	}

	// Check if file is readable
	file, err := os.Open(absPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	file.Close()

	return FileInfo{
		Path: absPath,
		Name: filepath.Base(absPath),
		Size: stat.Size(),
		Type: MimeType(absPath),
	}, nil
}

// MimeType guesses the MIME type of name from its extension.
func MimeType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return defaultMimeType
}

// SafeName reduces a name announced by a peer to a plain file name that
// cannot escape the output directory.
func SafeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.Clean("/" + name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "download"
	}
	return name
}

// UniquePath joins dir and name, appending (1), (2), etc. if the file exists
func UniquePath(dir, name string) string {
	filename := filepath.Join(dir, name)
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return filename
	}

	ext := filepath.Ext(filename)
	nameWithoutExt := filename[:len(filename)-len(ext)]

	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s (%d)%s", nameWithoutExt, counter, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
