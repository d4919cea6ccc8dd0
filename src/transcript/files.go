package transcript

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// CaptureFile is a transcript found on disk.
type CaptureFile struct {
	Path      string
	ModTime   time.Time
	Processed bool
}

// ListCaptures returns the capture files in dir, newest first.
func ListCaptures(dir string) ([]CaptureFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []CaptureFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".txt") || !strings.Contains(name, FilePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, CaptureFile{
			Path:      filepath.Join(dir, name),
			ModTime:   info.ModTime(),
			Processed: strings.Contains(name, ProcessedSuffix),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].ModTime.After(files[j].ModTime)
		}
		return files[i].Path > files[j].Path
	})
	return files, nil
}

// LatestCapture returns the newest unprocessed capture file, or "" when none.
func LatestCapture(dir string) (string, error) {
	files, err := ListCaptures(dir)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		if !f.Processed {
			return f.Path, nil
		}
	}
	return "", nil
}
