package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Voskan/datawatch/pkg/errs"
)

// LocalFileStorage stores each chunk as its own file under a root directory,
// using the decoded filename's slashes as the subdirectory structure.
// Writes are published atomically: data lands in a ".tmp" sibling guarded by
// a ".lock" sibling, and only an os.Rename makes it visible under its real
// name, so a crash mid-write never leaves a torn chunk.
type LocalFileStorage struct {
	outPath string
	absPath string
}

// NewLocalFileStorage opens outPath as a storage root. The directory must
// already exist.
func NewLocalFileStorage(outPath string) (*LocalFileStorage, error) {
	abs, err := filepath.Abs(outPath)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("storage: output path %s does not exist", outPath)
	}
	return &LocalFileStorage{outPath: outPath, absPath: abs}, nil
}

func (s *LocalFileStorage) String() string {
	return fmt.Sprintf("LocalFileStorage(%q)", s.outPath)
}

func (s *LocalFileStorage) ListChunks() ([]string, error) {
	var chunks []string
	prefix := s.absPath + string(filepath.Separator)
	err := filepath.Walk(s.absPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".lock") || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		if !strings.HasPrefix(path, prefix) {
			return fmt.Errorf("storage: invalid path listed: %s", path)
		}
		chunks = append(chunks, filepath.ToSlash(path[len(prefix):]))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(chunks)
	return chunks, nil
}

func (s *LocalFileStorage) resolve(filename string) (string, error) {
	joined, err := filepath.Abs(filepath.Join(s.absPath, filename))
	if err != nil {
		return "", fmt.Errorf("storage: %w", err)
	}
	if !strings.HasPrefix(joined, s.absPath) {
		return "", errs.NewStorage("resolve", filename, fmt.Errorf("local target path does not end up below %s; bailing out", s.absPath))
	}
	return joined, nil
}

func (s *LocalFileStorage) WriteChunk(filename string, write func(io.Writer) error) (err error) {
	joined, err := s.resolve(filename)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(joined), 0o755); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if _, statErr := os.Stat(joined); statErr == nil {
		return errs.NewStorage("write_chunk", filename, fmt.Errorf("file already exists: %s", joined))
	}
	lockfile := joined + ".lock"
	tmpfile := joined + ".tmp"
	lock, err := os.OpenFile(lockfile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("storage: lock file: %w", err)
	}
	defer func() {
		lock.Close()
		os.Remove(lockfile)
		os.Remove(tmpfile)
	}()
	tmp, err := os.OpenFile(tmpfile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("storage: temp file: %w", err)
	}
	writeErr := write(tmp)
	closeErr := tmp.Close()
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("storage: temp file close: %w", closeErr)
	}
	if err := os.Rename(tmpfile, joined); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}

func (s *LocalFileStorage) ReadChunk(filename string, read func(io.Reader) error) error {
	joined, err := s.resolve(filename)
	if err != nil {
		return err
	}
	f, err := os.Open(joined)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer f.Close()
	return read(f)
}
