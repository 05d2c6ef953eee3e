package storage

import (
	"bytes"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/Voskan/datawatch/pkg/errs"
)

// InMemoryStorage keeps every chunk in a process-local map. It has no
// durability; like LocalFileStorage and BadgerStorage it rejects a write to
// a filename that already exists.
type InMemoryStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewInMemoryStorage returns an empty store.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{data: make(map[string][]byte)}
}

func (s *InMemoryStorage) ListChunks() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.data))
	for k := range s.data {
		names = append(names, k)
	}
	sort.Strings(names)
	return names, nil
}

func (s *InMemoryStorage) WriteChunk(filename string, write func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[filename]; exists {
		return errs.NewStorage("write_chunk", filename, os.ErrExist)
	}
	s.data[filename] = buf.Bytes()
	return nil
}

func (s *InMemoryStorage) ReadChunk(filename string, read func(io.Reader) error) error {
	s.mu.Lock()
	data, ok := s.data[filename]
	s.mu.Unlock()
	if !ok {
		return errs.NewStorage("read_chunk", filename, os.ErrNotExist)
	}
	return read(bytes.NewReader(data))
}
