package storage

import (
	"bytes"
	"fmt"
	"io"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/Voskan/datawatch/pkg/errs"
)

// BadgerStorage stores each chunk as a single key/value pair in an embedded
// Badger database, trading the directory-tree layout of LocalFileStorage for
// one LSM file on disk. Badger's own write-ahead log gives the same
// crash-atomicity LocalFileStorage gets from its lock+tmp+rename dance, so
// WriteChunk needs no extra staging.
type BadgerStorage struct {
	db *badger.DB
}

// NewBadgerStorage opens (or creates) a Badger database rooted at path.
func NewBadgerStorage(path string) (*BadgerStorage, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("storage: badger open: %w", err)
	}
	return &BadgerStorage{db: db}, nil
}

// Close releases the underlying database.
func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

func (s *BadgerStorage) ListChunks() ([]string, error) {
	var chunks []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			chunks = append(chunks, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: badger list: %w", err)
	}
	return chunks, nil
}

func (s *BadgerStorage) WriteChunk(filename string, write func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(filename)); err == nil {
			return errs.NewStorage("write_chunk", filename, fmt.Errorf("chunk already exists"))
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set([]byte(filename), buf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("storage: badger write: %w", err)
	}
	return nil
}

func (s *BadgerStorage) ReadChunk(filename string, read func(io.Reader) error) error {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(filename))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			data = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("storage: badger read: %w", err)
	}
	return read(bytes.NewReader(data))
}
