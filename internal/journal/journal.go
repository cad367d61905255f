package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/warrenlibrary/library-backend/pkg/logger"
	"go.uber.org/zap"
)

// Action names a catalogue or circulation mutation.
type Action string

const (
	ActionBorrow     Action = "borrow"
	ActionReturn     Action = "return"
	ActionBookAdd    Action = "book_added"
	ActionBookUpdate Action = "book_updated"
	ActionBookDelete Action = "book_deleted"
)

// Entry is one line of the journal.
type Entry struct {
	Action   Action    `json:"action"`
	ActorID  uint      `json:"actor_id"`
	BookID   uint      `json:"book_id"`
	BorrowID uint      `json:"borrow_id,omitempty"`
	At       time.Time `json:"at"`
}

// Journal is an append-only, fsynced JSON-lines activity log.
type Journal struct {
	filePath string
	file     *os.File
	mu       sync.Mutex
}

// Open creates the journal file (and its directory) if needed.
func Open(filePath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	return &Journal{
		filePath: filePath,
		file:     file,
	}, nil
}

// Append writes one entry and syncs it to disk before returning.
func (j *Journal) Append(entry Entry) error {
	start := time.Now()
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if _, err := j.file.Write(append(data, '\n')); err != nil {
		logger.Log.Error("Journal: failed to write entry",
			zap.String("action", string(entry.Action)),
			zap.Error(err),
		)
		return err
	}

	if err := j.file.Sync(); err != nil {
		logger.Log.Error("Journal: failed to sync to disk",
			zap.String("action", string(entry.Action)),
			zap.Error(err),
		)
		return err
	}

	logger.Log.Debug("Journal: entry written",
		zap.String("action", string(entry.Action)),
		zap.Uint("book_id", entry.BookID),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// ReadAll returns every entry in write order.
func (j *Journal) ReadAll() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.readAllUnsafe()
}

// Tail returns the newest n entries, newest first. n <= 0 yields none.
func (j *Journal) Tail(n int) ([]Entry, error) {
	if n <= 0 {
		return []Entry{}, nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.readAllUnsafe()
	if err != nil {
		return nil, err
	}

	if n > len(entries) {
		n = len(entries)
	}
	out := make([]Entry, 0, n)
	for i := len(entries) - 1; i >= len(entries)-n; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

// readAllUnsafe reads all entries without locking (internal use only).
// Lines that fail to decode, such as a torn final write, are skipped.
func (j *Journal) readAllUnsafe() ([]Entry, error) {
	file, err := os.Open(j.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}
	defer file.Close()

	entries := []Entry{}
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, scanner.Err()
}

// Close closes the journal file
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
