package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultMaxEntries caps the journal size.
const DefaultMaxEntries = 500

const journalFile = "journal.txt"

// Journal is a capped list of timestamped lines kept newest first in
// memory and oldest first on disk.
type Journal struct {
	path string
	max  int
	now  func() time.Time

	mu      sync.Mutex
	entries []string
}

// OpenJournal loads the journal stored in dataDir. A missing file is an
// empty journal.
func OpenJournal(dataDir string) (*Journal, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	j := &Journal{
		path: filepath.Join(dataDir, journalFile),
		max:  DefaultMaxEntries,
		now:  time.Now,
	}

	lines, err := readLines(j.path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	j.entries = trim(reverse(lines), j.max)
	return j, nil
}

// Append records entry with a UTC timestamp and persists the journal.
func (j *Journal) Append(entry string) error {
	stamped := fmt.Sprintf("[%s] %s", j.now().UTC().Format("Mon Jan 02, 2006 15:04:05 GMT"), entry)

	j.mu.Lock()
	j.entries = trim(append([]string{stamped}, j.entries...), j.max)
	snapshot := reverse(j.entries)
	j.mu.Unlock()

	return writeLines(j.path, snapshot)
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(n int) []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if n <= 0 || n > len(j.entries) {
		n = len(j.entries)
	}
	return append([]string(nil), j.entries[:n]...)
}

func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

func trim(entries []string, max int) []string {
	if len(entries) > max {
		return entries[:max]
	}
	return entries
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// writeLines replaces path through a temporary file so a crash never
// leaves a half written journal.
func writeLines(path string, lines []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".journal-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func reverse(s []string) []string {
	result := make([]string, len(s))
	for i, v := range s {
		result[len(s)-1-i] = v
	}
	return result
}
