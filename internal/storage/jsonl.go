package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"simpleBank/internal/model"
)

// JSONLJournal appends withdrawal receipts to a JSONL file. An external payout
// process consumes the file and moves the funds.
type JSONLJournal struct {
	path string
	mu   sync.Mutex
}

func NewJSONLJournal(path string) *JSONLJournal {
	return &JSONLJournal{path: path}
}

// Settle appends the receipt as one JSON line.
func (j *JSONLJournal) Settle(ctx context.Context, w model.Withdrawal) error {
	if err := ensureDir(j.path); err != nil {
		return err
	}

	line, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal withdrawal: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write withdrawal: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	return file.Sync()
}

// Withdrawals reads back every receipt in the journal.
func (j *JSONLJournal) Withdrawals() ([]model.Withdrawal, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var out []model.Withdrawal
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var w model.Withdrawal
		if err := json.Unmarshal(line, &w); err != nil {
			return nil, fmt.Errorf("parse withdrawal: %w", err)
		}
		out = append(out, w)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	return out, nil
}

// Contains reports whether a receipt with the given id is in the journal.
func (j *JSONLJournal) Contains(id string) (bool, error) {
	withdrawals, err := j.Withdrawals()
	if err != nil {
		return false, err
	}
	for _, w := range withdrawals {
		if w.ID == id {
			return true, nil
		}
	}
	return false, nil
}
