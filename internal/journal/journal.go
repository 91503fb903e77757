package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"aaudSwap/internal/model"
)

// Sink receives transaction lifecycle updates.
type Sink interface {
	Record(tx model.PendingTransaction) error
}

// Entry is one journal line.
type Entry struct {
	Time        time.Time `json:"ts"`
	Kind        string    `json:"kind"`
	Token       string    `json:"token"`
	Hash        string    `json:"hash,omitempty"`
	Status      string    `json:"status"`
	RawAmount   string    `json:"rawAmount,omitempty"`
	BlockNumber uint64    `json:"blockNumber,omitempty"`
	Error       string    `json:"error,omitempty"`
	AmountOut   string    `json:"amountOut,omitempty"`
}

// NewEntry flattens tx into a journal entry.
func NewEntry(tx model.PendingTransaction) Entry {
	entry := Entry{
		Time:        tx.UpdatedAt,
		Kind:        string(tx.Kind),
		Token:       tx.Token.Hex(),
		Status:      string(tx.Status),
		BlockNumber: tx.BlockNumber,
		Error:       tx.Err,
	}
	if entry.Time.IsZero() {
		entry.Time = tx.SubmittedAt
	}
	if tx.Hash != (common.Hash{}) {
		entry.Hash = tx.Hash.Hex()
	}
	if tx.RawAmount != nil {
		entry.RawAmount = tx.RawAmount.String()
	}
	if tx.Swap != nil {
		entry.AmountOut = tx.Swap.AmountOut
	}
	return entry
}

// File appends entries as JSON lines. The journal is write-only; nothing
// reads it back.
type File struct {
	path string
	mu   sync.Mutex
}

func NewFile(path string) *File {
	return &File{path: path}
}

// Record appends one entry for tx.
func (f *File) Record(tx model.PendingTransaction) error {
	line, err := json.Marshal(NewEntry(tx))
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	dir := filepath.Dir(f.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	return nil
}
