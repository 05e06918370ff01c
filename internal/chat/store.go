// internal/chat/store.go
package chat

import (
	"fmt"
	"os"
	"sync"

	json "github.com/json-iterator/go"

	"github.com/luyichou/webtech-autopost/internal/llm"
)

// HistoryStore keeps per-user drafting conversations in a single JSON
// file, rewritten whole on every change. No durability guarantees; a
// lost history only costs the user a restarted conversation. The mutex
// serializes writers within this process only.
type HistoryStore struct {
	path     string
	maxTurns int

	mu sync.Mutex
}

// NewHistoryStore builds a store over the given file path. maxTurns
// bounds how much history is kept per user (oldest turns dropped).
func NewHistoryStore(path string, maxTurns int) *HistoryStore {
	return &HistoryStore{path: path, maxTurns: maxTurns}
}

// History returns the stored conversation for a user, empty when none
// exists.
func (s *HistoryStore) History(userID string) ([]llm.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}
	return all[userID], nil
}

// Append records an exchange and persists the file.
func (s *HistoryStore) Append(userID string, turns ...llm.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}
	history := append(all[userID], turns...)
	if s.maxTurns > 0 && len(history) > s.maxTurns {
		history = history[len(history)-s.maxTurns:]
	}
	all[userID] = history
	return s.save(all)
}

// Clear drops a user's conversation, typically after a publish attempt
// completes.
func (s *HistoryStore) Clear(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := all[userID]; !ok {
		return nil
	}
	delete(all, userID)
	return s.save(all)
}

func (s *HistoryStore) load() (map[string][]llm.Turn, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string][]llm.Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	if len(data) == 0 {
		return map[string][]llm.Turn{}, nil
	}

	var all map[string][]llm.Turn
	if err := json.Unmarshal(data, &all); err != nil {
		// A corrupt file is abandoned rather than blocking every chat.
		return map[string][]llm.Turn{}, nil
	}
	if all == nil {
		all = map[string][]llm.Turn{}
	}
	return all, nil
}

func (s *HistoryStore) save(all map[string][]llm.Turn) error {
	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	return nil
}
