// Package handoff carries registration state across a hot replacement.
//
// When a shim is torn down for a hot replacement it puts a Message keyed by
// its identity. The replacement takes the message once at construction; Take
// clears it, so a later cold start does not see stale state.
package handoff

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vango-dev/hotshim/internal/errors"
)

// Message is the state handed from a torn-down shim to its replacement.
type Message struct {
	Identity   string    `json:"identity"`
	AppName    string    `json:"appName"`
	Key        string    `json:"key"`
	Epoch      int       `json:"epoch"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Store holds at most one pending message per shim identity.
type Store interface {
	// Put stores msg under msg.Identity, replacing any pending message.
	Put(msg Message) error

	// Take returns the pending message for identity and clears it.
	Take(identity string) (Message, bool, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.Mutex
	msgs map[string]Message
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{msgs: make(map[string]Message)}
}

// Put implements Store.
func (s *MemoryStore) Put(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs[msg.Identity] = msg
	return nil
}

// Take implements Store.
func (s *MemoryStore) Take(identity string) (Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.msgs[identity]
	if ok {
		delete(s.msgs, identity)
	}
	return msg, ok, nil
}

// Pending returns the number of messages not yet taken.
func (s *MemoryStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// FileStore keeps one JSON file per identity in a directory, so messages
// survive a restart of the host process.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a FileStore rooted at dir. The directory is created
// on first Put.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the store directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(identity string) string {
	return filepath.Join(s.dir, fileName(identity)+".json")
}

// fileName escapes every byte outside [A-Za-z0-9.-] as _xx, so distinct
// identities never share a file.
func fileName(identity string) string {
	var b strings.Builder
	for i := 0; i < len(identity); i++ {
		c := identity[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9', c == '.', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02x", c)
		}
	}
	return b.String()
}

// Put implements Store.
func (s *FileStore) Put(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errors.New("H122").Wrap(err)
	}

	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return errors.New("H122").Wrap(err)
	}

	// Write then rename so a concurrent Take never reads a partial file.
	final := s.path(msg.Identity)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.New("H122").Wrap(err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return errors.New("H122").Wrap(err)
	}
	return nil
}

// Take implements Store.
func (s *FileStore) Take(identity string) (Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.path(identity)
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return Message{}, false, nil
		}
		return Message{}, false, errors.New("H122").Wrap(err)
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return Message{}, false, errors.New("H122").Wrap(err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, false, errors.New("H122").
			WithDetail(fmt.Sprintf("corrupt handoff file %s", p)).
			Wrap(err)
	}
	return msg, true, nil
}
