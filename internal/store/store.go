package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/teemow/inboxreply/internal/autoreply"
	"github.com/teemow/inboxreply/internal/logging"
)

const (
	// DefaultFileName is the state file name inside the data directory.
	DefaultFileName = "state.json"

	// MaxHistory bounds the number of sent mails kept in the history.
	MaxHistory = 100

	backupSuffix = ".bak"
)

// ErrInvalidContact is returned for a contact without a name or a usable
// email address.
var ErrInvalidContact = errors.New("contact needs a name and an email address")

// HistoryEntry records one mail sent by inboxreply.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	MessageID string    `json:"message_id,omitempty"`
}

// State is the on-disk document.
type State struct {
	Contacts     map[string]string  `json:"contacts"`
	Preferences  map[string]string  `json:"preferences"`
	AutoReply    autoreply.Settings `json:"auto_reply"`
	EmailHistory []HistoryEntry     `json:"email_history"`
}

// newState returns the defaults used when no state file exists: auto-reply
// off, smart replies allowed.
func newState() State {
	return State{
		Contacts:    map[string]string{},
		Preferences: map[string]string{},
		AutoReply:   autoreply.Settings{SmartReplies: true},
	}
}

// diskState is State as read from disk. Rules stay raw until each is decoded
// on its own, so one malformed rule does not make the whole file unreadable.
type diskState struct {
	Contacts    map[string]string `json:"contacts"`
	Preferences map[string]string `json:"preferences"`
	AutoReply   struct {
		Active       bool              `json:"active"`
		SmartReplies bool              `json:"smart_replies"`
		Rules        []json.RawMessage `json:"rules"`
	} `json:"auto_reply"`
	EmailHistory []HistoryEntry `json:"email_history"`
}

func (s *State) fill() {
	if s.Contacts == nil {
		s.Contacts = map[string]string{}
	}
	if s.Preferences == nil {
		s.Preferences = map[string]string{}
	}
}

// Stats summarizes the stored data.
type Stats struct {
	Contacts    int `json:"contacts"`
	Preferences int `json:"preferences"`
	Rules       int `json:"rules"`
	History     int `json:"history"`
}

// FileStore keeps contacts, preferences, auto-reply settings and the sent
// mail history in a single JSON file. It implements autoreply.SettingsStore.
//
// Every operation reads the file so that changes made by another process
// (e.g. a CLI invocation while the daemon runs) are picked up.
type FileStore struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

var _ autoreply.SettingsStore = (*FileStore)(nil)

// NewFileStore returns a store backed by path. The file is created on the
// first write.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		path:   path,
		logger: logger.With(slog.String("state_file", path)),
		now:    time.Now,
	}
}

// Path returns the state file path.
func (s *FileStore) Path() string {
	return s.path
}

// LoadSettings returns the persisted auto-reply settings. A missing or
// unreadable file yields the defaults.
func (s *FileStore) LoadSettings(_ context.Context) (autoreply.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load().AutoReply, nil
}

// SaveSettings persists the auto-reply settings.
func (s *FileStore) SaveSettings(_ context.Context, settings autoreply.Settings) error {
	return s.update(func(st *State) error {
		st.AutoReply = settings
		return nil
	})
}

// SaveContact stores email under name. Names are case-insensitive.
func (s *FileStore) SaveContact(name, email string) error {
	name = normalizeName(name)
	email = strings.TrimSpace(email)
	if name == "" || !strings.Contains(email, "@") {
		return ErrInvalidContact
	}
	return s.update(func(st *State) error {
		st.Contacts[name] = email
		return nil
	})
}

// Contact looks up the email for name. An exact match wins; otherwise the
// first contact (in name order) whose name contains name, or is contained
// in it, is returned.
func (s *FileStore) Contact(name string) (string, bool) {
	name = normalizeName(name)
	if name == "" {
		return "", false
	}

	s.mu.Lock()
	contacts := s.load().Contacts
	s.mu.Unlock()

	if email, ok := contacts[name]; ok {
		return email, true
	}
	for _, key := range sortedKeys(contacts) {
		if strings.Contains(key, name) || strings.Contains(name, key) {
			return contacts[key], true
		}
	}
	return "", false
}

// ResolveRecipient returns nameOrEmail when it is an address, otherwise the
// matching contact's address.
func (s *FileStore) ResolveRecipient(nameOrEmail string) (string, bool) {
	nameOrEmail = strings.TrimSpace(nameOrEmail)
	if strings.Contains(nameOrEmail, "@") {
		return nameOrEmail, true
	}
	return s.Contact(nameOrEmail)
}

// Contacts returns all contacts keyed by name.
func (s *FileStore) Contacts() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load().Contacts
}

// RemoveContact deletes a contact. It reports whether the contact existed.
func (s *FileStore) RemoveContact(name string) (bool, error) {
	name = normalizeName(name)
	found := false
	err := s.update(func(st *State) error {
		if _, ok := st.Contacts[name]; !ok {
			return errUnchanged
		}
		delete(st.Contacts, name)
		found = true
		return nil
	})
	return found, err
}

// SetPreference stores a user preference such as "signature".
func (s *FileStore) SetPreference(key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("preference key is empty")
	}
	return s.update(func(st *State) error {
		st.Preferences[key] = strings.TrimSpace(value)
		return nil
	})
}

// Preference returns a user preference.
func (s *FileStore) Preference(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.load().Preferences[strings.TrimSpace(key)]
	return v, ok
}

// Preferences returns all preferences.
func (s *FileStore) Preferences() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load().Preferences
}

// RemovePreference deletes a preference. It reports whether it existed.
func (s *FileStore) RemovePreference(key string) (bool, error) {
	key = strings.TrimSpace(key)
	found := false
	err := s.update(func(st *State) error {
		if _, ok := st.Preferences[key]; !ok {
			return errUnchanged
		}
		delete(st.Preferences, key)
		found = true
		return nil
	})
	return found, err
}

// AddHistory appends a sent mail to the history, keeping the newest
// MaxHistory entries.
func (s *FileStore) AddHistory(entry HistoryEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	return s.update(func(st *State) error {
		st.EmailHistory = append(st.EmailHistory, entry)
		if n := len(st.EmailHistory); n > MaxHistory {
			st.EmailHistory = append([]HistoryEntry(nil), st.EmailHistory[n-MaxHistory:]...)
		}
		return nil
	})
}

// History returns the newest limit entries, oldest first. A non-positive
// limit returns everything.
func (s *FileStore) History(limit int) []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.load().EmailHistory
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}

// Stats counts the stored items.
func (s *FileStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.load()
	return Stats{
		Contacts:    len(st.Contacts),
		Preferences: len(st.Preferences),
		Rules:       len(st.AutoReply.Rules),
		History:     len(st.EmailHistory),
	}
}

// Export returns the whole state.
func (s *FileStore) Export() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Import replaces the whole state.
func (s *FileStore) Import(st State) error {
	st.fill()
	return s.update(func(cur *State) error {
		*cur = st
		return nil
	})
}

// errUnchanged aborts an update without writing.
var errUnchanged = errors.New("unchanged")

func (s *FileStore) update(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.load()
	if err := fn(&st); err != nil {
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}
	return s.save(st)
}

// load must be called with mu held.
func (s *FileStore) load() State {
	st, skipped, err := readState(s.path)
	if err == nil {
		s.logSkipped(skipped)
		return st
	}
	if errors.Is(err, fs.ErrNotExist) {
		return newState()
	}

	s.logger.Warn("state file unreadable, trying backup", logging.Err(err))
	st, skipped, bakErr := readState(s.path + backupSuffix)
	if bakErr == nil {
		s.logger.Info("restored state from backup")
		s.logSkipped(skipped)
		return st
	}
	s.logger.Error("backup unreadable, using defaults", logging.Err(bakErr))
	return newState()
}

// save must be called with mu held. The previous file is kept as backup
// when it is still valid.
func (s *FileStore) save(st State) error {
	st.fill()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	if prev, err := os.ReadFile(s.path); err == nil && json.Valid(prev) {
		if err := writeFileAtomic(s.path+backupSuffix, prev); err != nil {
			s.logger.Warn("failed to write state backup", logging.Err(err))
		}
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	return nil
}

func (s *FileStore) logSkipped(skipped []error) {
	for _, err := range skipped {
		s.logger.Warn("ignoring unreadable auto-reply rule in state file", logging.Err(err))
	}
}

// readState decodes the state file at path. Rules that cannot be decoded are
// left out and reported in skipped; the rest of the state is kept.
func readState(path string) (st State, skipped []error, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, nil, err
	}
	var disk diskState
	if err := json.Unmarshal(data, &disk); err != nil {
		return State{}, nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}

	st = State{
		Contacts:    disk.Contacts,
		Preferences: disk.Preferences,
		AutoReply: autoreply.Settings{
			Active:       disk.AutoReply.Active,
			SmartReplies: disk.AutoReply.SmartReplies,
		},
		EmailHistory: disk.EmailHistory,
	}
	for i, raw := range disk.AutoReply.Rules {
		var rule autoreply.Rule
		if err := json.Unmarshal(raw, &rule); err != nil {
			skipped = append(skipped, fmt.Errorf("rule %d: %w", i+1, err))
			continue
		}
		st.AutoReply.Rules = append(st.AutoReply.Rules, rule)
	}
	st.fill()
	return st, skipped, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
