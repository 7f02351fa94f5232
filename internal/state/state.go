package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// StateDirName is the directory under the reports directory holding session state.
	StateDirName = ".covmerge"
	// StateFileName is the name of the session ledger file.
	StateFileName = "session.json"
)

// ErrEnvironmentMerged is returned when an environment's payload is recorded
// twice in the same session.
var ErrEnvironmentMerged = errors.New("environment already merged in this session")

// Entry records one environment payload merged into the session.
type Entry struct {
	Name     string    `json:"name"`
	Payload  string    `json:"payload"`
	Digest   string    `json:"sha256"`
	Records  int       `json:"records"`
	Skipped  int       `json:"skipped"`
	MergedAt time.Time `json:"merged_at"`
}

// Session is the persistent state of one aggregation session.
type Session struct {
	StartedAt time.Time `json:"started_at"`
	Entries   []Entry   `json:"entries"`
}

// Manager handles the persistence and modification of the session ledger.
type Manager interface {
	// Load reads the ledger from disk.
	Load() error

	// Save writes the ledger to disk.
	Save() error

	// Has reports whether env was already merged.
	Has(env string) bool

	// Record adds an entry, failing with ErrEnvironmentMerged on repeats.
	Record(entry Entry) error

	// Reset starts a new session.
	Reset()

	// GetSession returns a copy of the current session.
	GetSession() Session
}

// FileManager is a file-backed implementation of the Manager interface.
type FileManager struct {
	mu       sync.Mutex
	filePath string
	clock    clock.Clock
	session  Session
}

// NewFileManager creates a new FileManager for the given reports directory.
// The ledger is stored at reportsDir/.covmerge/session.json.
func NewFileManager(reportsDir string) *FileManager {
	return NewFileManagerWithClock(reportsDir, clock.New())
}

// NewFileManagerWithClock is NewFileManager with an explicit clock.
func NewFileManagerWithClock(reportsDir string, clk clock.Clock) *FileManager {
	return &FileManager{
		filePath: filepath.Join(reportsDir, StateDirName, StateFileName),
		clock:    clk,
		session:  Session{StartedAt: clk.Now().UTC()},
	}
}

// Load reads the ledger from disk.
// If the file doesn't exist, a fresh session is started.
func (m *FileManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.session = Session{StartedAt: m.clock.Now().UTC()}
			return nil
		}
		return fmt.Errorf("failed to read state file %s: %w", m.filePath, err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return fmt.Errorf("failed to parse state file %s: %w", m.filePath, err)
	}
	m.session = session
	return nil
}

// Save writes the ledger to disk.
func (m *FileManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Ensure directory exists
	dir := filepath.Dir(m.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(m.session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(m.filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", m.filePath, err)
	}

	return nil
}

// Has reports whether env was already merged in this session.
func (m *FileManager) Has(env string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.indexOf(env) >= 0
}

// Record adds entry to the session. MergedAt is stamped when unset.
func (m *FileManager) Record(entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indexOf(entry.Name) >= 0 {
		return fmt.Errorf("%w: %s", ErrEnvironmentMerged, entry.Name)
	}
	if entry.MergedAt.IsZero() {
		entry.MergedAt = m.clock.Now().UTC()
	}
	m.session.Entries = append(m.session.Entries, entry)
	sort.Slice(m.session.Entries, func(i, j int) bool {
		return m.session.Entries[i].Name < m.session.Entries[j].Name
	})
	return nil
}

// Reset discards every entry and starts a new session.
func (m *FileManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = Session{StartedAt: m.clock.Now().UTC()}
}

// GetSession returns a copy of the current session.
func (m *FileManager) GetSession() Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	s.Entries = append([]Entry(nil), m.session.Entries...)
	return s
}

// GetFilePath returns the path to the ledger file.
func (m *FileManager) GetFilePath() string {
	return m.filePath
}

func (m *FileManager) indexOf(env string) int {
	for i, e := range m.session.Entries {
		if e.Name == env {
			return i
		}
	}
	return -1
}

// Digest returns the hex SHA-256 of a payload.
func Digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
