package journal

import (
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// Entry is one recorded navigation decision. Raw probe outcomes are
// deliberately not journaled; only the decision that came out of them.
type Entry struct {
	NavContext string    `json:"nav_context"`
	Hostname   string    `json:"hostname"`
	URL        string    `json:"url"`
	Action     string    `json:"action"` // "redirect" or "suppress"
	TargetURL  string    `json:"target_url,omitempty"`
	Reason     string    `json:"reason"`
	DecidedAt  time.Time `json:"decided_at"`
}

type Stats struct {
	TotalEvents        int            `json:"total_events"`
	TotalRedirects     int            `json:"total_redirects"`
	TotalSuppressed    int            `json:"total_suppressed"`
	SuppressedByReason map[string]int `json:"suppressed_by_reason,omitempty"`
	LastDecisionTime   time.Time      `json:"last_decision_time"`
}

// Snapshot is a point-in-time view of the journal. Immutable once
// stored; readers never see a partially updated journal.
type Snapshot struct {
	Entries []Entry   `json:"entries"`
	Stats   Stats     `json:"stats"`
	Updated time.Time `json:"updated"`
}

// Storage persists journal snapshots. Implementations live in
// internal/storage.
type Storage interface {
	Save(snapshot *Snapshot) error
	Load() (*Snapshot, error)
	Close() error
}

type Manager struct {
	current   atomic.Value // stores *Snapshot
	storage   Storage
	recordMu  sync.Mutex
	persistMu sync.Mutex

	historyLimit    int
	persistInterval time.Duration
	stopPersist     chan struct{}
}

func NewManager(store Storage, persistIntervalSeconds, historyLimit int) *Manager {
	if historyLimit <= 0 {
		historyLimit = 512
	}

	m := &Manager{
		storage:         store,
		historyLimit:    historyLimit,
		persistInterval: time.Duration(persistIntervalSeconds) * time.Second,
		stopPersist:     make(chan struct{}),
	}

	m.current.Store(&Snapshot{
		Entries: []Entry{},
		Stats:   Stats{SuppressedByReason: map[string]int{}},
		Updated: time.Now(),
	})

	if persistIntervalSeconds > 0 {
		go m.periodicPersist()
	}

	return m
}

// Record appends a decision and atomically swaps in a new snapshot.
func (m *Manager) Record(entry Entry) {
	m.recordMu.Lock()

	prev := m.Get()

	entries := make([]Entry, 0, len(prev.Entries)+1)
	entries = append(entries, prev.Entries...)
	entries = append(entries, entry)
	if len(entries) > m.historyLimit {
		entries = entries[len(entries)-m.historyLimit:]
	}

	stats := Stats{
		TotalEvents:        prev.Stats.TotalEvents + 1,
		TotalRedirects:     prev.Stats.TotalRedirects,
		TotalSuppressed:    prev.Stats.TotalSuppressed,
		SuppressedByReason: make(map[string]int, len(prev.Stats.SuppressedByReason)+1),
		LastDecisionTime:   entry.DecidedAt,
	}
	for reason, n := range prev.Stats.SuppressedByReason {
		stats.SuppressedByReason[reason] = n
	}
	if entry.Action == "redirect" {
		stats.TotalRedirects++
	} else {
		stats.TotalSuppressed++
		stats.SuppressedByReason[entry.Reason]++
	}

	snapshot := &Snapshot{
		Entries: entries,
		Stats:   stats,
		Updated: time.Now(),
	}
	m.current.Store(snapshot)
	m.recordMu.Unlock()

	go m.persist(snapshot)
}

// Get returns the current snapshot (atomic read).
func (m *Manager) Get() *Snapshot {
	return m.current.Load().(*Snapshot)
}

func (m *Manager) GetStats() Stats {
	return m.Get().Stats
}

// GetEntries returns up to n most recent entries, newest last.
func (m *Manager) GetEntries(n int) []Entry {
	entries := m.Get().Entries
	if n <= 0 || n > len(entries) {
		n = len(entries)
	}
	result := make([]Entry, n)
	copy(result, entries[len(entries)-n:])
	return result
}

func (m *Manager) persist(snapshot *Snapshot) {
	if m.storage == nil {
		return
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	if err := m.storage.Save(snapshot); err != nil {
		log.Errorf("Failed to persist journal: %v", err)
	} else {
		log.Debugf("Journal persisted: %d entries", len(snapshot.Entries))
	}
}

func (m *Manager) periodicPersist() {
	ticker := time.NewTicker(m.persistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.persist(m.Get())
		case <-m.stopPersist:
			return
		}
	}
}

// LoadFromStorage restores the last persisted journal, dropping entries
// older than 24 hours.
func (m *Manager) LoadFromStorage() error {
	if m.storage == nil {
		return nil
	}

	snapshot, err := m.storage.Load()
	if err != nil {
		return err
	}
	if snapshot == nil {
		log.Info("No persisted journal found")
		return nil
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	fresh := make([]Entry, 0, len(snapshot.Entries))
	for _, e := range snapshot.Entries {
		if e.DecidedAt.After(cutoff) {
			fresh = append(fresh, e)
		}
	}
	snapshot.Entries = fresh
	if snapshot.Stats.SuppressedByReason == nil {
		snapshot.Stats.SuppressedByReason = map[string]int{}
	}

	m.current.Store(snapshot)
	log.Infof("Loaded journal with %d fresh entries", len(fresh))
	return nil
}

// Close stops background persistence and flushes once.
func (m *Manager) Close() {
	close(m.stopPersist)
	m.persist(m.Get())
}
