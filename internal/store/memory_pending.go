package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"social-realtime/internal/model"
)

type MemoryOptions struct {
	// StateFile, when set, is rewritten after every change and loaded on
	// start so queued deliveries survive a restart.
	StateFile string
	Logger    *zap.Logger
}

// MemoryPending keeps per-user FIFO queues in process memory.
type MemoryPending struct {
	mu     sync.Mutex
	queues map[string][]model.Delivery

	stateFile string
	persistMu sync.Mutex
	log       *zap.Logger
}

func NewMemoryPending() *MemoryPending {
	return NewMemoryPendingWithOptions(MemoryOptions{})
}

func NewMemoryPendingWithOptions(opts MemoryOptions) *MemoryPending {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := &MemoryPending{
		queues:    make(map[string][]model.Delivery),
		stateFile: opts.StateFile,
		log:       log.Named("pending"),
	}

	if m.stateFile != "" {
		if err := m.loadFromFile(m.stateFile); err != nil {
			m.log.Error("pending persistence: load failed", zap.String("path", m.stateFile), zap.Error(err))
		}
	}
	return m
}

func (m *MemoryPending) Enqueue(_ context.Context, userID string, d model.Delivery) error {
	if userID == "" {
		return errors.New("missing userID")
	}

	m.mutate(func() {
		m.queues[userID] = append(m.queues[userID], d)
	})
	return nil
}

func (m *MemoryPending) Drain(_ context.Context, userID string) ([]model.Delivery, error) {
	var items []model.Delivery
	m.mutate(func() {
		items = m.queues[userID]
		delete(m.queues, userID)
	})
	return items, nil
}

func (m *MemoryPending) Len(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[userID]), nil
}

// Users lists every user with a non-empty queue.
func (m *MemoryPending) Users() []string {
	m.mu.Lock()
	users := make([]string, 0, len(m.queues))
	for u := range m.queues {
		users = append(users, u)
	}
	m.mu.Unlock()

	sort.Strings(users)
	return users
}

type persistedPendingFile struct {
	Version int                         `json:"version"`
	Queues  map[string][]model.Delivery `json:"queues"`
	SavedAt int64                       `json:"savedAt"`
}

func (m *MemoryPending) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var file persistedPendingFile
	if err := json.Unmarshal(data, &file); err != nil {
		return errors.Wrap(err, "decode pending state")
	}
	if file.Version != 1 {
		return errors.Errorf("unsupported pending state version %d", file.Version)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for userID, items := range file.Queues {
		if userID == "" || len(items) == 0 {
			continue
		}
		kept := make([]model.Delivery, 0, len(items))
		for _, d := range items {
			if d.Valid() {
				kept = append(kept, d)
			}
		}
		if len(kept) > 0 {
			m.queues[userID] = kept
		}
	}
	return nil
}

func (m *MemoryPending) snapshotLocked() map[string][]model.Delivery {
	if m.stateFile == "" {
		return nil
	}
	out := make(map[string][]model.Delivery, len(m.queues))
	for userID, items := range m.queues {
		out[userID] = append([]model.Delivery(nil), items...)
	}
	return out
}

// mutate applies fn under the queue lock and then rewrites the state file.
// persistMu is held across both so snapshots reach disk in mutation order.
// A failed write is logged; the in-memory queue stays authoritative and the
// next mutation rewrites the whole snapshot.
func (m *MemoryPending) mutate(fn func()) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	fn()
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	if err := m.writeStateFile(snapshot); err != nil {
		m.log.Error("pending persistence: write failed", zap.String("path", m.stateFile), zap.Error(err))
	}
}

func (m *MemoryPending) writeStateFile(queues map[string][]model.Delivery) error {
	path := m.stateFile
	if path == "" {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrapf(err, "mkdir %s", dir)
	}

	file := persistedPendingFile{Version: 1, Queues: queues, SavedAt: time.Now().UnixMilli()}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal pending state")
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "chmod temp")
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write temp")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "sync temp")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp")
	}
	return errors.Wrap(os.Rename(tmpName, path), "rename state file")
}
