// Package history keeps the durable, bounded log of completed analyses.
//
// The whole ordered sequence is stored as one JSON record under a fixed key and
// rewritten on every mutation, so what is on disk always matches what All returns.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/url-guardian/client/internal/models"
	"github.com/url-guardian/client/internal/storage"
	"github.com/url-guardian/client/pkg/logger"
)

const (
	DefaultNamespace  = "phishing_history"
	DefaultMaxEntries = 100
)

type Config struct {
	Namespace  string
	MaxEntries int
	Now        func() time.Time
}

// Log is append-only apart from FIFO eviction and Clear. Entries are ordered by
// CapturedAt ascending. It is safe for concurrent use.
type Log struct {
	store     storage.Store
	namespace string
	max       int
	now       func() time.Time

	mu      sync.RWMutex
	entries []models.HistoryEntry
}

// Load builds a Log from the record in store. A missing or unparsable record
// yields an empty log; the storage error is logged and never returned.
func Load(ctx context.Context, store storage.Store, cfg Config) *Log {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	l := &Log{
		store:     store,
		namespace: cfg.Namespace,
		max:       cfg.MaxEntries,
		now:       cfg.Now,
	}

	entries, err := l.read(ctx)
	if err != nil {
		logger.Warn("History unavailable, starting empty",
			zap.String("kind", string(models.KindStorage)),
			zap.String("namespace", l.namespace),
			zap.Error(err),
		)
		entries = nil
	}
	if len(entries) > l.max {
		entries = entries[len(entries)-l.max:]
	}
	l.entries = entries

	logger.Info("History loaded", zap.String("namespace", l.namespace), zap.Int("entries", len(entries)))
	return l
}

func (l *Log) read(ctx context.Context) ([]models.HistoryEntry, error) {
	data, err := l.store.Get(ctx, l.namespace)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewStorageError("failed to read history", err)
	}

	var entries []models.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, models.NewStorageError("failed to parse history", err)
	}
	return entries, nil
}

// Record builds an entry for resp captured now and appends it.
func (l *Log) Record(ctx context.Context, subject string, resp models.EnsembleResponse) (models.HistoryEntry, error) {
	entry := models.HistoryEntry{
		ID:         uuid.New().String(),
		Subject:    subject,
		Response:   resp,
		CapturedAt: time.UnixMilli(l.now().UnixMilli()),
	}
	return entry, l.Append(ctx, entry)
}

// Append adds entry, evicting the oldest entries beyond the bound, and persists
// the log before returning. On a write failure the visible state is unchanged.
func (l *Log) Append(ctx context.Context, entry models.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CapturedAt.IsZero() {
		entry.CapturedAt = time.UnixMilli(l.now().UnixMilli())
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := make([]models.HistoryEntry, 0, len(l.entries)+1)
	next = append(next, l.entries...)
	next = append(next, entry)
	if len(next) > l.max {
		evicted := len(next) - l.max
		next = next[evicted:]
		logger.Debug("History entries evicted", zap.Int("evicted", evicted))
	}

	if err := l.persist(ctx, next); err != nil {
		return err
	}
	l.entries = next
	return nil
}

// Clear removes every entry, in storage as well.
func (l *Log) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.persist(ctx, []models.HistoryEntry{}); err != nil {
		return err
	}
	l.entries = nil
	logger.Info("History cleared", zap.String("namespace", l.namespace))
	return nil
}

func (l *Log) persist(ctx context.Context, entries []models.HistoryEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := l.store.Put(ctx, l.namespace, data); err != nil {
		return models.NewStorageError("failed to save history", err)
	}
	return nil
}

// All returns a copy of the log in storage order (oldest first).
func (l *Log) All() []models.HistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.HistoryEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Recent returns up to n entries, most recent first. n <= 0 means all.
func (l *Log) Recent(n int) []models.HistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]models.HistoryEntry, 0, n)
	for i := len(l.entries) - 1; i >= len(l.entries)-n; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

// Find returns the entry with id.
func (l *Log) Find(id string) (models.HistoryEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, e := range l.entries {
		if e.ID == id {
			return e, true
		}
	}
	return models.HistoryEntry{}, false
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Log) MaxEntries() int {
	return l.max
}

// ExportJSON renders the log as indented JSON, oldest first.
func (l *Log) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(l.All(), "", "  ")
}
