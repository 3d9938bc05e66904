package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/url-guardian/client/internal/models"
	"github.com/url-guardian/client/internal/storage"
	"github.com/url-guardian/client/internal/storage/sqlite"
)

type failingStore struct {
	*storage.Memory
	failPut bool
	failGet bool
}

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.failGet {
		return nil, errors.New("disk unavailable")
	}
	return f.Memory.Get(ctx, key)
}

func (f *failingStore) Put(ctx context.Context, key string, value []byte) error {
	if f.failPut {
		return errors.New("disk full")
	}
	return f.Memory.Put(ctx, key, value)
}

func response(subject string, p float64) models.EnsembleResponse {
	return models.EnsembleResponse{
		Subject: subject,
		PerModel: map[models.Slot]models.AnalysisResult{
			models.SlotURL: {Probability: p, Label: models.LabelPhishing, Confidence: 0.9, Explanations: []string{"suspicious TLD"}, ModelName: "RNN"},
		},
		Ensemble: models.AnalysisResult{Probability: p, Label: models.LabelPhishing, Confidence: 0.8, Explanations: []string{}, ModelName: "Ensemble"},
	}
}

func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.UnixMilli(1700000000000)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func TestLog_AppendIsWriteThrough(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	l := Load(ctx, store, Config{Now: steppingClock()})

	entry, err := l.Record(ctx, "https://example.com", response("https://example.com", 0.82))
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if entry.ID == "" {
		t.Error("Expected entry id")
	}

	reloaded := Load(ctx, store, Config{})
	all := reloaded.All()
	if len(all) != 1 {
		t.Fatalf("Expected 1 persisted entry, got %d", len(all))
	}
	if all[0].Subject != "https://example.com" {
		t.Errorf("Unexpected subject %q", all[0].Subject)
	}
}

func TestLog_BoundEvictsOldestFirst(t *testing.T) {
	ctx := context.Background()
	const max = 5
	l := Load(ctx, storage.NewMemory(), Config{MaxEntries: max, Now: steppingClock()})

	for i := 0; i < max+1; i++ {
		subject := fmt.Sprintf("https://site-%d.example", i)
		if _, err := l.Record(ctx, subject, response(subject, 0.5)); err != nil {
			t.Fatalf("Record %d failed: %v", i, err)
		}
	}

	all := l.All()
	if len(all) != max {
		t.Fatalf("Expected %d entries, got %d", max, len(all))
	}
	for i, e := range all {
		expected := fmt.Sprintf("https://site-%d.example", i+1)
		if e.Subject != expected {
			t.Errorf("Entry %d: expected %q, got %q", i, expected, e.Subject)
		}
		if i > 0 && !all[i-1].CapturedAt.Before(e.CapturedAt) {
			t.Errorf("Expected ascending capture times at %d", i)
		}
	}
}

func TestLog_NotDeduplicated(t *testing.T) {
	ctx := context.Background()
	l := Load(ctx, storage.NewMemory(), Config{Now: steppingClock()})

	for i := 0; i < 3; i++ {
		if _, err := l.Record(ctx, "https://example.com", response("https://example.com", 0.1)); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	if l.Len() != 3 {
		t.Errorf("Expected repeated checks to each be recorded, got %d", l.Len())
	}
}

func TestLog_Recent(t *testing.T) {
	ctx := context.Background()
	l := Load(ctx, storage.NewMemory(), Config{Now: steppingClock()})
	for i := 0; i < 4; i++ {
		s := fmt.Sprintf("s%d", i)
		_, _ = l.Record(ctx, s, response(s, 0.1))
	}

	recent := l.Recent(2)
	if len(recent) != 2 || recent[0].Subject != "s3" || recent[1].Subject != "s2" {
		t.Errorf("Expected most recent first [s3 s2], got %v", subjects(recent))
	}
	if len(l.Recent(0)) != 4 {
		t.Error("Expected Recent(0) to return everything")
	}
	if l.All()[0].Subject != "s0" {
		t.Error("Expected storage order to stay oldest first")
	}
}

func TestLog_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer db.Close()
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	l := Load(ctx, db, Config{Now: steppingClock()})
	for i := 0; i < 3; i++ {
		s := fmt.Sprintf("https://r%d.example", i)
		if _, err := l.Record(ctx, s, response(s, float64(i)/3)); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	reloaded := Load(ctx, db, Config{})
	before, after := l.All(), reloaded.All()
	if len(before) != len(after) {
		t.Fatalf("Expected %d entries after reload, got %d", len(before), len(after))
	}
	for i := range before {
		if before[i].ID != after[i].ID || before[i].Subject != after[i].Subject {
			t.Errorf("Entry %d identity differs", i)
		}
		if !before[i].CapturedAt.Equal(after[i].CapturedAt) {
			t.Errorf("Entry %d timestamp differs: %v vs %v", i, before[i].CapturedAt, after[i].CapturedAt)
		}
		if !reflect.DeepEqual(before[i].Response, after[i].Response) {
			t.Errorf("Entry %d response differs:\n%+v\n%+v", i, before[i].Response, after[i].Response)
		}
	}
}

func TestLoad_CorruptOrMissingStartsEmpty(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		store storage.Store
	}{
		{"missing", storage.NewMemory()},
		{"corrupt", func() storage.Store {
			m := storage.NewMemory()
			_ = m.Put(ctx, DefaultNamespace, []byte("{not json"))
			return m
		}()},
		{"entry without ensemble", func() storage.Store {
			m := storage.NewMemory()
			_ = m.Put(ctx, DefaultNamespace, []byte(`[{"url":"x","result":{"url":"x"},"timestamp":1}]`))
			return m
		}()},
		{"read failure", &failingStore{Memory: storage.NewMemory(), failGet: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Load(ctx, tt.store, Config{})
			if l.Len() != 0 {
				t.Errorf("Expected empty log, got %d entries", l.Len())
			}
		})
	}
}

func TestAppend_FailedWriteLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Memory: storage.NewMemory()}
	l := Load(ctx, store, Config{Now: steppingClock()})

	if _, err := l.Record(ctx, "a", response("a", 0.1)); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	store.failPut = true
	_, err := l.Record(ctx, "b", response("b", 0.1))
	if models.KindOf(err) != models.KindStorage {
		t.Fatalf("Expected StorageError, got %v", err)
	}
	if l.Len() != 1 {
		t.Errorf("Expected failed append to be rolled back, got %d entries", l.Len())
	}
}

func TestAppend_ConcurrentWritersSerialize(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	l := Load(ctx, store, Config{MaxEntries: 1000, Now: steppingClock()})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				s := fmt.Sprintf("w%d-%d", w, i)
				if _, err := l.Record(ctx, s, response(s, 0.2)); err != nil {
					t.Errorf("Record failed: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	if l.Len() != 200 {
		t.Errorf("Expected 200 entries, got %d", l.Len())
	}
	if Load(ctx, store, Config{MaxEntries: 1000}).Len() != 200 {
		t.Error("Expected persisted record to match in-memory log")
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	l := Load(ctx, store, Config{})
	_, _ = l.Record(ctx, "a", response("a", 0.1))

	if err := l.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if l.Len() != 0 || Load(ctx, store, Config{}).Len() != 0 {
		t.Error("Expected cleared log in memory and storage")
	}
}

func subjects(entries []models.HistoryEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Subject
	}
	return out
}
