// Package prefs stores display preferences next to the analysis history.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/url-guardian/client/internal/models"
	"github.com/url-guardian/client/internal/storage"
	"github.com/url-guardian/client/pkg/logger"
)

const KeyDarkMode = "darkMode"

type Preferences struct {
	DarkMode bool `json:"darkMode"`
}

type Store struct {
	store storage.Store
}

func New(store storage.Store) *Store {
	return &Store{store: store}
}

// DarkMode reads the flag. Missing or unreadable records read as false.
func (s *Store) DarkMode(ctx context.Context) bool {
	raw, err := s.store.Get(ctx, KeyDarkMode)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warn("Failed to read preference",
				zap.String("kind", string(models.KindStorage)),
				zap.String("key", KeyDarkMode),
				zap.Error(err),
			)
		}
		return false
	}

	var on bool
	if err := json.Unmarshal(raw, &on); err != nil {
		logger.Warn("Ignoring unparsable preference",
			zap.String("kind", string(models.KindStorage)),
			zap.String("key", KeyDarkMode),
			zap.Error(err),
		)
		return false
	}
	return on
}

func (s *Store) SetDarkMode(ctx context.Context, on bool) error {
	raw, _ := json.Marshal(on)
	if err := s.store.Put(ctx, KeyDarkMode, raw); err != nil {
		return models.NewStorageError("failed to save preference", fmt.Errorf("failed to write %s: %w", KeyDarkMode, err))
	}
	logger.Debug("Preference saved", zap.String("key", KeyDarkMode), zap.Bool("value", on))
	return nil
}

func (s *Store) Load(ctx context.Context) Preferences {
	return Preferences{DarkMode: s.DarkMode(ctx)}
}

func (s *Store) Save(ctx context.Context, p Preferences) error {
	return s.SetDarkMode(ctx, p.DarkMode)
}
