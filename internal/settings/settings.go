// -----------------------------------------------------------------------
// Settings Service - the single write path for process-wide settings
// -----------------------------------------------------------------------

package settings

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/molotovsingh/personal-backup-tool/internal/models"
)

// Service owns settings.yaml. All reads and writes go through it; no
// collaborator touches the file directly.
type Service struct {
	path   string
	logger arbor.ILogger

	mu      sync.RWMutex
	current models.Settings
}

// NewService loads settings from path, falling back to defaults when
// the file does not exist. Unknown keys in the file are rejected.
func NewService(path string, logger arbor.ILogger) (*Service, error) {
	s := &Service{
		path:    path,
		logger:  logger,
		current: models.DefaultSettings(),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	loaded := models.DefaultSettings()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&loaded); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	s.current = loaded
	return s, nil
}

// Get returns a copy of the current settings.
func (s *Service) Get() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update validates and persists new settings.
func (s *Service) Update(settings models.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(&settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to commit settings: %w", err)
	}

	s.current = settings
	s.logger.Info().Msg("Settings updated")
	return nil
}
