// Package settings persists the shared gateway settings document. The
// document is a single JSON file that other writers (the dashboard's
// raw-JSON editor among them) edit concurrently, so every mutation is a
// full read-modify-write and a malformed file is repaired rather than
// treated as fatal.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/bnema/modelgw/internal/domain"
	"github.com/bnema/modelgw/internal/ports"
)

const (
	configName       = "config"
	configType       = "toml"
	settingsPathKey  = "settings.path"
	configDirName    = ".modelgw"
	settingsFileName = "settings.json"
	settingsFileMode = 0o600
	settingsDirMode  = 0o700
	tempFilePattern  = ".settings-*.json.tmp"
	backupTimeLayout = "20060102-150405"
)

type Store struct {
	path   string
	mu     *sync.RWMutex
	logger *slog.Logger
	now    func() time.Time
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.SettingsStore = (*Store)(nil)

// NewStore resolves the settings file path from ~/.modelgw/config.toml
// (key settings.path), defaulting to ~/.modelgw/settings.json.
func NewStore(cfg *viper.Viper, logger *slog.Logger) (*Store, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	defaultPath := filepath.Join(homeDir, configDirName, settingsFileName)

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(filepath.Join(homeDir, configDirName))
	cfg.SetDefault(settingsPathKey, defaultPath)

	err = cfg.ReadInConfig()
	if err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return NewStoreAtPath(cfg.GetString(settingsPathKey), logger)
}

// NewStoreAtPath binds a store to an explicit settings file path.
func NewStoreAtPath(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("settings path is empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve settings path: %w", err)
	}
	absPath = filepath.Clean(absPath)

	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		path:   absPath,
		mu:     lockForPath(absPath),
		logger: logger,
		now:    time.Now,
	}, nil
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted document. A missing file yields an empty
// document; a malformed file is repaired when possible and degrades to an
// empty document otherwise. Load never fails on bad content, only on IO.
func (s *Store) Load(ctx context.Context) (*domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Exclusive, not shared: repair rewrites the canonical file.
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadLocked()
}

// Mutate applies transform to the current document and writes the whole
// document back. Two concurrent external writers still race whole-document
// (last writer wins); in-process writers serialize on the path lock.
func (s *Store) Mutate(ctx context.Context, transform func(*domain.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return err
	}

	if err := transform(doc); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return s.writeLocked(doc.Bytes())
}

func (s *Store) loadLocked() (*domain.Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.NewDocument(nil), nil
		}
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	if gjson.ValidBytes(data) {
		return detectProvider(domain.NewDocument(data)), nil
	}

	repaired, ok := Repair(data)
	if !ok {
		s.logger.Error("settings file is not valid JSON and could not be repaired, starting from an empty document",
			"path", s.path)
		return domain.NewDocument(nil), nil
	}

	backupPath, err := s.writeBackup(data)
	if err != nil {
		// Keep the original bytes on disk when the backup cannot be
		// written; serve the repaired document from memory only.
		s.logger.Error("repaired settings file but could not write backup, leaving original on disk",
			"path", s.path, "error", err)
		return detectProvider(domain.NewDocument(repaired)), nil
	}

	if err := s.writeLocked(repaired); err != nil {
		s.logger.Error("repaired settings file but could not rewrite it", "path", s.path, "error", err)
	} else {
		s.logger.Warn("repaired malformed settings file", "path", s.path, "backup", backupPath)
	}

	return detectProvider(domain.NewDocument(repaired)), nil
}

func (s *Store) writeBackup(original []byte) (string, error) {
	backupPath := fmt.Sprintf("%s.%s.bak", s.path, s.now().UTC().Format(backupTimeLayout))
	if err := os.WriteFile(backupPath, original, settingsFileMode); err != nil {
		return "", fmt.Errorf("write settings backup: %w", err)
	}

	return backupPath, nil
}

func (s *Store) writeLocked(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), settingsDirMode); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	data = pretty.Pretty(data)

	tempFile, err := os.CreateTemp(filepath.Dir(s.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp settings file: %w", err)
	}

	if err := tempFile.Chmod(settingsFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp settings file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp settings file: %w", err)
	}

	if err := os.Rename(tempName, s.path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}

	cleanup = false

	if err := os.Chmod(s.path, settingsFileMode); err != nil {
		return fmt.Errorf("chmod settings file: %w", err)
	}

	return nil
}

// detectProvider resolves models.provider for older documents that never
// stored one explicitly.
func detectProvider(doc *domain.Document) *domain.Document {
	if doc.Get(domain.KeyModelsProvider).Exists() {
		return doc
	}

	for _, p := range domain.DetectionOrder {
		if doc.Get("models." + p.String()).Exists() {
			_ = doc.Set(domain.KeyModelsProvider, p.String())
			break
		}
	}

	return doc
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}
