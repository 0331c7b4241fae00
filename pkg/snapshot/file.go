// Package snapshot persists assembled reports: rotating JSON files on disk,
// a Postgres history table, and an optional S3 archive. The engine is
// agnostic to all of this; serialization happens only here.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/stakewatch/pkg/analysis"
)

const (
	filePrefix = "stake-report-"
	latestName = "latest.json"
)

type FileStoreConfig struct {
	Logger *slog.Logger
	Dir    string
	// Keep is how many timestamped snapshots to retain. Zero keeps all.
	Keep  int
	Clock clockwork.Clock
}

func (cfg *FileStoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Dir == "" {
		return errors.New("dir is required")
	}
	return nil
}

// FileStore writes one timestamped JSON snapshot per run plus a latest.json
// alias, pruning old snapshots past the retention count.
type FileStore struct {
	log *slog.Logger
	cfg FileStoreConfig
}

func NewFileStore(cfg FileStoreConfig) (*FileStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &FileStore{log: cfg.Logger, cfg: cfg}, nil
}

func (s *FileStore) Save(ctx context.Context, report *analysis.Report) (string, error) {
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	// Leading timestamp keeps lexicographic order chronological for prune.
	stamp := s.cfg.Clock.Now().UTC().Format("20060102T150405Z")
	name := fmt.Sprintf("%s%s-epoch%d.json", filePrefix, stamp, report.Epoch.Epoch)
	path := filepath.Join(s.cfg.Dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.cfg.Dir, latestName), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write latest snapshot: %w", err)
	}

	if err := s.prune(); err != nil {
		return "", err
	}

	s.log.Info("snapshot: wrote report", "path", path, "bytes", len(data))
	return path, nil
}

func (s *FileStore) prune() error {
	if s.cfg.Keep <= 0 {
		return nil
	}

	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return fmt.Errorf("failed to read snapshot dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), filePrefix) {
			names = append(names, entry.Name())
		}
	}
	if len(names) <= s.cfg.Keep {
		return nil
	}

	// Timestamped names sort chronologically.
	sort.Strings(names)
	for _, name := range names[:len(names)-s.cfg.Keep] {
		if err := os.Remove(filepath.Join(s.cfg.Dir, name)); err != nil {
			return fmt.Errorf("failed to prune snapshot %s: %w", name, err)
		}
		s.log.Debug("snapshot: pruned", "name", name)
	}
	return nil
}
