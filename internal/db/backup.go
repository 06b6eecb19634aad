package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// BackupConfig controls the periodic snapshot loop.
type BackupConfig struct {
	Enabled   bool
	Interval  time.Duration
	Dir       string
	Retention time.Duration
}

type BackupService struct {
	db     *DB
	config BackupConfig
	logger *zerolog.Logger
	now    func() time.Time
}

func NewBackupService(db *DB, cfg BackupConfig, logger *zerolog.Logger) *BackupService {
	if cfg.Dir == "" {
		cfg.Dir = "backups"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 14 * 24 * time.Hour
	}
	return &BackupService{db: db, config: cfg, logger: logger, now: time.Now}
}

// Start runs a backup right away and then on every interval until ctx is done.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}

	s.logger.Info().Dur("interval", s.config.Interval).Str("dir", s.config.Dir).Msg("Backup service started")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.runOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce()
		}
	}
}

func (s *BackupService) runOnce() {
	if _, err := s.PerformBackup(); err != nil {
		s.logger.Error().Err(err).Msg("Scheduled backup failed")
		return
	}
	if removed, err := s.CleanupOldBackups(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to clean up old backups")
	} else if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Old backups deleted")
	}
}

// PerformBackup writes a timestamped snapshot and returns its path.
func (s *BackupService) PerformBackup() (string, error) {
	timestamp := s.now().Format("20060102_150405")
	dest := filepath.Join(s.config.Dir, fmt.Sprintf("practicespace_%s.db", timestamp))

	s.logger.Info().Str("path", dest).Msg("Performing database backup")
	if err := s.db.Backup(dest); err != nil {
		return "", err
	}
	s.logger.Info().Str("path", dest).Msg("Backup completed successfully")
	return dest, nil
}

// CleanupOldBackups deletes snapshot files older than the retention window.
func (s *BackupService) CleanupOldBackups() (int, error) {
	files, err := os.ReadDir(s.config.Dir)
	if err != nil {
		return 0, fmt.Errorf("read backup directory: %w", err)
	}

	cutoff := s.now().Add(-s.config.Retention)
	removed := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), "practicespace_") {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.config.Dir, file.Name())); err != nil {
				s.logger.Warn().Err(err).Str("file", file.Name()).Msg("Failed to delete old backup")
				continue
			}
			removed++
		}
	}
	return removed, nil
}
