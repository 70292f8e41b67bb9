package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"igrelay/pkg/config"
	"igrelay/pkg/errors"
	"igrelay/pkg/logger"
)

// Manager stages downloaded media on disk. Every relay request gets its own
// directory under the base temp dir so concurrent requests never collide and
// cleanup is a single directory removal.
type Manager struct {
	baseDir     string
	maxFileSize int64
	logger      logger.Logger
}

// Media is one staged file ready to be sent
type Media struct {
	Name string
	Path string
	Size int64
}

// NewManager creates the staging manager and its base directory
func NewManager(cfg *config.DownloadConfig, maxFileSize int64, log logger.Logger) (*Manager, error) {
	if err := os.MkdirAll(cfg.TempDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &Manager{
		baseDir:     cfg.TempDir,
		maxFileSize: maxFileSize,
		logger:      log,
	}, nil
}

// NewRequestDir creates a unique staging directory for one relay request
func (m *Manager) NewRequestDir(prefix string) (*RequestDir, error) {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return nil, fmt.Errorf("failed to generate directory suffix: %w", err)
	}

	path := filepath.Join(m.baseDir, fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(suffix)))
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("failed to create request directory: %w", err)
	}

	return &RequestDir{
		path:        path,
		maxFileSize: m.maxFileSize,
		logger:      m.logger,
	}, nil
}

// Sweep removes leftover request directories from previous runs
func (m *Manager) Sweep() error {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return fmt.Errorf("failed to read temp directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.baseDir, entry.Name())); err == nil {
			removed++
		}
	}

	if removed > 0 && m.logger != nil {
		m.logger.InfoWithFields("swept stale staging directories", map[string]interface{}{
			"removed": removed,
		})
	}
	return nil
}

// RequestDir is the staging directory of a single relay request
type RequestDir struct {
	path        string
	maxFileSize int64
	logger      logger.Logger
}

// Path returns the directory path
func (r *RequestDir) Path() string {
	return r.path
}

// Save streams content into a staged file via fill. Files that grow past the
// size cap are discarded and reported as a media_too_large error.
func (r *RequestDir) Save(name string, fill func(io.Writer) error) (Media, error) {
	path := filepath.Join(r.path, name)
	tmpPath := path + ".part"

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return Media{}, fmt.Errorf("failed to create staging file: %w", err)
	}

	limited := &limitWriter{w: file, remaining: r.maxFileSize}
	if err := fill(limited); err != nil {
		file.Close()
		os.Remove(tmpPath)
		if limited.exceeded {
			return Media{}, errors.New(errors.ErrorTypeMediaTooLarge,
				fmt.Sprintf("%s exceeds the %d byte limit", name, r.maxFileSize), 0)
		}
		return Media{}, err
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return Media{}, fmt.Errorf("failed to sync staging file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return Media{}, fmt.Errorf("failed to close staging file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return Media{}, fmt.Errorf("failed to finalize staging file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Media{}, fmt.Errorf("failed to stat staged file: %w", err)
	}

	return Media{Name: name, Path: path, Size: info.Size()}, nil
}

// Cleanup removes the whole request directory and everything in it
func (r *RequestDir) Cleanup() {
	if err := os.RemoveAll(r.path); err != nil && r.logger != nil {
		r.logger.WarnWithFields("failed to clean staging directory", map[string]interface{}{
			"path":  r.path,
			"error": err.Error(),
		})
	}
}

// limitWriter rejects writes once the limit is reached
type limitWriter struct {
	w         io.Writer
	remaining int64
	exceeded  bool
}

func (lw *limitWriter) Write(p []byte) (int, error) {
	if int64(len(p)) > lw.remaining {
		lw.exceeded = true
		return 0, fmt.Errorf("write exceeds size limit")
	}
	n, err := lw.w.Write(p)
	lw.remaining -= int64(n)
	return n, err
}
