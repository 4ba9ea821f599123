package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"snscraper/pkg/errors"
	"snscraper/pkg/logger"
)

// FileStore persists checkpoints as one JSON file per task under the data
// directory. Writes go through a temporary file and rename so a crash never
// leaves a corrupt checkpoint behind.
type FileStore struct {
	dir    string
	logger logger.Logger
}

// NewFileStore creates a file-backed store rooted at dir; when dir is empty
// the platform data directory is used.
func NewFileStore(dir string, log logger.Logger) (*FileStore, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	if dir == "" {
		dataDir, err := dataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		dir = filepath.Join(dataDir, "checkpoints")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	return &FileStore{dir: dir, logger: log}, nil
}

func (s *FileStore) path(taskID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.checkpoint.json", taskID))
}

// Save writes the checkpoint atomically
func (s *FileStore) Save(_ context.Context, cp *Checkpoint) error {
	path := s.path(cp.TaskID)
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return errors.Newf(errors.ErrorTypeStorage, "checkpoint.save", "create temp file for task %s: %v", cp.TaskID, err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cp); err != nil {
		file.Close()
		os.Remove(tempPath)
		return errors.Newf(errors.ErrorTypeStorage, "checkpoint.save", "encode checkpoint for task %s: %v", cp.TaskID, err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return errors.Newf(errors.ErrorTypeStorage, "checkpoint.save", "sync checkpoint for task %s: %v", cp.TaskID, err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return errors.Newf(errors.ErrorTypeStorage, "checkpoint.save", "close checkpoint for task %s: %v", cp.TaskID, err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return errors.Newf(errors.ErrorTypeStorage, "checkpoint.save", "replace checkpoint for task %s: %v", cp.TaskID, err)
	}

	s.logger.DebugWithFields("checkpoint saved", map[string]interface{}{
		"task_id": cp.TaskID,
		"page":    cp.CurrentPage,
		"shards":  len(cp.CompletedShards),
	})

	return nil
}

// Load reads the checkpoint for taskID
func (s *FileStore) Load(_ context.Context, taskID string) (*Checkpoint, bool, error) {
	file, err := os.Open(s.path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Newf(errors.ErrorTypeStorage, "checkpoint.load", "open checkpoint for task %s: %v", taskID, err)
	}
	defer file.Close()

	var cp Checkpoint
	if err := json.NewDecoder(file).Decode(&cp); err != nil {
		return nil, false, errors.Newf(errors.ErrorTypeStorage, "checkpoint.load", "decode checkpoint for task %s: %v", taskID, err)
	}

	s.logger.InfoWithFields("checkpoint loaded", map[string]interface{}{
		"task_id":  cp.TaskID,
		"page":     cp.CurrentPage,
		"shards":   len(cp.CompletedShards),
		"saved_at": cp.SavedAt,
	})

	return &cp, true, nil
}

// Delete removes the checkpoint file for taskID
func (s *FileStore) Delete(_ context.Context, taskID string) error {
	if err := os.Remove(s.path(taskID)); err != nil && !os.IsNotExist(err) {
		return errors.Newf(errors.ErrorTypeStorage, "checkpoint.delete", "delete checkpoint for task %s: %v", taskID, err)
	}
	return nil
}

// dataDirectory returns the appropriate data directory for the current OS
func dataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "snscraper")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "snscraper")
	default: // Linux and others
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "snscraper")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "snscraper")
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}
