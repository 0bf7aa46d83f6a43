package utils

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"
)

// CreateJobDir creates the working directories for an export job
func CreateJobDir(baseDir, jobID string) (string, error) {
	jobDir := filepath.Join(baseDir, jobID)

	dirs := []string{
		jobDir,
		filepath.Join(jobDir, "input"),
		filepath.Join(jobDir, "output"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return jobDir, nil
}

// WriteTempFile writes data to a new file in dir. The extension is derived from
// mimeType when one is registered.
func WriteTempFile(dir, prefix, mimeType string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.CreateTemp(dir, prefix+"-*"+ExtensionFor(mimeType))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		_ = os.Remove(file.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}

	return file.Name(), nil
}

// WriteFile writes data to path, creating parent directories
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// ExtensionFor returns a file extension for mimeType, or an empty string
func ExtensionFor(mimeType string) string {
	switch mimeType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	case "video/webm", "audio/webm":
		return ".webm"
	case "video/mp4":
		return ".mp4"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// CleanupJobFiles removes all temporary files for a job
func CleanupJobFiles(baseDir, jobID string) error {
	jobDir := filepath.Join(baseDir, jobID)
	return os.RemoveAll(jobDir)
}

// ScheduleCleanup schedules automatic cleanup after a delay
func ScheduleCleanup(baseDir, jobID string, delay time.Duration) *time.Timer {
	return time.AfterFunc(delay, func() {
		_ = CleanupJobFiles(baseDir, jobID)
	})
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetFileSize returns file size in bytes
func GetFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
