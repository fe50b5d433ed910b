package outputs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"clipforge/internal/logging"
	"clipforge/internal/transcode"
)

// CleanResult contains the outcome of a cleanup pass.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// RemoveJob deletes the artifact directory of one job. A missing directory is
// not an error.
func RemoveJob(outputDir, sessionID string) error {
	outputDir = strings.TrimSpace(outputDir)
	sessionID = strings.TrimSpace(sessionID)
	if outputDir == "" || sessionID == "" || strings.ContainsAny(sessionID, `/\`) || sessionID == "." || sessionID == ".." {
		return fmt.Errorf("refusing to remove output for session %q", sessionID)
	}
	if err := os.RemoveAll(transcode.JobDir(outputDir, sessionID)); err != nil {
		return fmt.Errorf("remove job output: %w", err)
	}
	return nil
}

// CleanOrphaned removes job directories whose session id is not in known.
func CleanOrphaned(ctx context.Context, outputDir string, known map[string]struct{}, logger *slog.Logger) CleanResult {
	result := CleanResult{}

	outputDir = strings.TrimSpace(outputDir)
	if outputDir == "" {
		return result
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: outputDir, Error: err})
		}
		return result
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() {
			continue
		}
		if _, ok := known[entry.Name()]; ok {
			continue
		}

		dirPath := filepath.Join(outputDir, entry.Name())
		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			if logger != nil {
				logger.Warn("failed to remove orphaned output directory",
					logging.String("path", dirPath),
					logging.Error(err),
					logging.String(logging.FieldEventType, "output_cleanup_failed"),
					logging.String(logging.FieldErrorHint, "check paths.output_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		if logger != nil {
			logger.Info("removed orphaned output directory",
				logging.String("path", dirPath),
				logging.String(logging.FieldEventType, "output_cleanup"),
			)
		}
	}

	return result
}
