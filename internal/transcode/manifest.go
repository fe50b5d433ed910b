package transcode

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"clipforge/internal/jobs"
)

// ManifestName is the file written next to a job's artifacts.
const ManifestName = "manifest.json"

// Artifact is one produced output file.
type Artifact struct {
	OperationID string          `json:"operation_id"`
	Type        jobs.ExportType `json:"type"`
	Path        string          `json:"path"`
	SizeBytes   int64           `json:"size_bytes"`
}

// Manifest lists every artifact produced by a job run.
type Manifest struct {
	SessionID   string     `json:"session_id"`
	VideoID     string     `json:"video_id"`
	Epoch       int        `json:"epoch"`
	Source      string     `json:"source"`
	CompletedAt time.Time  `json:"completed_at"`
	Artifacts   []Artifact `json:"artifacts"`
}

// JobDir returns the directory holding a job's artifacts.
func JobDir(outputRoot, sessionID string) string {
	return filepath.Join(outputRoot, sessionID)
}

// WriteManifest records the operations' outputs in dir and returns the
// manifest path. Every operation must have produced its output file.
func WriteManifest(dir string, job *jobs.Job, ops []jobs.Operation, at time.Time) (string, error) {
	manifest := Manifest{
		SessionID:   job.SessionID,
		VideoID:     job.VideoID,
		Epoch:       job.Epoch,
		Source:      job.SourcePath,
		CompletedAt: at.UTC(),
		Artifacts:   make([]Artifact, 0, len(ops)),
	}
	for _, op := range ops {
		info, err := os.Stat(op.Output)
		if err != nil {
			return "", fmt.Errorf("artifact %s: %w", op.ID, err)
		}
		manifest.Artifacts = append(manifest.Artifacts, Artifact{
			OperationID: op.ID,
			Type:        op.Type,
			Path:        op.Output,
			SizeBytes:   info.Size(),
		})
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit manifest: %w", err)
	}
	return path, nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}
