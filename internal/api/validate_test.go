package api

import (
	"strings"
	"testing"
)

func TestValidateSubmitBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "valid",
			body: `{"video_id":"v1","user_id":"alice","source_path":"/media/a.mp4","source_duration_seconds":60,
				"options":{"exports":[{"type":"cut","cut":{"start":0,"end":30}}]}}`,
		},
		{name: "not an object", body: `"not an object"`, wantErr: "does not match schema"},
		{name: "malformed", body: `{"video_id":`, wantErr: "invalid request body"},
		{
			name:    "missing options",
			body:    `{"video_id":"v1","user_id":"alice","source_path":"/a.mp4"}`,
			wantErr: "does not match schema",
		},
		{
			name: "negative size",
			body: `{"video_id":"v1","user_id":"alice","source_path":"/a.mp4","source_size_bytes":-1,
				"options":{"exports":[]}}`,
			wantErr: "does not match schema",
		},
		{
			name: "export without type",
			body: `{"video_id":"v1","user_id":"alice","source_path":"/a.mp4",
				"options":{"exports":[{"cut":{"start":0,"end":1}}]}}`,
			wantErr: "does not match schema",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSubmitBody([]byte(tt.body))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
