package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"clipforge/internal/jobs"
)

func TestExportFlagsParse(t *testing.T) {
	flags := exportFlags{
		cuts:     []string{"0:10", " 12.5 : 20 "},
		previews: []string{"1:3", "1:3:12:480"},
		stills:   []string{"4", "4:320"},
		loops:    []string{"0:2:5"},
	}
	got, err := flags.exports()
	if err != nil {
		t.Fatalf("exports: %v", err)
	}
	want := []jobs.Export{
		jobs.NewCut(0, 10),
		jobs.NewCut(12.5, 20),
		jobs.NewPreview(1, 3, 0, 0),
		jobs.NewPreview(1, 3, 12, 480),
		jobs.NewStill(4, 0),
		jobs.NewStill(4, 320),
		jobs.NewLoop(0, 2, 5),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("exports mismatch (-want +got):\n%s", diff)
	}
}

func TestExportFlagsRejectMalformed(t *testing.T) {
	tests := []struct {
		name  string
		flags exportFlags
	}{
		{name: "cut missing end", flags: exportFlags{cuts: []string{"10"}}},
		{name: "cut not numeric", flags: exportFlags{cuts: []string{"a:b"}}},
		{name: "preview too many parts", flags: exportFlags{previews: []string{"1:2:3:4:5"}}},
		{name: "still empty", flags: exportFlags{stills: []string{""}}},
		{name: "loop missing count", flags: exportFlags{loops: []string{"0:2"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.flags.exports(); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
	if !(exportFlags{}).empty() {
		t.Fatal("zero exportFlags should be empty")
	}
}
