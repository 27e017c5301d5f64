package common

import (
	"bytes"
	"go/format"
	"os"
	"path/filepath"
	"testing"
)

// TestSourcesAreFormatted keeps the go files of this package gofmt clean
func TestSourcesAreFormatted(t *testing.T) {
	files, err := filepath.Glob("*.go")
	if err != nil {
		t.Fatalf("Failed to list go files: %v", err)
	}
	if len(files) == 0 {
		t.Fatalf("No go files found")
	}

	for _, file := range files {
		t.Run(file, func(t *testing.T) {
			src, err := os.ReadFile(file)
			if err != nil {
				t.Fatalf("Failed to read %s: %v", file, err)
			}
			formatted, err := format.Source(src)
			if err != nil {
				t.Fatalf("Failed to format %s: %v", file, err)
			}
			if !bytes.Equal(src, formatted) {
				t.Errorf("%s is not gofmt formatted", file)
			}
		})
	}
}
