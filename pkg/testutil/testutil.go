// Package testutil provides testing utilities for the extractor
package testutil

import (
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/nebula-hubspot/pkg/json"
)

// TestLogger creates a logger that writes to the test output
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a context with a 30-second timeout that is cancelled
// when the test completes.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// ReadCSV parses the CSV table at path, header included
func ReadCSV(t *testing.T, fs afero.Fs, path string) [][]string {
	t.Helper()
	f, err := fs.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return records
}

// ReadManifest decodes the manifest written next to the table at path
func ReadManifest(t *testing.T, fs afero.Fs, path string) map[string]interface{} {
	t.Helper()
	data, err := afero.ReadFile(fs, path+".manifest")
	if err != nil {
		t.Fatalf("read manifest of %s: %v", path, err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode manifest of %s: %v", path, err)
	}
	return m
}
