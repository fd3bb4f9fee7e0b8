//go:build pact
// +build pact

package pacttest

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

const (
	ProviderName = "catalog-api"
	ConsumerName = "catalog-portal"

	StateCatalogEmpty = "catalog is empty"
	StateBandExists   = "band Nirvana exists"
	StateSongMissing  = "no song with the missing id"
)

const (
	ExistingBandID = "6f1c2a9e-8d3b-4f0e-9a7c-1b2d3e4f5a6b"
	MissingSongID  = "00000000-0000-4000-8000-000000000404"

	ExampleBandName  = "Nirvana"
	ExampleSongName  = "Lithium"
	ExampleSongYear  = 1991
	ExampleTimestamp = "2024-06-12T10:00:00Z"
)

// UUIDPattern matches the canonical textual form of a UUID.
const UUIDPattern = `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`

// TimestampPattern matches RFC 3339 timestamps as encoded by encoding/json.
const TimestampPattern = `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})$`

// PactDir returns the workspace-level directory for generated pact files.
func PactDir(t testing.TB) string {
	t.Helper()
	dir := filepath.Join(projectRoot(t), "pacts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create pact dir: %v", err)
	}
	return dir
}

// PactFile returns the canonical pact file path for the catalog portal consumer.
func PactFile(t testing.TB) string {
	t.Helper()
	return filepath.Join(PactDir(t), ConsumerName+"-"+ProviderName+".json")
}

// LogDir returns the log output directory for pact-go.
func LogDir(t testing.TB) string {
	t.Helper()
	dir := filepath.Join(projectRoot(t), "bin", "pact-logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create pact log dir: %v", err)
	}
	return dir
}

// ExampleSongPayload is the body the portal posts to create a song.
func ExampleSongPayload() map[string]any {
	return map[string]any{
		"name":    ExampleSongName,
		"artist":  ExampleBandName,
		"year":    ExampleSongYear,
		"band_id": ExistingBandID,
	}
}

// projectRoot walks up from this file to the workspace root.
func projectRoot(t testing.TB) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine caller for pact paths")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}
