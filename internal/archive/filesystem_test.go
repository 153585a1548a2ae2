package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFilesystemArchive_SaveEpisodeWritesAllArtifacts(t *testing.T) {
	tmpDir := t.TempDir()
	fa := NewFilesystemArchive(tmpDir)

	episodeID := "episode-001"
	artifacts := &EpisodeArtifacts{
		EpisodeJSON: []byte(`{"secondary_index":0}`),
		ReportMD:    []byte("# Disconnect episode\n"),
		ReportHTML:  []byte("<h1>Disconnect episode</h1>"),
	}

	result, err := fa.SaveEpisode(context.Background(), episodeID, artifacts)
	if err != nil {
		t.Fatalf("SaveEpisode failed: %v", err)
	}
	if result == nil {
		t.Fatal("SaveEpisode returned nil result")
	}

	dir := filepath.Join(tmpDir, episodeID)
	for name, want := range map[string][]byte{
		"episode.json": artifacts.EpisodeJSON,
		"report.md":    artifacts.ReportMD,
		"report.html":  artifacts.ReportHTML,
	} {
		got, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("failed to read %s: %v", name, err)
		}
		if string(got) != string(want) {
			t.Errorf("%s content = %q, want %q", name, got, want)
		}
	}

	if result.ReportURL != filepath.Join(dir, "report.html") {
		t.Errorf("ReportURL = %q, want the report.html path", result.ReportURL)
	}
	if !result.ExpiresAt.IsZero() {
		t.Errorf("ExpiresAt = %v, want zero for filesystem archiving", result.ExpiresAt)
	}
}

func TestFilesystemArchive_SaveEpisodeNilArtifacts(t *testing.T) {
	fa := NewFilesystemArchive(t.TempDir())
	if _, err := fa.SaveEpisode(context.Background(), "episode-x", nil); err == nil {
		t.Fatal("expected an error for nil artifacts")
	}
}

func TestFilesystemArchive_SaveEpisodeFilePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	fa := NewFilesystemArchive(tmpDir)

	if _, err := fa.SaveEpisode(context.Background(), "episode-perms", &EpisodeArtifacts{
		EpisodeJSON: []byte(`{}`), ReportMD: []byte(""), ReportHTML: []byte(""),
	}); err != nil {
		t.Fatalf("SaveEpisode failed: %v", err)
	}

	dir := filepath.Join(tmpDir, "episode-perms")
	dirInfo, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("failed to stat episode dir: %v", err)
	}
	if dirInfo.Mode().Perm() != 0700 {
		t.Errorf("episode dir perm = %o, want 0700", dirInfo.Mode().Perm())
	}

	fileInfo, err := os.Stat(filepath.Join(dir, "episode.json"))
	if err != nil {
		t.Fatalf("failed to stat episode.json: %v", err)
	}
	if fileInfo.Mode().Perm() != 0600 {
		t.Errorf("episode.json perm = %o, want 0600", fileInfo.Mode().Perm())
	}
}

func TestFilesystemArchive_SaveMultipleEpisodes(t *testing.T) {
	tmpDir := t.TempDir()
	fa := NewFilesystemArchive(tmpDir)

	for _, id := range []string{"episode-a", "episode-b", "episode-c"} {
		if _, err := fa.SaveEpisode(context.Background(), id, &EpisodeArtifacts{
			EpisodeJSON: []byte(`{"id":"` + id + `"}`),
		}); err != nil {
			t.Fatalf("SaveEpisode(%s) failed: %v", id, err)
		}
		if _, err := os.Stat(filepath.Join(tmpDir, id)); err != nil {
			t.Errorf("episode dir for %s not created: %v", id, err)
		}
	}
}

func TestFilesystemArchive_ZeroExpiresAtAcrossRuns(t *testing.T) {
	fa := NewFilesystemArchive(t.TempDir())
	for i := 0; i < 3; i++ {
		result, err := fa.SaveEpisode(context.Background(), "episode-"+string(rune('a'+i)), &EpisodeArtifacts{})
		if err != nil {
			t.Fatalf("SaveEpisode failed: %v", err)
		}
		if result.ExpiresAt != (time.Time{}) {
			t.Errorf("ExpiresAt = %v, want the zero value", result.ExpiresAt)
		}
	}
}

func TestFilesystemArchive_SaveSnapshotWritesJSON(t *testing.T) {
	tmpDir := t.TempDir()
	fa := NewFilesystemArchive(tmpDir)

	payload := []byte(`[{"secondary_index":0,"connected":true}]`)
	result, err := fa.SaveSnapshot(context.Background(), "snap-001", payload)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	path := filepath.Join(tmpDir, "snapshots", "snap-001.json")
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read snapshot file: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("snapshot contents = %q, want %q", got, payload)
	}
	if result.ReportURL != path {
		t.Errorf("ReportURL = %q, want %q", result.ReportURL, path)
	}
}
