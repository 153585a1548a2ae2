package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FilesystemArchive implements Archive by persisting episode artifacts to
// the local filesystem.
type FilesystemArchive struct {
	root string
}

// NewFilesystemArchive creates a FilesystemArchive rooted at root.
func NewFilesystemArchive(root string) *FilesystemArchive {
	return &FilesystemArchive{root: root}
}

// SaveEpisode writes <root>/<episodeID>/{episode.json,report.md,report.html}.
func (fa *FilesystemArchive) SaveEpisode(_ context.Context, episodeID string, artifacts *EpisodeArtifacts) (*SaveResult, error) {
	if artifacts == nil {
		return nil, fmt.Errorf("artifacts cannot be nil")
	}

	dir := filepath.Join(fa.root, episodeID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create episode directory: %w", err)
	}

	files := map[string][]byte{
		"episode.json": artifacts.EpisodeJSON,
		"report.md":    artifacts.ReportMD,
		"report.html":  artifacts.ReportHTML,
	}

	paths := make(map[string]string, len(files))
	for name, data := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0600); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
		paths[name] = path
	}

	return &SaveResult{
		ReportURL:    paths["report.html"],
		ArtifactURLs: paths,
		ExpiresAt:    time.Time{},
	}, nil
}

// SaveSnapshot writes <root>/snapshots/<snapshotID>.json.
func (fa *FilesystemArchive) SaveSnapshot(_ context.Context, snapshotID string, statusJSON []byte) (*SaveResult, error) {
	dir := filepath.Join(fa.root, "snapshots")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	path := filepath.Join(dir, snapshotID+".json")
	if err := os.WriteFile(path, statusJSON, 0600); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}

	return &SaveResult{
		ReportURL:    path,
		ArtifactURLs: map[string]string{"snapshot.json": path},
		ExpiresAt:    time.Time{},
	}, nil
}
