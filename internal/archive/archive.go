// Package archive persists disconnect-episode telemetry for a secondary
// timer, either to the local filesystem or to Azure Blob Storage, following
// the interface-plus-factory shape of the teacher's storage package.
package archive

import (
	"context"
	"fmt"
	"time"
)

// Archive defines the interface for persisting a disconnect episode's
// artifacts to local or cloud storage.
type Archive interface {
	// SaveEpisode uploads all artifacts for a disconnect episode and
	// returns URLs (or filesystem paths) to access them.
	SaveEpisode(ctx context.Context, episodeID string, artifacts *EpisodeArtifacts) (*SaveResult, error)

	// SaveSnapshot uploads a single JSON cluster-status snapshot, timer-
	// archived independently of any disconnect episode.
	SaveSnapshot(ctx context.Context, snapshotID string, statusJSON []byte) (*SaveResult, error)
}

// EpisodeArtifacts contains the files generated when a secondary's
// disconnect episode is archived: the raw episode record, a markdown
// summary, and its rendered HTML.
type EpisodeArtifacts struct {
	// EpisodeJSON is the serialized Episode record.
	EpisodeJSON []byte
	// ReportMD is the markdown disconnect-episode report.
	ReportMD []byte
	// ReportHTML is the HTML-rendered version of ReportMD.
	ReportHTML []byte
}

// SaveResult contains the results of an archive operation.
type SaveResult struct {
	// ReportURL is the URL (or filesystem path) to the rendered report.
	ReportURL string
	// ArtifactURLs maps artifact names to their URLs/paths.
	ArtifactURLs map[string]string
	// ExpiresAt is when the URLs expire (relevant for cloud storage with
	// SAS tokens); zero for filesystem storage.
	ExpiresAt time.Time
}

// Config represents the configuration needed to initialize archive
// backends. Matching the teacher's StorageConfig, this interface lets
// NewArchiver accept different config types without importing the concrete
// config package.
type Config interface {
	IsAzureArchiveEnabled() bool
	GetArchiveRoot() string
}

// AzureArchiveConfig provides Azure-specific configuration for archiving
// disconnect episodes.
type AzureArchiveConfig interface {
	Config
	GetAzureConnectionString() string
	GetAzureAccount() string
	GetAzureKey() string
	GetAzureContainer() string
	GetAzureSASExpiry() time.Duration
}

// NewArchiver returns an Archive implementation chosen by cfg: Azure Blob
// Storage when enabled, the local filesystem otherwise.
func NewArchiver(cfg Config) (Archive, error) {
	if cfg == nil {
		return nil, fmt.Errorf("archive configuration is required")
	}

	if cfg.IsAzureArchiveEnabled() {
		azureCfg, ok := cfg.(AzureArchiveConfig)
		if !ok {
			return nil, fmt.Errorf("azure archive enabled but config doesn't implement AzureArchiveConfig")
		}
		az, err := NewAzureArchive(&AzureArchiveOptions{
			ConnectionString: azureCfg.GetAzureConnectionString(),
			AccountName:      azureCfg.GetAzureAccount(),
			AccountKey:       azureCfg.GetAzureKey(),
			Container:        azureCfg.GetAzureContainer(),
			SASExpiry:        azureCfg.GetAzureSASExpiry(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize azure archive: %w", err)
		}
		return az, nil
	}

	return NewFilesystemArchive(cfg.GetArchiveRoot()), nil
}
