package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
)

// AzureArchive implements Archive for Azure Blob Storage.
type AzureArchive struct {
	client      *azblob.Client
	accountName string
	accountKey  string
	container   string
	sasExpiry   time.Duration
}

// AzureArchiveOptions holds configuration for Azure Blob Storage archiving.
type AzureArchiveOptions struct {
	ConnectionString string
	AccountName      string
	AccountKey       string
	Container        string
	SASExpiry        time.Duration
}

// NewAzureArchive creates an Azure Blob Storage archive client, supporting
// both connection-string and account+key authentication.
func NewAzureArchive(opts *AzureArchiveOptions) (*AzureArchive, error) {
	if opts == nil {
		return nil, fmt.Errorf("azure archive configuration is required")
	}
	if opts.Container == "" {
		return nil, fmt.Errorf("container name is required")
	}

	sasExpiry := opts.SASExpiry
	if sasExpiry == 0 {
		sasExpiry = 168 * time.Hour
	}

	var client *azblob.Client
	var accountName, accountKey string
	var err error

	switch {
	case opts.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(opts.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure client from connection string: %w", err)
		}
		accountName, accountKey, err = parseConnectionString(opts.ConnectionString)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connection string: %w", err)
		}
	case opts.AccountName != "" && opts.AccountKey != "":
		accountName = opts.AccountName
		accountKey = opts.AccountKey
		credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", err)
		}
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure client with shared key: %w", err)
		}
	default:
		return nil, fmt.Errorf("either connection string or (account name + key) must be provided")
	}

	return &AzureArchive{
		client:      client,
		accountName: accountName,
		accountKey:  accountKey,
		container:   opts.Container,
		sasExpiry:   sasExpiry,
	}, nil
}

// parseConnectionString extracts account name and key from an Azure storage
// connection string ("DefaultEndpointsProtocol=https;AccountName=x;AccountKey=y;...").
func parseConnectionString(connStr string) (string, string, error) {
	parts := map[string]string{}
	current := ""
	inValue := false
	key := ""

	for i := 0; i < len(connStr); i++ {
		switch {
		case connStr[i] == '=' && !inValue:
			key = current
			current = ""
			inValue = true
		case connStr[i] == ';' && inValue:
			parts[key] = current
			current = ""
			key = ""
			inValue = false
		default:
			current += string(connStr[i])
		}
	}
	if key != "" && inValue {
		parts[key] = current
	}

	accountName := parts["AccountName"]
	accountKey := parts["AccountKey"]
	if accountName == "" || accountKey == "" {
		return "", "", fmt.Errorf("connection string must contain AccountName and AccountKey")
	}
	return accountName, accountKey, nil
}

func (a *AzureArchive) uploadBlob(ctx context.Context, blobPath string, data []byte) error {
	blobClient := a.client.ServiceClient().NewContainerClient(a.container).NewBlockBlobClient(blobPath)

	contentType := contentTypeFor(blobPath)
	inline := "inline"
	httpHeaders := &blob.HTTPHeaders{
		BlobContentType:        &contentType,
		BlobContentDisposition: &inline,
	}

	_, err := blobClient.UploadBuffer(ctx, data, &azblob.UploadBufferOptions{HTTPHeaders: httpHeaders})
	if err != nil {
		return fmt.Errorf("failed to upload blob %s: %w", blobPath, err)
	}
	return nil
}

func contentTypeFor(filename string) string {
	ext := ""
	for i := len(filename) - 1; i >= 0; i-- {
		if filename[i] == '.' {
			ext = filename[i:]
			break
		}
	}
	switch ext {
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".json":
		return "application/json; charset=utf-8"
	case ".html":
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

func (a *AzureArchive) generateSASURL(blobPath string, expiry time.Time) (string, error) {
	credential, err := azblob.NewSharedKeyCredential(a.accountName, a.accountKey)
	if err != nil {
		return "", fmt.Errorf("failed to create credential for SAS: %w", err)
	}

	blobClient := a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(blobPath)

	permissions := sas.BlobPermissions{Read: true}
	sasQueryParams, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		StartTime:     time.Now().UTC(),
		ExpiryTime:    expiry.UTC(),
		Permissions:   permissions.String(),
		ContainerName: a.container,
		BlobName:      blobPath,
	}.SignWithSharedKey(credential)
	if err != nil {
		return "", fmt.Errorf("failed to generate SAS token for %s: %w", blobPath, err)
	}

	return fmt.Sprintf("%s?%s", blobClient.URL(), sasQueryParams.Encode()), nil
}

// SaveEpisode uploads all episode artifacts to Azure and returns SAS URLs
// for access.
func (a *AzureArchive) SaveEpisode(ctx context.Context, episodeID string, artifacts *EpisodeArtifacts) (*SaveResult, error) {
	if artifacts == nil {
		return nil, fmt.Errorf("artifacts cannot be nil")
	}

	expiresAt := time.Now().Add(a.sasExpiry)
	files := map[string][]byte{
		"episode.json": artifacts.EpisodeJSON,
		"report.md":    artifacts.ReportMD,
		"report.html":  artifacts.ReportHTML,
	}

	result := &SaveResult{ArtifactURLs: make(map[string]string), ExpiresAt: expiresAt}

	var lastErr error
	for name, data := range files {
		if len(data) == 0 {
			continue
		}
		blobPath := fmt.Sprintf("%s/%s", episodeID, name)
		if err := a.uploadBlob(ctx, blobPath, data); err != nil {
			slog.Error("failed to upload episode artifact", "episode_id", episodeID, "artifact", name, "error", err)
			lastErr = err
			continue
		}
		sasURL, err := a.generateSASURL(blobPath, expiresAt)
		if err != nil {
			slog.Error("failed to generate SAS URL", "episode_id", episodeID, "artifact", name, "error", err)
			lastErr = err
			continue
		}
		result.ArtifactURLs[name] = sasURL
		if name == "report.html" {
			result.ReportURL = sasURL
		}
	}

	if len(result.ArtifactURLs) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("failed to upload any episode artifacts: %w", lastErr)
		}
		return nil, fmt.Errorf("no episode artifacts were uploaded")
	}

	return result, nil
}

// SaveSnapshot uploads a single JSON cluster-status snapshot and returns a
// SAS URL for access.
func (a *AzureArchive) SaveSnapshot(ctx context.Context, snapshotID string, statusJSON []byte) (*SaveResult, error) {
	expiresAt := time.Now().Add(a.sasExpiry)
	blobPath := fmt.Sprintf("snapshots/%s.json", snapshotID)

	if err := a.uploadBlob(ctx, blobPath, statusJSON); err != nil {
		return nil, fmt.Errorf("failed to upload status snapshot: %w", err)
	}
	sasURL, err := a.generateSASURL(blobPath, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate SAS URL for status snapshot: %w", err)
	}

	return &SaveResult{
		ReportURL:    sasURL,
		ArtifactURLs: map[string]string{"snapshot.json": sasURL},
		ExpiresAt:    expiresAt,
	}, nil
}
