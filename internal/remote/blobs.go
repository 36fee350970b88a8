package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/musicvault/musicvault/internal/httpclient"
)

// Blobs is the remote blob namespace: list what exists and resolve short-lived
// download URLs. The blob bytes themselves are fetched directly from the
// resolved URL.
type Blobs interface {
	// List returns blob names under prefix, without the prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// DownloadURL resolves a time-limited URL for one blob.
	DownloadURL(ctx context.Context, name string) (string, error)
}

// BlobsClient talks to the blob namespace over HTTP.
type BlobsClient struct {
	BaseURL string
	Client  *httpclient.Client
}

func NewBlobsClient(baseURL string, client *httpclient.Client) *BlobsClient {
	return &BlobsClient{BaseURL: baseURL, Client: client}
}

func (c *BlobsClient) List(ctx context.Context, prefix string) ([]string, error) {
	u := fmt.Sprintf("%s/blobs?prefix=%s", c.BaseURL, url.QueryEscape(prefix))
	resp, err := c.Client.Get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("blob service returned %d: %s", resp.StatusCode, data)
	}

	var out struct {
		Names []string `json:"names"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode blob listing: %w", err)
	}
	return out.Names, nil
}

func (c *BlobsClient) DownloadURL(ctx context.Context, name string) (string, error) {
	u := fmt.Sprintf("%s/blobs/url?name=%s", c.BaseURL, url.QueryEscape(name))
	resp, err := c.Client.Get(ctx, u)
	if err != nil {
		return "", fmt.Errorf("failed to resolve download URL for %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("blob service returned %d: %s", resp.StatusCode, data)
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode download URL: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("blob service returned empty URL for %s", name)
	}
	return out.URL, nil
}
