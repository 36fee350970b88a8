// Package remote holds the clients for the two remote collaborators: the
// document-oriented record collection and the blob namespace. Both are
// treated as opaque HTTP services; in-package fakes back the tests.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/musicvault/musicvault/internal/constants"
	"github.com/musicvault/musicvault/internal/domain"
	"github.com/musicvault/musicvault/internal/httpclient"
)

// Records is the remote record collection keyed loosely by field values.
type Records interface {
	// Query returns every record matching all given field filters.
	Query(ctx context.Context, filters map[string]string) ([]domain.AssetRecord, error)
	// Add appends one record to the collection.
	Add(ctx context.Context, rec domain.AssetRecord) error
	// Update patches the first record matching (userEmail, musicName).
	Update(ctx context.Context, userEmail, musicName string, updates map[string]any) error
	// BatchDelete removes every record matching (userEmail, musicName) and
	// returns how many went away.
	BatchDelete(ctx context.Context, userEmail, musicName string) (int, error)
}

// RecordsClient talks to the record collection over HTTP.
type RecordsClient struct {
	BaseURL string
	Client  *httpclient.Client
}

func NewRecordsClient(baseURL string, client *httpclient.Client) *RecordsClient {
	return &RecordsClient{BaseURL: baseURL, Client: client}
}

func (c *RecordsClient) collectionURL(filters map[string]string) string {
	u := fmt.Sprintf("%s/collections/%s", c.BaseURL, constants.RecordsCollection)
	if len(filters) == 0 {
		return u
	}
	q := url.Values{}
	for k, v := range filters {
		q.Set(k, v)
	}
	return u + "?" + q.Encode()
}

func (c *RecordsClient) Query(ctx context.Context, filters map[string]string) ([]domain.AssetRecord, error) {
	var resp struct {
		Documents []domain.AssetRecord `json:"documents"`
	}
	if err := c.do(ctx, http.MethodGet, c.collectionURL(filters), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	return resp.Documents, nil
}

func (c *RecordsClient) Add(ctx context.Context, rec domain.AssetRecord) error {
	if err := c.do(ctx, http.MethodPost, c.collectionURL(nil), rec, nil); err != nil {
		return fmt.Errorf("failed to add record for %s: %w", rec.MusicName, err)
	}
	return nil
}

func (c *RecordsClient) Update(ctx context.Context, userEmail, musicName string, updates map[string]any) error {
	body := struct {
		Filter  map[string]string `json:"filter"`
		Updates map[string]any    `json:"updates"`
	}{
		Filter: map[string]string{
			constants.FieldUserEmail: userEmail,
			constants.FieldMusicName: musicName,
		},
		Updates: updates,
	}
	if err := c.do(ctx, http.MethodPatch, c.collectionURL(nil), body, nil); err != nil {
		return fmt.Errorf("failed to update record for %s: %w", musicName, err)
	}
	return nil
}

func (c *RecordsClient) BatchDelete(ctx context.Context, userEmail, musicName string) (int, error) {
	u := c.collectionURL(map[string]string{
		constants.FieldUserEmail: userEmail,
		constants.FieldMusicName: musicName,
	})
	var resp struct {
		Deleted int `json:"deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, u, nil, &resp); err != nil {
		return 0, fmt.Errorf("failed to delete records for %s: %w", musicName, err)
	}
	return resp.Deleted, nil
}

func (c *RecordsClient) do(ctx context.Context, method, u string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Client.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("record service returned %d: %s", resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
