package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/singleflight"
)

// MaxDocumentSize bounds uploaded batch documents.
const MaxDocumentSize = 20 << 20

// Downloader fetches uploaded documents. Concurrent requests for the same file
// share one download.
type Downloader struct {
	api    Requester
	client *http.Client
	sf     singleflight.Group
}

func NewDownloader(api Requester, client *http.Client) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{api: api, client: client}
}

func (d *Downloader) Download(ctx context.Context, fileID string) ([]byte, error) {
	result, err, _ := d.sf.Do(fileID, func() (interface{}, error) {
		url, err := d.api.GetFileDirectURL(fileID)
		if err != nil {
			return nil, fmt.Errorf("resolve file %s: %w", fileID, err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("download file %s: %w", fileID, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("download file %s: status %s", fileID, resp.Status)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDocumentSize+1))
		if err != nil {
			return nil, err
		}
		if len(data) > MaxDocumentSize {
			return nil, fmt.Errorf("file %s exceeds %d bytes", fileID, MaxDocumentSize)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}
