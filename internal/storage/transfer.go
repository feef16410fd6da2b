package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TransferError reports a non-2xx response from the object store.
type TransferError struct {
	StatusCode int
	Body       string
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("object store returned %d: %s", e.StatusCode, e.Body)
}

// Transfer moves blobs to and from pre-signed URLs. The client is plain
// net/http: pre-signed requests must be sent byte-exact, so no transport
// middleware is layered on.
type Transfer struct {
	client *http.Client
}

// NewTransfer creates a transfer client. A nil httpClient gets a default with
// a 30 second timeout.
func NewTransfer(httpClient *http.Client) *Transfer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Transfer{client: httpClient}
}

// Put writes blob to a pre-signed PUT URL.
func (t *Transfer) Put(ctx context.Context, url string, blob []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(blob))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(blob))

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload blob: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &TransferError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// Get reads a blob from a pre-signed GET URL.
func (t *Transfer) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download blob: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &TransferError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return io.ReadAll(resp.Body)
}
