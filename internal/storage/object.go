package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// ObjectStore uploads attachments to an external object-storage
// service and records the URL the service hands back.
type ObjectStore struct {
	baseURL    string
	httpClient *http.Client
}

// NewObjectStore constructs a client for the storage service.
func NewObjectStore(baseURL string) *ObjectStore {
	return &ObjectStore{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type uploadResponse struct {
	URL string `json:"url"`
}

// Save posts the file as multipart form data. The service responds
// with the stable public URL of the stored object.
func (s *ObjectStore) Save(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/objects", s.baseURL), body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if contentType != "" {
		req.Header.Set("X-Object-Content-Type", contentType)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("storage: upload failed with status %d", resp.StatusCode)
	}

	var decoded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("storage: decode upload response: %w", err)
	}
	if decoded.URL == "" {
		return "", fmt.Errorf("storage: upload response missing url")
	}
	return decoded.URL, nil
}
