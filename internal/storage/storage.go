// Package storage abstracts where requisition attachments live. Two
// backends exist and are selected by configuration: a public uploads
// directory on local disk, and an external object store reached over
// HTTP. Both return a stable URL for the stored file.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrUnknownBackend indicates an unrecognised ATTACHMENT_BACKEND value.
var ErrUnknownBackend = errors.New("storage: unknown attachment backend")

// AttachmentStore persists one uploaded file and returns its URL.
type AttachmentStore interface {
	Save(ctx context.Context, filename string, contentType string, r io.Reader) (string, error)
}

// Backend names accepted in configuration.
const (
	BackendFilesystem = "filesystem"
	BackendObject     = "object"
)
