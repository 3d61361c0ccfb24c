// Package storage defines the model-directory file-system abstraction.
package storage

import "github.com/starford/tracelight/internal/models"

// Provider is the interface for item document operations. Paths are
// relative to the model directory.
type Provider interface {
	// List returns metadata for every .md document under dir.
	List(dir string) ([]models.DocumentMetadata, error)
	Read(path string) ([]byte, error)
	// Write atomically replaces the document at path.
	Write(path string, content []byte) error
	Delete(path string) error
}
