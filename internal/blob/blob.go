// Package blob stores uploaded files and hands back a reference the client
// can fetch them by.
package blob

import (
	"context"
	"errors"
)

// ErrInvalidName is returned for names that would escape the store root.
var ErrInvalidName = errors.New("blob: invalid name")

// Store writes named blobs. Put with an existing name overwrites it.
type Store interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, ref string) error
}
