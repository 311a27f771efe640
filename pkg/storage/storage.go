package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	// ErrUploadFailed marks a failed transfer of bytes into a store.
	ErrUploadFailed = errors.New("upload failed")
	// ErrSigningFailed marks a failure to mint a time-limited URL.
	ErrSigningFailed = errors.New("signing failed")
	// ErrDeleteFailed marks a failed removal of an object.
	ErrDeleteFailed = errors.New("delete failed")
	// ErrObjectNotFound reports that the key is not present in the store.
	ErrObjectNotFound = errors.New("object not found")
)

// Default TTLs for issued URLs.
const (
	DefaultDownloadTTL = time.Hour
	DefaultUploadTTL   = 5 * time.Minute
)

// UploadInput describes a single object to be written.
type UploadInput struct {
	Reader   io.Reader
	Name     string
	MimeType string
	Size     int64
	Prefix   string
	Metadata map[string]string
}

// Object is the result of a successful upload.
type Object struct {
	Key        string
	ExternalID string
	Size       int64
}

// ObjectRef identifies a stored object for signing or deletion.
type ObjectRef struct {
	Key        string
	ExternalID string
}

// Gateway is the contract implemented by every object store backend.
type Gateway interface {
	Name() string
	Upload(ctx context.Context, input UploadInput) (Object, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, ref ObjectRef) error
}

// ObjectInfo is what the store recorded for an object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// DirectUploader is implemented by stores that accept direct client uploads.
// Stat reads back what the client actually wrote so it can be validated
// before the key is persisted.
type DirectUploader interface {
	SignedUploadURL(ctx context.Context, key, mimeType string, ttl time.Duration) (string, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}

// Error wraps a provider failure with the store and key involved.
type Error struct {
	Kind  error
	Store string
	Key   string
	Err   error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %s: %v", e.Store, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s %q: %v", e.Store, e.Kind, e.Key, e.Err)
}

// Unwrap exposes the underlying provider error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the error kind so callers can use errors.Is(err, storage.ErrUploadFailed).
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// NewError builds a storage error of the given kind.
func NewError(kind error, store, key string, err error) *Error {
	return &Error{Kind: kind, Store: store, Key: key, Err: err}
}

// IsNotFound reports whether err signals a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}
