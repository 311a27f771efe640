package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	gstorage "cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/noah-isme/gema-lms-api/pkg/storage"
)

// Config contains the bucket and credentials used for lesson resources.
type Config struct {
	Bucket          string
	CredentialsFile string
	EmulatorHost    string
	SignerEmail     string
	PrivateKeyFile  string
	UploadTimeout   time.Duration
	DeleteTimeout   time.Duration

	// Endpoint points the JSON API at another host without credentials.
	Endpoint string
}

// Store implements storage.Gateway on top of a single GCS bucket.
type Store struct {
	client        *gstorage.Client
	bucket        string
	signerEmail   string
	privateKey    []byte
	uploadTimeout time.Duration
	deleteTimeout time.Duration
	logger        zerolog.Logger
}

// New constructs a GCS backed store.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("gcs bucket must be provided")
	}

	client, err := gstorage.NewClient(ctx, clientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}

	var privateKey []byte
	if cfg.PrivateKeyFile != "" {
		privateKey, err = os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read gcs signing key: %w", err)
		}
	}

	return &Store{
		client:        client,
		bucket:        cfg.Bucket,
		signerEmail:   cfg.SignerEmail,
		privateKey:    privateKey,
		uploadTimeout: withDefault(cfg.UploadTimeout, 2*time.Minute),
		deleteTimeout: withDefault(cfg.DeleteTimeout, 30*time.Second),
		logger:        logger.With().Str("component", "gcs_store").Str("bucket", cfg.Bucket).Logger(),
	}, nil
}

func clientOptions(cfg Config) []option.ClientOption {
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		return []option.ClientOption{option.WithEndpoint(endpoint), option.WithoutAuthentication()}
	}
	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", strings.TrimRight(host, "/"))
		return []option.ClientOption{option.WithoutAuthentication()}
	}

	opts := []option.ClientOption{option.WithScopes(gstorage.ScopeReadWrite)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	return opts
}

// Name identifies the store in logs, metrics and errors.
func (s *Store) Name() string {
	return "resource"
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Upload(ctx context.Context, input storage.UploadInput) (storage.Object, error) {
	if input.Reader == nil {
		return storage.Object{}, storage.NewError(storage.ErrUploadFailed, s.Name(), "", errors.New("empty reader"))
	}

	ctx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()

	key := storage.BuildKey(input.Prefix, input.Name)
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = input.MimeType
	if len(input.Metadata) > 0 {
		w.Metadata = input.Metadata
	}

	written, err := io.Copy(w, input.Reader)
	if err != nil {
		_ = w.Close()
		return storage.Object{}, storage.NewError(storage.ErrUploadFailed, s.Name(), key, err)
	}
	if err := w.Close(); err != nil {
		return storage.Object{}, storage.NewError(storage.ErrUploadFailed, s.Name(), key, err)
	}

	size := written
	if attrs := w.Attrs(); attrs != nil {
		size = attrs.Size
	}

	s.logger.Info().Str("key", key).Int64("size", size).Msg("object uploaded")

	return storage.Object{Key: key, Size: size}, nil
}

// SignedURL returns a V4 signed GET URL after confirming the object exists.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = storage.DefaultDownloadTTL
	}

	if _, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx); err != nil {
		if errors.Is(err, gstorage.ErrObjectNotExist) {
			return "", storage.NewError(storage.ErrSigningFailed, s.Name(), key, storage.ErrObjectNotFound)
		}
		return "", storage.NewError(storage.ErrSigningFailed, s.Name(), key, err)
	}

	url, err := s.client.Bucket(s.bucket).SignedURL(key, s.signOptions("GET", "", ttl))
	if err != nil {
		return "", storage.NewError(storage.ErrSigningFailed, s.Name(), key, err)
	}
	return url, nil
}

// SignedUploadURL returns a V4 signed PUT URL for direct client uploads.
func (s *Store) SignedUploadURL(_ context.Context, key, mimeType string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = storage.DefaultUploadTTL
	}

	url, err := s.client.Bucket(s.bucket).SignedURL(key, s.signOptions("PUT", mimeType, ttl))
	if err != nil {
		return "", storage.NewError(storage.ErrSigningFailed, s.Name(), key, err)
	}
	return url, nil
}

// Stat returns the stored size and content type of an object. A missing
// object is reported as storage.ErrObjectNotFound.
func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	attrs, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gstorage.ErrObjectNotExist) {
			return storage.ObjectInfo{}, storage.NewError(storage.ErrUploadFailed, s.Name(), key, storage.ErrObjectNotFound)
		}
		return storage.ObjectInfo{}, storage.NewError(storage.ErrUploadFailed, s.Name(), key, err)
	}
	return storage.ObjectInfo{Key: key, Size: attrs.Size, ContentType: attrs.ContentType}, nil
}

func (s *Store) signOptions(method, contentType string, ttl time.Duration) *gstorage.SignedURLOptions {
	opts := &gstorage.SignedURLOptions{
		Scheme:      gstorage.SigningSchemeV4,
		Method:      method,
		Expires:     time.Now().Add(ttl),
		ContentType: contentType,
	}
	if s.signerEmail != "" && len(s.privateKey) > 0 {
		opts.GoogleAccessID = s.signerEmail
		opts.PrivateKey = s.privateKey
	}
	return opts
}

// Delete removes the object. A missing object is reported as storage.ErrObjectNotFound.
func (s *Store) Delete(ctx context.Context, ref storage.ObjectRef) error {
	ctx, cancel := context.WithTimeout(ctx, s.deleteTimeout)
	defer cancel()

	if err := s.client.Bucket(s.bucket).Object(ref.Key).Delete(ctx); err != nil {
		if errors.Is(err, gstorage.ErrObjectNotExist) {
			return storage.NewError(storage.ErrDeleteFailed, s.Name(), ref.Key, storage.ErrObjectNotFound)
		}
		return storage.NewError(storage.ErrDeleteFailed, s.Name(), ref.Key, err)
	}
	return nil
}

func withDefault(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}
