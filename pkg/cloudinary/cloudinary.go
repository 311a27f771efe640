package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/config"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-lms-api/pkg/storage"
)

const (
	rawResourceType = "raw"
	deliveryType    = api.Private
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	// APIEndpoint overrides the upload/admin API prefix, e.g. for a mock server.
	APIEndpoint   string
	UploadTimeout time.Duration
	DeleteTimeout time.Duration
}

// Store implements storage.Gateway for submission attachments. Assets are
// uploaded with the private delivery type, so the only way to fetch one is a
// signed download URL that expires.
type Store struct {
	client        *cloudinary.Cloudinary
	folder        string
	uploadTimeout time.Duration
	deleteTimeout time.Duration
	exists        func(ctx context.Context, publicID string) error
	now           func() time.Time
	logger        zerolog.Logger
}

// New constructs a Cloudinary backed store.
func New(cfg Config, logger zerolog.Logger) (*Store, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	conf, err := config.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}
	conf.URL.Secure = true
	if endpoint := strings.TrimRight(cfg.APIEndpoint, "/"); endpoint != "" {
		conf.API.UploadPrefix = endpoint
	}

	cld, err := cloudinary.NewFromConfiguration(*conf)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	store := &Store{
		client:        cld,
		folder:        strings.Trim(cfg.Folder, "/"),
		now:           time.Now,
		uploadTimeout: withDefault(cfg.UploadTimeout, 2*time.Minute),
		deleteTimeout: withDefault(cfg.DeleteTimeout, 30*time.Second),
		logger:        logger.With().Str("component", "cloudinary_store").Logger(),
	}
	store.exists = store.assetExists
	return store, nil
}

// Name identifies the store in logs, metrics and errors.
func (s *Store) Name() string {
	return "submission"
}

func (s *Store) Upload(ctx context.Context, input storage.UploadInput) (storage.Object, error) {
	if input.Reader == nil {
		return storage.Object{}, storage.NewError(storage.ErrUploadFailed, s.Name(), "", errors.New("empty reader"))
	}

	ctx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()

	folder := s.folder
	if prefix := strings.Trim(input.Prefix, "/"); prefix != "" {
		folder = strings.Trim(folder+"/"+prefix, "/")
	}

	params := uploader.UploadParams{
		Folder:       folder,
		PublicID:     buildPublicID(input.Name),
		ResourceType: rawResourceType,
		Type:         api.DeliveryType(deliveryType),
	}

	result, err := s.client.Upload.Upload(ctx, input.Reader, params)
	if err != nil {
		return storage.Object{}, storage.NewError(storage.ErrUploadFailed, s.Name(), params.PublicID, err)
	}
	if result.Error.Message != "" {
		return storage.Object{}, storage.NewError(storage.ErrUploadFailed, s.Name(), params.PublicID, errors.New(result.Error.Message))
	}

	size := int64(result.Bytes)
	if size == 0 {
		size = input.Size
	}

	s.logger.Info().Str("public_id", result.PublicID).Str("asset_id", result.AssetID).Msg("file uploaded to cloudinary")

	return storage.Object{Key: result.PublicID, ExternalID: result.AssetID, Size: size}, nil
}

// SignedURL returns a private download URL for the asset that Cloudinary
// rejects after ttl.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = storage.DefaultDownloadTTL
	}

	if err := s.exists(ctx, key); err != nil {
		return "", storage.NewError(storage.ErrSigningFailed, s.Name(), key, err)
	}

	link, err := s.privateDownloadURL(key, s.now().Add(ttl))
	if err != nil {
		return "", storage.NewError(storage.ErrSigningFailed, s.Name(), key, err)
	}
	return link, nil
}

// privateDownloadURL signs a raw/download request the same way the SDK signs
// upload API calls. expires_at is sent as unix seconds, which is what the
// download endpoint expects.
func (s *Store) privateDownloadURL(publicID string, expiresAt time.Time) (string, error) {
	cfg := s.client.Config

	params := url.Values{}
	params.Set("public_id", publicID)
	params.Set("type", deliveryType)
	params.Set("expires_at", strconv.FormatInt(expiresAt.Unix(), 10))
	params.Set("timestamp", strconv.FormatInt(s.now().Unix(), 10))

	signature, err := api.SignParametersUsingAlgoAndVersion(params, cfg.Cloud.APISecret,
		cfg.Cloud.GetSignatureAlgorithm(), cfg.Cloud.GetSignatureVersion())
	if err != nil {
		return "", err
	}
	params.Set("signature", signature)
	params.Set("api_key", cfg.Cloud.APIKey)

	endpoint := fmt.Sprintf("%s/%s/%s", api.BaseURL(cfg.API.UploadPrefix, ""), cfg.Cloud.CloudName,
		api.BuildPath(rawResourceType, "download"))
	return endpoint + "?" + params.Encode(), nil
}

// Delete destroys the raw asset. The asset id is logged for reconciliation.
func (s *Store) Delete(ctx context.Context, ref storage.ObjectRef) error {
	ctx, cancel := context.WithTimeout(ctx, s.deleteTimeout)
	defer cancel()

	result, err := s.client.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     ref.Key,
		Type:         deliveryType,
		ResourceType: rawResourceType,
		Invalidate:   api.Bool(true),
	})
	if err != nil {
		return storage.NewError(storage.ErrDeleteFailed, s.Name(), ref.Key, err)
	}
	if result.Error.Message != "" {
		return storage.NewError(storage.ErrDeleteFailed, s.Name(), ref.Key, errors.New(result.Error.Message))
	}

	switch result.Result {
	case "ok":
		s.logger.Info().Str("public_id", ref.Key).Str("asset_id", ref.ExternalID).Msg("file removed from cloudinary")
		return nil
	case "not found":
		return storage.NewError(storage.ErrDeleteFailed, s.Name(), ref.Key, storage.ErrObjectNotFound)
	default:
		return storage.NewError(storage.ErrDeleteFailed, s.Name(), ref.Key, fmt.Errorf("unexpected destroy result %q", result.Result))
	}
}

func (s *Store) assetExists(ctx context.Context, publicID string) error {
	result, err := s.client.Admin.Asset(ctx, admin.AssetParams{
		PublicID:     publicID,
		AssetType:    api.AssetType(rawResourceType),
		DeliveryType: api.DeliveryType(deliveryType),
	})
	if err != nil {
		return err
	}
	if msg := result.Error.Message; msg != "" {
		if strings.Contains(strings.ToLower(msg), "not found") {
			return storage.ErrObjectNotFound
		}
		return errors.New(msg)
	}
	return nil
}

// buildPublicID keeps the extension since raw assets are served by public id.
func buildPublicID(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	base := storage.SanitizeName(strings.TrimSuffix(name, filepath.Ext(name)))
	if base == "" {
		base = "upload"
	}

	return fmt.Sprintf("%s-%d%s", base, time.Now().UnixNano(), ext)
}

func withDefault(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}
