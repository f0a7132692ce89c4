package catalog

import (
	"context"
	"time"

	"cloud.google.com/go/storage"
	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// GCSAccessor resolves storage keys to V4 signed GCS URLs. Signed URLs are
// cached and reused until shortly before they expire.
type GCSAccessor struct {
	client       *storage.Client
	bucket       string
	objectPrefix string
	urlTTL       time.Duration

	cache *lru.Cache[string, cachedURL]
	now   func() time.Time
}

type cachedURL struct {
	url       string
	freshUpTo time.Time
}

// GCSConfig holds GCS accessor settings.
type GCSConfig struct {
	Bucket          string `mapstructure:"bucket" validate:"required"`
	ObjectPrefix    string `mapstructure:"object_prefix"`
	CredentialsFile string `mapstructure:"credentials_file"`
	URLTTLMinutes   int    `mapstructure:"url_ttl_minutes" default:"15" validate:"gte=1,lte=10080"`
	CacheSize       int    `mapstructure:"cache_size" default:"512" validate:"gte=1"`
}

// NewGCSAccessor creates a GCS-backed accessor.
func NewGCSAccessor(ctx context.Context, cfg GCSConfig) (*GCSAccessor, error) {
	var client *storage.Client
	var err error

	if cfg.CredentialsFile != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(cfg.CredentialsFile))
	} else {
		// Application default credentials
		client, err = storage.NewClient(ctx)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GCS client")
	}

	cache, err := lru.New[string, cachedURL](cfg.CacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create URL cache")
	}

	return &GCSAccessor{
		client:       client,
		bucket:       cfg.Bucket,
		objectPrefix: cfg.ObjectPrefix,
		urlTTL:       time.Duration(cfg.URLTTLMinutes) * time.Minute,
		cache:        cache,
		now:          time.Now,
	}, nil
}

// ResolvePlayableURL returns a signed GET URL for the audio object.
func (a *GCSAccessor) ResolvePlayableURL(ctx context.Context, storageKey string) (string, error) {
	if storageKey == "" {
		return "", errors.New("empty storage key")
	}
	return a.signedURL(storageKey)
}

// ResolveCoverURL returns a signed GET URL for the cover object.
func (a *GCSAccessor) ResolveCoverURL(ctx context.Context, storageKey string) (string, bool) {
	if storageKey == "" {
		return "", false
	}
	url, err := a.signedURL(storageKey)
	if err != nil {
		zlog.Warn().Msgf("catalog: failed to sign cover URL: key=%s: %v", storageKey, err)
		return "", false
	}
	return url, true
}

func (a *GCSAccessor) signedURL(storageKey string) (string, error) {
	objectName := storageKey
	if a.objectPrefix != "" {
		objectName = a.objectPrefix + "/" + storageKey
	}

	if entry, ok := a.cache.Get(objectName); ok && a.now().Before(entry.freshUpTo) {
		return entry.url, nil
	}

	url, err := a.client.Bucket(a.bucket).SignedURL(objectName, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: a.now().Add(a.urlTTL),
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to sign URL for %s", objectName)
	}

	// Keep cached URLs only while a client starting playback now would still
	// have most of the TTL left.
	a.cache.Add(objectName, cachedURL{
		url:       url,
		freshUpTo: a.now().Add(a.urlTTL * 8 / 10),
	})
	return url, nil
}
