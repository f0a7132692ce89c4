package catalog

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
)

// NewFromConfig creates an accessor from a provider type and its settings map.
func NewFromConfig(ctx context.Context, providerType string, settings map[string]any) (Accessor, error) {
	switch providerType {
	case "gcs":
		var cfg GCSConfig
		if err := decodeSettings(settings, &cfg); err != nil {
			return nil, err
		}
		zlog.Info().Msgf("catalog: using GCS accessor: bucket=%s prefix=%s ttl=%dm", cfg.Bucket, cfg.ObjectPrefix, cfg.URLTTLMinutes)
		return NewGCSAccessor(ctx, cfg)

	case "local":
		var cfg LocalConfig
		if err := decodeSettings(settings, &cfg); err != nil {
			return nil, err
		}
		zlog.Info().Msgf("catalog: using local accessor: base_url=%s", cfg.BaseURL)
		return NewLocalAccessor(cfg), nil

	default:
		return nil, errors.Newf("unsupported catalog provider type: %s", providerType)
	}
}

func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.Decode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "settings validation failed")
	}
	return nil
}
