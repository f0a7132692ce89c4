package catalog

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

// LocalAccessor maps storage keys to paths under a base URL. No signing, no
// expiry. Intended for development setups serving media from disk.
type LocalAccessor struct {
	baseURL string
}

// LocalConfig holds local accessor settings.
type LocalConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
}

// NewLocalAccessor creates a local accessor.
func NewLocalAccessor(cfg LocalConfig) *LocalAccessor {
	return &LocalAccessor{baseURL: strings.TrimRight(cfg.BaseURL, "/")}
}

// ResolvePlayableURL joins the key onto the base URL.
func (a *LocalAccessor) ResolvePlayableURL(ctx context.Context, storageKey string) (string, error) {
	if storageKey == "" {
		return "", errors.New("empty storage key")
	}
	return a.baseURL + "/" + strings.TrimLeft(storageKey, "/"), nil
}

// ResolveCoverURL joins the key onto the base URL.
func (a *LocalAccessor) ResolveCoverURL(ctx context.Context, storageKey string) (string, bool) {
	if storageKey == "" {
		return "", false
	}
	return a.baseURL + "/" + strings.TrimLeft(storageKey, "/"), true
}
