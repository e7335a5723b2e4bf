// Package settings resolves runtime settings: values saved by an operator win
// over the defaults loaded from config.
package settings

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmehdipour/subscribers/internal/model"
)

const (
	KeyVerificationEnabled   = "verification_enabled"
	KeyVerificationSiteKey   = "verification_site_key"
	KeyVerificationSecretKey = "verification_secret_key"
)

// Store is the persistence the provider needs; repository.SettingsRepository satisfies it.
type Store interface {
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)
	SetMany(ctx context.Context, values map[string]string) error
}

type Provider struct {
	store    Store
	defaults model.VerificationSettings
}

func NewProvider(store Store, defaults model.VerificationSettings) *Provider {
	return &Provider{store: store, defaults: defaults}
}

func (p *Provider) Verification(ctx context.Context) (model.VerificationSettings, error) {
	vals, err := p.store.GetMany(ctx, KeyVerificationEnabled, KeyVerificationSiteKey, KeyVerificationSecretKey)
	if err != nil {
		return model.VerificationSettings{}, fmt.Errorf("load verification settings: %w", err)
	}

	out := p.defaults
	if v, ok := vals[KeyVerificationEnabled]; ok {
		out.Enabled = parseBool(v)
	}
	if v, ok := vals[KeyVerificationSiteKey]; ok {
		out.SiteKey = v
	}
	if v, ok := vals[KeyVerificationSecretKey]; ok {
		out.SecretKey = v
	}
	return out, nil
}

func (p *Provider) SaveVerification(ctx context.Context, s model.VerificationSettings) error {
	enabled := "0"
	if s.Enabled {
		enabled = "1"
	}
	err := p.store.SetMany(ctx, map[string]string{
		KeyVerificationEnabled:   enabled,
		KeyVerificationSiteKey:   strings.TrimSpace(s.SiteKey),
		KeyVerificationSecretKey: strings.TrimSpace(s.SecretKey),
	})
	if err != nil {
		return fmt.Errorf("save verification settings: %w", err)
	}
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
