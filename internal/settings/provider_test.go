package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/jmehdipour/subscribers/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	vals map[string]string
	err  error
}

func (m *mapStore) GetMany(_ context.Context, keys ...string) (map[string]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := map[string]string{}
	for _, k := range keys {
		if v, ok := m.vals[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *mapStore) SetMany(_ context.Context, values map[string]string) error {
	if m.err != nil {
		return m.err
	}
	for k, v := range values {
		m.vals[k] = v
	}
	return nil
}

func TestVerification_DefaultsWhenNothingStored(t *testing.T) {
	defaults := model.VerificationSettings{Enabled: true, SiteKey: "cfg-site", SecretKey: "cfg-secret"}
	p := NewProvider(&mapStore{vals: map[string]string{}}, defaults)

	got, err := p.Verification(context.Background())
	require.NoError(t, err)
	assert.Equal(t, defaults, got)
}

func TestVerification_StoredValuesWin(t *testing.T) {
	store := &mapStore{vals: map[string]string{
		KeyVerificationEnabled: "0",
		KeyVerificationSiteKey: "db-site",
	}}
	p := NewProvider(store, model.VerificationSettings{Enabled: true, SiteKey: "cfg-site", SecretKey: "cfg-secret"})

	got, err := p.Verification(context.Background())
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, "db-site", got.SiteKey)
	assert.Equal(t, "cfg-secret", got.SecretKey)
}

func TestSaveVerification_RoundTrip(t *testing.T) {
	store := &mapStore{vals: map[string]string{}}
	p := NewProvider(store, model.VerificationSettings{})

	want := model.VerificationSettings{Enabled: true, SiteKey: "site", SecretKey: "secret"}
	require.NoError(t, p.SaveVerification(context.Background(), model.VerificationSettings{
		Enabled: true, SiteKey: " site ", SecretKey: "secret",
	}))
	assert.Equal(t, "1", store.vals[KeyVerificationEnabled])

	got, err := p.Verification(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestVerification_StoreError(t *testing.T) {
	p := NewProvider(&mapStore{err: errors.New("db down")}, model.VerificationSettings{})
	_, err := p.Verification(context.Background())
	assert.Error(t, err)
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", " yes ", "on"} {
		assert.True(t, parseBool(v), v)
	}
	for _, v := range []string{"", "0", "false", "no", "maybe"} {
		assert.False(t, parseBool(v), v)
	}
}
