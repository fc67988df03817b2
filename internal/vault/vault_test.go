package vault

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore map[string][]byte

func (m memStore) Sealed(_ context.Context, userID, provider string) ([]byte, error) {
	v, ok := m[userID+"/"+provider]
	if !ok {
		return nil, domain.ErrCredentialMissing
	}
	return v, nil
}

func (m memStore) PutSealed(_ context.Context, userID, provider string, sealed []byte) error {
	m[userID+"/"+provider] = sealed
	return nil
}

func testKey(b byte) string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Repeat(string(b), keySize)))
}

func TestVault_RoundTrip(t *testing.T) {
	store := memStore{}
	v, err := New(store, testKey('k'))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, v.PutCredential(ctx, "u1", domain.ProviderEmail, "re_live_123"))
	assert.NotContains(t, string(store["u1/email"]), "re_live_123")

	got, err := v.Credential(ctx, "u1", domain.ProviderEmail)
	require.NoError(t, err)
	assert.Equal(t, "re_live_123", got)
}

func TestVault_Missing(t *testing.T) {
	v, err := New(memStore{}, testKey('k'))
	require.NoError(t, err)

	_, err = v.Credential(context.Background(), "u1", domain.ProviderEmail)
	assert.ErrorIs(t, err, domain.ErrCredentialMissing)
}

func TestVault_WrongKey(t *testing.T) {
	store := memStore{}
	v1, err := New(store, testKey('a'))
	require.NoError(t, err)
	require.NoError(t, v1.PutCredential(context.Background(), "u1", "email", "secret"))

	v2, err := New(store, testKey('b'))
	require.NoError(t, err)
	_, err = v2.Credential(context.Background(), "u1", "email")
	assert.ErrorIs(t, err, ErrUnsealFailed)

	_, err = v2.Open([]byte("short"))
	assert.ErrorIs(t, err, ErrUnsealFailed)
}

func TestNew_InvalidKey(t *testing.T) {
	_, err := New(memStore{}, "not base64!")
	assert.Error(t, err)

	_, err = New(memStore{}, base64.StdEncoding.EncodeToString([]byte("too short")))
	assert.Error(t, err)
}
