package crypto

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *PayloadService {
	t.Helper()
	km := NewKeyManager(filepath.Join(t.TempDir(), "test.key"))
	require.NoError(t, km.Initialize())
	return NewPayloadService(km)
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	ps := newTestService(t)

	input := map[string]any{
		"query":  "quarterly revenue",
		"depth":  float64(3),
		"nested": map[string]any{"region": "emea"},
	}

	payload, err := ps.EncryptInput(input)
	require.NoError(t, err)
	assert.Equal(t, PayloadVersion, payload.Version)
	assert.NotEmpty(t, payload.Recipient)
	assert.NotEmpty(t, payload.Ciphertext)
	assert.NotContains(t, payload.Ciphertext, "quarterly")

	got, err := ps.DecryptInput(payload)
	require.NoError(t, err)
	assert.Equal(t, input, got)
}

func TestDecryptRejectsForeignKey(t *testing.T) {
	ps := newTestService(t)
	other := newTestService(t)

	payload, err := ps.EncryptInput(map[string]any{"secret": "x"})
	require.NoError(t, err)

	_, err = other.DecryptInput(payload)
	assert.Error(t, err)
}

func TestDecryptNilPayload(t *testing.T) {
	ps := newTestService(t)
	_, err := ps.DecryptInput(nil)
	assert.Error(t, err)
}

func TestKeyManagerReloadsIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.key")

	km1 := NewKeyManager(path)
	require.NoError(t, km1.Initialize())

	km2 := NewKeyManager(path)
	require.NoError(t, km2.Initialize())

	assert.Equal(t, km1.PublicKey(), km2.PublicKey())
}
