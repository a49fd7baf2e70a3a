package utils

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCredentialRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i * 3)
	}
	t.Setenv("CROSSPOST_ENC_KEY", base64.StdEncoding.EncodeToString(key))

	sealed, err := EncryptCredential("EAABpage-token-secret")
	require.NoError(t, err)
	require.NotEqual(t, "EAABpage-token-secret", sealed)

	plain, err := DecryptCredential(sealed)
	require.NoError(t, err)
	require.Equal(t, "EAABpage-token-secret", plain)

	// Each encryption uses a fresh nonce.
	sealedAgain, err := EncryptCredential("EAABpage-token-secret")
	require.NoError(t, err)
	require.NotEqual(t, sealed, sealedAgain)
}

func TestCredentialKeyValidation(t *testing.T) {
	t.Setenv("CROSSPOST_ENC_KEY", "")
	_, err := EncryptCredential("secret")
	require.Error(t, err)

	t.Setenv("CROSSPOST_ENC_KEY", base64.StdEncoding.EncodeToString([]byte("short")))
	_, err = EncryptCredential("secret")
	require.Error(t, err)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	key := make([]byte, 32)
	t.Setenv("CROSSPOST_ENC_KEY", base64.StdEncoding.EncodeToString(key))

	sealed, err := EncryptCredential("secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff

	_, err = DecryptCredential(base64.StdEncoding.EncodeToString(raw))
	require.Error(t, err)
}
