package fieldcrypt

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCipher(t *testing.T, secret string) *Cipher {
	t.Helper()
	c, err := New(secret, false)
	require.NoError(t, err)
	return c
}

func TestEncryptRoundTrip(t *testing.T) {
	c := newCipher(t, "test-secret")

	for _, plaintext := range []string{
		"Hypertension suspected. Recheck blood pressure in 2 weeks.",
		"고혈압 의심 소견. 2주 후 재검 필요.",
		strings.Repeat("x", 16),
		"a",
	} {
		envelope, err := c.Encrypt(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, envelope)
		assert.True(t, LooksEncrypted(envelope), "envelope %q", envelope)
		assert.Equal(t, plaintext, c.SafeDecrypt(envelope))

		decrypted, err := c.Decrypt(envelope)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	c := newCipher(t, "test-secret")

	first, err := c.Encrypt("same text")
	require.NoError(t, err)
	second, err := c.Encrypt("same text")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestEnvelopeShape(t *testing.T) {
	c := newCipher(t, "test-secret")

	envelope, err := c.Encrypt("summary")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(envelope)
	require.NoError(t, err)

	parts := strings.Split(string(raw), ":")
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], 32)
	assert.Len(t, parts[1], 32)
}

func TestEncryptEmptyStaysEmpty(t *testing.T) {
	c := newCipher(t, "test-secret")

	envelope, err := c.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, envelope)
	assert.Empty(t, c.SafeDecrypt(""))
}

func TestSafeDecryptPassesLegacyPlaintext(t *testing.T) {
	c := newCipher(t, "test-secret")

	for _, legacy := range []string{
		"Prescription analysis complete",
		"abc:def",
		"YWJjOmRlZg==",
		base64.StdEncoding.EncodeToString([]byte("00112233445566778899aabbccddeeff")),
		"고혈압 의심",
	} {
		assert.False(t, LooksEncrypted(legacy), "value %q", legacy)
		assert.Equal(t, legacy, c.SafeDecrypt(legacy))
	}
}

func TestSafeDecryptReturnsValueOnFailure(t *testing.T) {
	writer := newCipher(t, "writer-secret")
	reader := newCipher(t, "reader-secret")

	envelope, err := writer.Encrypt("secret text")
	require.NoError(t, err)
	assert.NotEqual(t, "secret text", reader.SafeDecrypt(envelope))

	truncated := base64.StdEncoding.EncodeToString([]byte("00112233445566778899aabbccddeeff:abcd"))
	require.True(t, LooksEncrypted(truncated))
	assert.Equal(t, truncated, writer.SafeDecrypt(truncated))

	_, err = writer.Decrypt(truncated)
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestNewWithoutSecret(t *testing.T) {
	c, err := New("", false)
	require.NoError(t, err)
	assert.True(t, c.UsesDevelopmentKey())

	_, err = New("", true)
	assert.Error(t, err)

	configured := newCipher(t, DevelopmentSecret)
	assert.False(t, configured.UsesDevelopmentKey())
	envelope, err := c.Encrypt("shared")
	require.NoError(t, err)
	assert.Equal(t, "shared", configured.SafeDecrypt(envelope))
}

func TestSealBytesRoundTrip(t *testing.T) {
	c := newCipher(t, "test-secret")
	data := []byte("%PDF-1.4 fake document body")

	sealed, err := c.SealBytes(data)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "%PDF")

	opened, err := c.OpenBytes(sealed)
	require.NoError(t, err)
	assert.Equal(t, data, opened)

	_, err = c.OpenBytes(sealed[:10])
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}
