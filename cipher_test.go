package securestore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testMaterial(t *testing.T, keyName string) *KeyMaterial {
	t.Helper()
	km, err := GenerateKeyMaterial(keyName)
	require.NoError(t, err)
	return km
}

func TestFieldCipher_RoundTrip(t *testing.T) {
	km := testMaterial(t, "k")
	c := NewFieldCipher()

	for _, plaintext := range []string{
		"",
		"short",
		"0xABCDEF1234567890",
		"unicode: héllo wörld ☂",
		strings.Repeat("a long repetitive plaintext ", 200),
	} {
		sealed, err := c.Seal(plaintext, km)
		require.NoError(t, err)
		require.True(t, IsSealed(sealed))

		opened, err := c.Open(sealed, km)
		require.NoError(t, err)
		require.Equal(t, plaintext, opened)
	}
}

func TestFieldCipher_SealIsNondeterministic(t *testing.T) {
	km := testMaterial(t, "k")
	c := NewFieldCipher()

	s1, err := c.Seal("same value", km)
	require.NoError(t, err)
	s2, err := c.Seal("same value", km)
	require.NoError(t, err)
	require.NotEqual(t, s1, s2, "sealed boxes use fresh ephemeral keys")
}

func TestFieldCipher_WrongKey(t *testing.T) {
	c := NewFieldCipher()
	sealed, err := c.Seal("secret", testMaterial(t, "k"))
	require.NoError(t, err)

	_, err = c.Open(sealed, testMaterial(t, "k"))
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestFieldCipher_OpenPlaintext(t *testing.T) {
	km := testMaterial(t, "k")
	c := NewFieldCipher()

	_, err := c.Open("just some plaintext", km)
	require.ErrorIs(t, err, ErrNotSealed)
}

func TestFieldCipher_MalformedEnvelope(t *testing.T) {
	km := testMaterial(t, "k")
	c := NewFieldCipher()

	_, err := c.Open("enc:v1:%%%not-base64%%%", km)
	require.ErrorIs(t, err, ErrInvalidFormat)

	_, err = c.Open("enc:v1:AAAA", km)
	require.ErrorIs(t, err, ErrInvalidFormat)
}

func TestFieldCipher_RejectsOversizedKeyName(t *testing.T) {
	// The envelope's single length byte cannot carry a longer name; sealing
	// must fail up front instead of writing a value that can never be opened.
	km := testMaterial(t, strings.Repeat("k", 300))
	c := NewFieldCipher()

	_, err := c.Seal("secret", km)
	require.ErrorIs(t, err, ErrInvalidKeyName)

	km.KeyName = ""
	_, err = c.Seal("secret", km)
	require.ErrorIs(t, err, ErrInvalidKeyName)

	km.KeyName = strings.Repeat("k", 255)
	sealed, err := c.Seal("secret", km)
	require.NoError(t, err)
	opened, err := c.Open(sealed, km)
	require.NoError(t, err)
	require.Equal(t, "secret", opened)
}

func TestFieldCipher_NoKeyMaterial(t *testing.T) {
	c := NewFieldCipher()
	_, err := c.Seal("x", nil)
	require.ErrorIs(t, err, ErrNoKeyMaterial)
	_, err = c.Open("enc:v1:AAAA", nil)
	require.ErrorIs(t, err, ErrNoKeyMaterial)
}

func TestFieldCipher_CompressionRoundTrip(t *testing.T) {
	km := testMaterial(t, "k")
	c := &FieldCipher{CompressThreshold: 64}

	plaintext := strings.Repeat("compressible payload ", 100)
	sealed, err := c.Seal(plaintext, km)
	require.NoError(t, err)
	// Sealed-box overhead is constant, so a compressed envelope must be
	// far smaller than the plaintext.
	require.Less(t, len(sealed), len(plaintext))

	opened, err := c.Open(sealed, km)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestIsSealed(t *testing.T) {
	require.True(t, IsSealed("enc:v1:abcd"))
	require.False(t, IsSealed("enc:v1:"))
	require.False(t, IsSealed("plaintext"))
	require.False(t, IsSealed(""))
}

func TestLooksEncrypted(t *testing.T) {
	require.True(t, LooksEncrypted("enc:v1:abcd"), "marker is authoritative")
	require.True(t, LooksEncrypted(strings.Repeat("Ab3+/", 8)))
	require.True(t, LooksEncrypted(strings.Repeat("x", 40)))
	require.False(t, LooksEncrypted(strings.Repeat("x", 39)))
	require.False(t, LooksEncrypted(strings.Repeat("x", 39)+"!"))
	require.False(t, LooksEncrypted("hello world this is zion"))
}
