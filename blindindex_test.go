package securestore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func testIndexer(t *testing.T) *BlindIndexer {
	t.Helper()
	km := testMaterial(t, "k")
	idx, err := NewBlindIndexer(km.TokenKey)
	require.NoError(t, err)
	return idx
}

func TestNewBlindIndexer_RequiresTokenKey(t *testing.T) {
	_, err := NewBlindIndexer(nil)
	require.ErrorIs(t, err, ErrNoTokenKey)
}

func TestSearchHash_Deterministic(t *testing.T) {
	idx := testIndexer(t)
	require.Equal(t, idx.SearchHash("alice@example.com"), idx.SearchHash("alice@example.com"))
}

func TestSearchHash_CaseFoldAndTrim(t *testing.T) {
	idx := testIndexer(t)
	h := idx.SearchHash("alice@example.com")
	require.Equal(t, h, idx.SearchHash("  Alice@Example.COM "))
	require.Equal(t, h, idx.SearchHash("ALICE@EXAMPLE.COM"))
	require.NotEqual(t, h, idx.SearchHash("bob@example.com"))
}

func TestSearchHash_MatchesKeyedHash(t *testing.T) {
	km := testMaterial(t, "k")
	idx, err := NewBlindIndexer(km.TokenKey)
	require.NoError(t, err)

	mac := hmac.New(sha256.New, km.TokenKey)
	mac.Write([]byte("0xabcdef1234567890"))
	want := hex.EncodeToString(mac.Sum(nil))

	require.Equal(t, want, idx.SearchHash("0xABCDEF1234567890"))
	require.Len(t, idx.SearchHash("anything"), 64)
}

func TestSearchHash_KeyDependent(t *testing.T) {
	idx1 := testIndexer(t)
	idx2 := testIndexer(t)
	require.NotEqual(t, idx1.SearchHash("v"), idx2.SearchHash("v"))
}

func TestKeywordTokens_ShortSourceSkipped(t *testing.T) {
	idx := testIndexer(t)
	require.Nil(t, idx.KeywordTokens("short str!")) // 10 chars, not indexed
	require.NotNil(t, idx.KeywordTokens("long enough"))
}

func TestKeywordTokens_WordFiltering(t *testing.T) {
	idx := testIndexer(t)
	tokens := idx.KeywordTokens("hello world this is zion")
	// "is" is filtered; hello, world, this, zion survive.
	require.Len(t, tokens, 4)
	for _, tok := range tokens {
		require.Len(t, tok, 64)
	}
}

func TestKeywordTokens_MatchSearchHashOfWord(t *testing.T) {
	idx := testIndexer(t)
	tokens := idx.KeywordTokens("Hello World this is zion")
	require.Contains(t, tokens, idx.SearchHash("hello"))
	require.Contains(t, tokens, idx.SearchHash("WORLD"))
	require.NotContains(t, tokens, idx.SearchHash("is"))
}

func TestNewBlindIndexer_CustomNormalizer(t *testing.T) {
	km := testMaterial(t, "k")

	phone, err := NewBlindIndexer(km.TokenKey, NormalizePhone)
	require.NoError(t, err)
	require.Equal(t, phone.SearchHash("+1 (555) 010-0199"), phone.SearchHash("15550100199"))

	exact, err := NewBlindIndexer(km.TokenKey, NormalizeNone)
	require.NoError(t, err)
	require.NotEqual(t, exact.SearchHash("Alice"), exact.SearchHash("alice"))
}
