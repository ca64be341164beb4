package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	tg := NewTokenGenerator()

	token, hash, err := tg.GenerateToken()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, TokenPrefix))
	assert.NoError(t, tg.ValidateTokenFormat(token))
	assert.Equal(t, tg.HashToken(token), hash)
	assert.Len(t, hash, 64, "hex-encoded sha256")

	// tokens are unique
	token2, hash2, err := tg.GenerateToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)
	assert.NotEqual(t, hash, hash2)
}

func TestValidateTokenFormat(t *testing.T) {
	tg := NewTokenGenerator()

	tests := []struct {
		name  string
		token string
		ok    bool
	}{
		{"valid", "wdn_QUJDREVGR0hJSktMTU5PUA", true},
		{"wrong prefix", "spk_QUJDREVGR0hJSktMTU5PUA", false},
		{"no prefix", "QUJDREVGR0hJSktMTU5PUA", false},
		{"prefix only", "wdn_", false},
		{"bad base64url", "wdn_!!!not-base64!!!", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tg.ValidateTokenFormat(tt.token)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestExtractPrefix(t *testing.T) {
	tg := NewTokenGenerator()

	token, _, err := tg.GenerateToken()
	require.NoError(t, err)

	prefix := tg.ExtractPrefix(token)
	assert.True(t, strings.HasPrefix(token, prefix))
	assert.Len(t, prefix, len(TokenPrefix)+8)

	assert.Empty(t, tg.ExtractPrefix("garbage"))
}
