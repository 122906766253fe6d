package credential

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	encoded, err := Hash("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=65536,t=1,p=4$"))

	assert.True(t, Verify("correct horse", encoded))
	assert.False(t, Verify("wrong horse", encoded))
	assert.False(t, Verify("correct horse", "$bcrypt$whatever"))
	assert.False(t, Verify("correct horse", "$argon2id$v=19$m=x,t=1,p=4$a$b"))
}

func TestTokens(t *testing.T) {
	a, err := NewToken()
	require.NoError(t, err)
	b, err := NewToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
	assert.Equal(t, HashToken(a), HashToken(a))
	assert.Len(t, HashToken(a), 64)
}

func TestCheckStrength(t *testing.T) {
	assert.ErrorIs(t, CheckStrength("short"), ErrWeakPassword)
	assert.NoError(t, CheckStrength("long enough"))
}
