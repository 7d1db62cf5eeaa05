package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestCallbackTokenBindsAttempt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens := &CallbackTokens{Secret: []byte("s3cret"), Now: fixedClock(now)}

	tok, err := tokens.Sign("log-1", "att-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, tokens.Verify(tok, "log-1", "att-1"))
	assert.ErrorIs(t, tokens.Verify(tok, "log-1", "att-2"), ErrTokenMismatch)

	other := &CallbackTokens{Secret: []byte("other"), Now: fixedClock(now)}
	assert.ErrorIs(t, other.Verify(tok, "log-1", "att-1"), ErrInvalidToken)

	tokens.Now = fixedClock(now.Add(2 * time.Minute))
	assert.ErrorIs(t, tokens.Verify(tok, "log-1", "att-1"), ErrInvalidToken)
}

func TestAccountTokenSubject(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens := &AccountTokens{Secret: []byte("k"), Now: fixedClock(now)}

	tok, err := tokens.Issue("acct-42", time.Hour)
	require.NoError(t, err)

	id, err := tokens.AccountID(tok)
	require.NoError(t, err)
	assert.Equal(t, "acct-42", id)

	// account tokens carry no callback audience
	cb := &CallbackTokens{Secret: []byte("k"), Now: fixedClock(now)}
	assert.ErrorIs(t, cb.Verify(tok, "log-1", "att-1"), ErrInvalidToken)
}
