package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Reads already skip expired entries, so the sweep is observable only
// through the maps themselves.
func TestTokenBlacklist_SweepDropsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	b := NewTokenBlacklist()

	require.NoError(t, b.Revoke(ctx, "jti-live", time.Hour))
	require.NoError(t, b.Revoke(ctx, "jti-dead", time.Millisecond))
	require.NoError(t, b.RevokeSubject(ctx, "sub-live", time.Hour))
	require.NoError(t, b.RevokeSubject(ctx, "sub-dead", time.Millisecond))

	b.Sweep(time.Now().Add(time.Minute))

	assert.Len(t, b.revoked, 1)
	assert.Contains(t, b.revoked, "jti-live")
	assert.Len(t, b.subjects, 1)
	assert.Contains(t, b.subjects, "sub-live")
}
