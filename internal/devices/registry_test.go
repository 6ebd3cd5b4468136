package devices

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/testutil"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidPushToken(t *testing.T) {
	tests := []struct {
		token string
		want  bool
	}{
		{"ExponentPushToken[xxxxxxxxxxxxxxxxxxxxxx]", true},
		{"ExpoPushToken[abc]", true},
		{"ExponentPushToken[abc", false},
		{"fcm:abc", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidPushToken(tt.token))
		})
	}
}

func TestRegistry(t *testing.T) {
	store := testutil.NewStore(t)
	clock := clockwork.NewFakeClockAt(testutil.T0)
	r := NewRegistry(store, clock)
	ctx := context.Background()

	d, err := r.Register(ctx, Registration{DeviceID: "phone-1", PushToken: "ExpoPushToken[1]", Platform: "Android"})
	require.NoError(t, err)
	assert.True(t, d.IsActive)
	assert.Equal(t, "android", d.Platform)

	_, err = r.Register(ctx, Registration{DeviceID: "phone-2", PushToken: "ExponentPushToken[2]", Platform: "ios"})
	require.NoError(t, err)

	require.NoError(t, r.Unregister(ctx, "phone-2"))
	tokens, err := store.ActivePushTokens(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ExpoPushToken[1]"}, tokens)

	stats, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceStats{Total: 2, Active: 1, Android: 1, IOS: 1}, stats)

	// Re-registering reactivates and refreshes the token.
	clock.Advance(time.Minute)
	_, err = r.Register(ctx, Registration{DeviceID: "phone-2", PushToken: "ExponentPushToken[2b]", Platform: "ios"})
	require.NoError(t, err)
	tokens, err = store.ActivePushTokens(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ExponentPushToken[2b]", "ExpoPushToken[1]"}, tokens)

	require.NoError(t, r.Heartbeat(ctx, "phone-1"))
	assert.ErrorIs(t, r.Heartbeat(ctx, "ghost"), domain.ErrNotFound)
	assert.ErrorIs(t, r.Unregister(ctx, "ghost"), domain.ErrNotFound)
}

func TestRegister_Validation(t *testing.T) {
	r := NewRegistry(testutil.NewStore(t), clockwork.NewFakeClockAt(testutil.T0))
	var verr *domain.ValidationError

	_, err := r.Register(context.Background(), Registration{PushToken: "ExpoPushToken[1]"})
	assert.ErrorAs(t, err, &verr)

	_, err = r.Register(context.Background(), Registration{DeviceID: "p", PushToken: "apns:1"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "expo_push_token", verr.Field)
}
