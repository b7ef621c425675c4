package whitelist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTokenCurrent(t *testing.T) {
	tests := []struct {
		name  string
		setup func(ctx context.Context, c *Client)
		token string
		want  struct {
			current bool
		}
	}{
		{
			name: "stored token is current",
			setup: func(ctx context.Context, c *Client) {
				require.NoError(t, c.Set(ctx, 1, "tok1"))
			},
			token: "tok1",
			want: struct {
				current bool
			}{
				current: true,
			},
		},
		{
			name: "different token is not current",
			setup: func(ctx context.Context, c *Client) {
				require.NoError(t, c.Set(ctx, 1, "tok1"))
			},
			token: "tok2",
			want: struct {
				current bool
			}{
				current: false,
			},
		},
		{
			name:  "no entry means not current",
			setup: func(ctx context.Context, c *Client) {},
			token: "tok1",
			want: struct {
				current bool
			}{
				current: false,
			},
		},
		{
			name: "deleted entry is not current",
			setup: func(ctx context.Context, c *Client) {
				require.NoError(t, c.Set(ctx, 1, "tok1"))
				require.NoError(t, c.Delete(ctx, 1))
			},
			token: "tok1",
			want: struct {
				current bool
			}{
				current: false,
			},
		},
		{
			name: "login elsewhere replaces the token",
			setup: func(ctx context.Context, c *Client) {
				require.NoError(t, c.Set(ctx, 1, "tok1"))
				require.NoError(t, c.Set(ctx, 1, "tok2"))
			},
			token: "tok1",
			want: struct {
				current bool
			}{
				current: false,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			client := NewClient(NewMemoryStore(), 2*time.Hour)
			tt.setup(ctx, client)

			current, err := client.IsTokenCurrent(ctx, 1, tt.token)

			require.NoError(t, err)
			assert.Equal(t, tt.want.current, current)
		})
	}
}

func TestEntryExpires(t *testing.T) {
	ctx := context.Background()
	client := NewClient(NewMemoryStore(), 10*time.Millisecond)

	require.NoError(t, client.Set(ctx, 1, "tok1"))
	time.Sleep(25 * time.Millisecond)

	current, err := client.IsTokenCurrent(ctx, 1, "tok1")
	require.NoError(t, err)
	assert.False(t, current, "запись должна истечь по TTL")

	_, ok, err := client.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEntriesAreScopedPerUser(t *testing.T) {
	ctx := context.Background()
	client := NewClient(NewMemoryStore(), 2*time.Hour)

	require.NoError(t, client.Set(ctx, 1, "tok1"))
	require.NoError(t, client.Set(ctx, 2, "tok2"))
	require.NoError(t, client.Delete(ctx, 1))

	current, err := client.IsTokenCurrent(ctx, 2, "tok2")
	require.NoError(t, err)
	assert.True(t, current, "удаление записи одного пользователя не задевает других")
}

func TestNewClientNilStore(t *testing.T) {
	assert.Nil(t, NewClient(nil, time.Hour))
}
