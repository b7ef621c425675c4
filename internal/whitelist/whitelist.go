package whitelist

import (
	"context"
	"strconv"
	"time"
)

// Store — key-value хранилище с TTL. Реализации: Redis и память.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, key string) error
}

// Client хранит единственный действующий токен на пользователя под
// ключом whitelist:<userId>. Повторный Set вытесняет прежний токен:
// вход с другого устройства делает старую сессию недействительной.
type Client struct {
	store Store
	ttl   time.Duration
}

func NewClient(store Store, ttl time.Duration) *Client {
	if store == nil {
		return nil
	}
	return &Client{store: store, ttl: ttl}
}

func key(userID int64) string {
	return "whitelist:" + strconv.FormatInt(userID, 10)
}

func (c *Client) Set(ctx context.Context, userID int64, token string) error {
	return c.store.Set(ctx, key(userID), token, c.ttl)
}

func (c *Client) Get(ctx context.Context, userID int64) (string, bool, error) {
	return c.store.Get(ctx, key(userID))
}

func (c *Client) Delete(ctx context.Context, userID int64) error {
	return c.store.Del(ctx, key(userID))
}

// IsTokenCurrent сообщает, совпадает ли предъявленный токен с текущим.
// Отсутствие записи или несовпадение — не ошибка, просто false.
func (c *Client) IsTokenCurrent(ctx context.Context, userID int64, token string) (bool, error) {
	current, ok, err := c.store.Get(ctx, key(userID))
	if err != nil {
		return false, err
	}
	return ok && current == token, nil
}
