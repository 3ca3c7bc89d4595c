// Package lock provides a best-effort distributed lock over redis, used to
// keep scheduled and manually triggered sweeps from piling up across
// replicas. Losing the lock early only costs a redundant sweep; the sweeper
// itself tolerates concurrent runs.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// Lease is a held lock. Release is safe after the TTL expired: the token
// check ensures a lease never deletes a lock another holder re-acquired.
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

// TryAcquire takes the lock without blocking. ok is false when another
// holder owns it.
func (l *Locker) TryAcquire(ctx context.Context, key string) (lease *Lease, ok bool, err error) {
	token, err := newToken()
	if err != nil {
		return nil, false, err
	}
	ok, err = l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return &Lease{client: l.client, key: key, token: token}, true, nil
}

func (l *Lease) Release(ctx context.Context) error {
	const script = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.token).Result()
	return err
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
