package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard rejects webhook deliveries whose signature has been seen before.
// Signatures cover the timestamped body, so a retransmission by the
// provider carries a new signature while an attacker replaying a captured
// request does not. Entries expire with the timestamp tolerance window.
type Guard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewGuard constructs the guard. A non-positive ttl falls back to ten
// minutes, comfortably past the default timestamp tolerance.
func NewGuard(client *redis.Client, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Guard{client: client, ttl: ttl}
}

// FirstSeen atomically records the signature and reports whether this is
// its first delivery.
func (g *Guard) FirstSeen(ctx context.Context, signature string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key(signature), 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("replay guard: %w", err)
	}
	return ok, nil
}

func (g *Guard) key(signature string) string {
	return "outreach:webhook:seen:" + signature
}
