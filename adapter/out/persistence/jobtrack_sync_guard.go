package persistence

import (
	"context"
	"time"

	"jobtrack_server/core/port/out"
	"jobtrack_server/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const syncGuardKey = "sync:running:"

// releaseScript deletes the key only if it still holds our token, so a run
// that outlived its TTL cannot release a newer holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSyncGuard is a per-account SETNX lock with a TTL.
type RedisSyncGuard struct {
	client *redis.Client
}

func NewRedisSyncGuard(client *redis.Client) *RedisSyncGuard {
	return &RedisSyncGuard{client: client}
}

// Acquire takes the account lock for ttl.
func (g *RedisSyncGuard) Acquire(ctx context.Context, accountID uuid.UUID, ttl time.Duration) (func(), bool, error) {
	key := syncGuardKey + accountID.String()
	token := uuid.NewString()

	ok, err := g.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, g.client, []string{key}, token).Err(); err != nil {
			logger.Warn("[RedisSyncGuard.Release] account=%s: %v", accountID, err)
		}
	}
	return release, true, nil
}

var _ out.SyncGuard = (*RedisSyncGuard)(nil)
