package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/custody/internal/ledger"
)

const reservationPrefix = "reservation:v1:"

// releaseScript deletes a hold only while it still belongs to the releasing flow.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisReserver keeps holds in Redis so they survive restarts and expire after
// ttl if a flow never releases them.
type RedisReserver struct {
	client *redis.Client
	party  string
	ttl    time.Duration
}

// NewRedis builds a Reserver scoped to party.
func NewRedis(client *redis.Client, party string, ttl time.Duration) *RedisReserver {
	return &RedisReserver{client: client, party: party, ttl: ttl}
}

func (r *RedisReserver) refKey(ref ledger.StateRef) string {
	return fmt.Sprintf("%s%s:ref:%s:%d", reservationPrefix, r.party, ref.TxID, ref.Index)
}

func (r *RedisReserver) flowKey(flowID string) string {
	return reservationPrefix + r.party + ":flow:" + flowID
}

func (r *RedisReserver) Reserve(ctx context.Context, flowID string, refs []ledger.StateRef) ([]ledger.StateRef, error) {
	var contended []ledger.StateRef
	for _, ref := range refs {
		key := r.refKey(ref)
		ok, err := r.client.SetNX(ctx, key, flowID, r.ttl).Result()
		if err != nil {
			return nil, err
		}
		if !ok {
			holder, err := r.client.Get(ctx, key).Result()
			switch {
			case errors.Is(err, redis.Nil):
				// expired between SETNX and GET; take it
				if err := r.client.Set(ctx, key, flowID, r.ttl).Err(); err != nil {
					return nil, err
				}
			case err != nil:
				return nil, err
			case holder != flowID:
				contended = append(contended, ref)
				continue
			}
		}
		if err := r.client.SAdd(ctx, r.flowKey(flowID), key).Err(); err != nil {
			return nil, err
		}
	}
	if err := r.client.Expire(ctx, r.flowKey(flowID), r.ttl).Err(); err != nil {
		return nil, err
	}
	return contended, nil
}

func (r *RedisReserver) Release(ctx context.Context, flowID string) error {
	keys, err := r.client.SMembers(ctx, r.flowKey(flowID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	for _, key := range keys {
		if err := releaseScript.Run(ctx, r.client, []string{key}, flowID).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
	}
	return r.client.Del(ctx, r.flowKey(flowID)).Err()
}
