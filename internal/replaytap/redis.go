// internal/replaytap/redis.go
// Redis-backed Tap for multi-instance control-plane deployments where
// several processes should share one recent-traffic window. Adapted from
// internal/gateway/retention.redisStore: a capped list per namespace with
// TTL set to the retention duration, fire-and-forget writes.
package replaytap

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Voskan/flarego/internal/logging"
	"github.com/Voskan/flarego/internal/wire"
	"github.com/redis/go-redis/v9"
)

const redisKey = "flarego:wire_frames"

type redisTap struct {
	cli          *redis.Client
	retentionDur time.Duration
	maxLen       int64
}

// NewRedis returns a Tap backed by Redis. framesPerSecond estimates push
// rate and determines list trimming length, mirroring the teacher's
// writesPerSecond parameter.
func NewRedis(cli *redis.Client, retention time.Duration, framesPerSecond int) Tap {
	if retention < time.Second {
		retention = time.Second
	}
	if framesPerSecond <= 0 {
		framesPerSecond = 10
	}
	maxLen := int64(retention.Seconds()*float64(framesPerSecond)) + 100
	return &redisTap{cli: cli, retentionDur: retention, maxLen: maxLen}
}

func (r *redisTap) Write(env wire.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx := context.Background()
	pipe := r.cli.Pipeline()
	pipe.LPush(ctx, redisKey, b)
	pipe.LTrim(ctx, redisKey, 0, r.maxLen)
	pipe.Expire(ctx, redisKey, r.retentionDur)
	if _, err := pipe.Exec(ctx); err != nil {
		logging.Sugar().Warnw("replaytap: redis write failed", "err", err)
	}
	return nil
}

func (r *redisTap) ReadAll() []wire.Envelope {
	ctx := context.Background()
	vals, err := r.cli.LRange(ctx, redisKey, 0, -1).Result()
	if err != nil {
		logging.Sugar().Warnw("replaytap: redis read failed", "err", err)
		return nil
	}
	n := len(vals)
	out := make([]wire.Envelope, 0, n)
	for i := n - 1; i >= 0; i-- {
		var env wire.Envelope
		if json.Unmarshal([]byte(vals[i]), &env) == nil {
			out = append(out, env)
		}
	}
	return out
}
