package pubsub

import (
	"github.com/fleetdm/livequery/server/config"
	"github.com/fleetdm/livequery/server/fleet"
	"github.com/pkg/errors"
)

const (
	BackendInmem = "inmem"
	BackendRedis = "redis"
)

// NewFrameStore returns the FrameStore selected by the pubsub configuration.
func NewFrameStore(pubsubConfig config.PubSubConfig, redisConfig config.RedisConfig) (fleet.FrameStore, error) {
	switch pubsubConfig.Backend {
	case BackendInmem, "":
		return NewInmemFrames(), nil
	case BackendRedis:
		pool, err := NewRedisPool(redisConfig)
		if err != nil {
			return nil, errors.Wrap(err, "initialize redis pool")
		}
		return NewRedisFrames(pool, redisConfig.DuplicateResults), nil
	default:
		return nil, errors.Errorf("unknown pubsub backend %q", pubsubConfig.Backend)
	}
}
