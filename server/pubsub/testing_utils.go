package pubsub

import (
	"os"
	"testing"
	"time"

	"github.com/fleetdm/livequery/server/config"
	"github.com/stretchr/testify/require"
)

// SetupRedisForTest returns a redis backed FrameStore connected to the local
// test redis. The test is skipped unless REDIS_TEST is set.
func SetupRedisForTest(t testing.TB) *redisFrames {
	if _, ok := os.LookupEnv("REDIS_TEST"); !ok {
		t.Skip("set REDIS_TEST environment variable to run redis-based tests")
	}

	cfg := config.TestConfig().Redis
	cfg.ConnectTimeout = 5 * time.Second
	pool, err := NewRedisPool(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	conn := pool.Get()
	defer conn.Close()
	_, err = conn.Do("PING")
	require.NoError(t, err)

	return NewRedisFrames(pool, false)
}
