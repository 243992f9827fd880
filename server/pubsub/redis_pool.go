package pubsub

import (
	"strings"
	"time"

	"github.com/fleetdm/livequery/server/config"
	"github.com/gomodule/redigo/redis"
	"github.com/mna/redisc"
	"github.com/pkg/errors"
)

// pingAfter is how long an idle connection may sit in the pool before it is
// pinged on borrow.
const pingAfter = time.Minute

// standaloneRefreshErrors are the CLUSTER errors returned by servers that are
// not part of a cluster. GCP Memorystore rejects the command outright.
var standaloneRefreshErrors = []string{
	"ERR This instance has cluster support disabled",
	"ERR unknown command `CLUSTER`",
}

// NewRedisPool creates the connection pool shared by the redis frame store.
// Standalone servers and clusters are both supported.
func NewRedisPool(cfg config.RedisConfig) (*redisc.Cluster, error) {
	cluster := &redisc.Cluster{
		StartupNodes: []string{cfg.Address},
		CreatePool: func(addr string, _ ...redis.DialOption) (*redis.Pool, error) {
			return &redis.Pool{
				MaxIdle:      cfg.MaxIdleConns,
				IdleTimeout:  cfg.IdleTimeout,
				Dial:         func() (redis.Conn, error) { return dialRedis(cfg, addr) },
				TestOnBorrow: pingIdle,
			}, nil
		},
	}

	if err := cluster.Refresh(); err != nil && !isStandalone(err) {
		return nil, errors.Wrap(err, "refresh cluster")
	}
	return cluster, nil
}

// dialRedis opens one connection to addr. No read timeout is set: a
// subscribed connection can stay silent for the whole campaign.
func dialRedis(cfg config.RedisConfig, addr string) (redis.Conn, error) {
	conn, err := redis.Dial("tcp", addr,
		redis.DialDatabase(cfg.Database),
		redis.DialUseTLS(cfg.UseTLS),
		redis.DialConnectTimeout(cfg.ConnectTimeout),
		redis.DialKeepAlive(cfg.KeepAlive),
		redis.DialPassword(cfg.Password),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "dial redis %s", addr)
	}
	return conn, nil
}

func pingIdle(conn redis.Conn, lastUsed time.Time) error {
	if time.Since(lastUsed) < pingAfter {
		return nil
	}
	_, err := conn.Do("PING")
	return err
}

func isStandalone(err error) bool {
	for _, msg := range standaloneRefreshErrors {
		if strings.Contains(err.Error(), msg) {
			return true
		}
	}
	return false
}
