package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetdm/livequery/server/fleet"
	"github.com/fleetdm/livequery/server/websocket"
	"github.com/gomodule/redigo/redis"
	"github.com/mna/redisc"
	"github.com/pkg/errors"
)

// mirrorChannel receives a copy of every delivered frame when mirroring is
// enabled (redis.duplicate_results).
const mirrorChannel = "LQDuplicate"

// receiveTimeout bounds a single blocking receive so that a connection to an
// unresponsive server is eventually released.
const receiveTimeout = time.Hour

type redisFrames struct {
	pool   *redisc.Cluster
	mirror bool
}

var _ fleet.FrameStore = &redisFrames{}

// NewRedisFrames returns a FrameStore that fans frames out through redis
// PUBLISH/SUBSCRIBE, one channel per campaign.
func NewRedisFrames(pool *redisc.Cluster, mirror bool) *redisFrames {
	return &redisFrames{pool: pool, mirror: mirror}
}

func campaignChannel(campaignID uint) string {
	return fmt.Sprintf("campaign_frames_%d", campaignID)
}

func (r *redisFrames) WriteFrame(campaignID uint, frame fleet.Frame) error {
	payload, err := json.Marshal(websocket.EncodeFrame(frame))
	if err != nil {
		return errors.Wrap(err, "encode frame")
	}

	conn := r.pool.Get()
	defer conn.Close()

	channel := campaignChannel(campaignID)
	receivers, err := publish(conn, channel, payload)
	if err != nil {
		return err
	}
	if receivers == 0 {
		return noSubscriberError{Channel: channel}
	}
	if r.mirror {
		// best effort
		_, _ = publish(conn, mirrorChannel, payload)
	}
	return nil
}

func publish(conn redis.Conn, channel string, payload []byte) (int, error) {
	n, err := redis.Int(conn.Do("PUBLISH", channel, payload))
	if err != nil {
		return 0, errors.Wrapf(err, "publish to %s", channel)
	}
	return n, nil
}

func (r *redisFrames) ReadChannel(ctx context.Context, campaignID uint) (<-chan interface{}, error) {
	channel := campaignChannel(campaignID)
	psc := &redis.PubSubConn{Conn: r.pool.Get()}
	if err := psc.Subscribe(channel); err != nil {
		_ = psc.Close()
		return nil, errors.Wrapf(err, "subscribe to %s", channel)
	}

	received := make(chan interface{})
	go receive(ctx, psc, received)

	out := make(chan interface{})
	go func() {
		defer close(out)
		// receive owns the connection and closes it once the unsubscribe
		// is acknowledged; Close must not race with Receive.
		defer psc.Unsubscribe(channel) //nolint:errcheck

		for {
			select {
			case msg, ok := <-received:
				if !ok {
					writeOrDone(ctx, out, errors.New("redis subscription ended unexpectedly"))
					return
				}
				item, forward := decodeRedisMessage(msg)
				if forward && writeOrDone(ctx, out, item) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// receive pumps the subscription into received until the connection fails,
// every channel is unsubscribed, or ctx is done.
func receive(ctx context.Context, psc *redis.PubSubConn, received chan<- interface{}) {
	defer close(received)
	defer psc.Close()

	for {
		msg := psc.ReceiveWithTimeout(receiveTimeout)
		if writeOrDone(ctx, received, msg) {
			return
		}
		switch msg := msg.(type) {
		case error:
			return
		case redis.Subscription:
			if msg.Count == 0 {
				return
			}
		}
	}
}

// decodeRedisMessage turns a pub/sub message into a stream element. forward
// is false for subscription bookkeeping messages.
func decodeRedisMessage(msg interface{}) (item interface{}, forward bool) {
	switch msg := msg.(type) {
	case redis.Message:
		frame, err := websocket.ParseFrame(msg.Data)
		if err != nil {
			return errors.Wrap(err, "decode frame"), true
		}
		return frame, true
	case error:
		return errors.Wrap(msg, "read from redis"), true
	default:
		return nil, false
	}
}

func (r *redisFrames) HealthCheck() error {
	conn := r.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("PING"); err != nil {
		return errors.Wrap(err, "ping redis")
	}
	return nil
}
