package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/fleetdm/livequery/server/fleet"
)

// subscriptionBuffer is the number of frames that may be queued for a slow
// reader before writers start blocking on it.
const subscriptionBuffer = 64

type inmemSubscription struct {
	in  chan interface{}
	ctx context.Context
}

type inmemFrames struct {
	subscriptions map[uint]map[*inmemSubscription]struct{}
	mu            sync.Mutex
}

var _ fleet.FrameStore = &inmemFrames{}

// NewInmemFrames initializes a new in-memory implementation of the
// FrameStore interface. Every reader of a campaign receives every frame
// written after it subscribed, in write order.
func NewInmemFrames() *inmemFrames {
	return &inmemFrames{subscriptions: map[uint]map[*inmemSubscription]struct{}{}}
}

func (im *inmemFrames) subscribers(id uint) []*inmemSubscription {
	im.mu.Lock()
	defer im.mu.Unlock()

	subs := make([]*inmemSubscription, 0, len(im.subscriptions[id]))
	for s := range im.subscriptions[id] {
		subs = append(subs, s)
	}
	return subs
}

func (im *inmemFrames) WriteFrame(campaignID uint, frame fleet.Frame) error {
	subs := im.subscribers(campaignID)
	delivered := 0
	for _, s := range subs {
		select {
		case s.in <- frame:
			delivered++
		case <-s.ctx.Done():
			// reader went away while we were writing
		}
	}
	if delivered == 0 {
		return noSubscriberError{fmt.Sprint(campaignID)}
	}
	return nil
}

func (im *inmemFrames) ReadChannel(ctx context.Context, campaignID uint) (<-chan interface{}, error) {
	sub := &inmemSubscription{in: make(chan interface{}, subscriptionBuffer), ctx: ctx}
	out := make(chan interface{})

	im.mu.Lock()
	if im.subscriptions[campaignID] == nil {
		im.subscriptions[campaignID] = map[*inmemSubscription]struct{}{}
	}
	im.subscriptions[campaignID][sub] = struct{}{}
	im.mu.Unlock()

	go func() {
		defer func() {
			im.mu.Lock()
			delete(im.subscriptions[campaignID], sub)
			if len(im.subscriptions[campaignID]) == 0 {
				delete(im.subscriptions, campaignID)
			}
			im.mu.Unlock()
			close(out)
		}()

		for {
			select {
			case item := <-sub.in:
				if writeOrDone(ctx, out, item) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (im *inmemFrames) HealthCheck() error {
	return nil
}

// writeOrDone tries to write the item into the channel taking into account context.Done(). If context is done, returns
// true, otherwise false
func writeOrDone(ctx context.Context, ch chan<- interface{}, item interface{}) bool {
	select {
	case ch <- item:
	case <-ctx.Done():
		return true
	}
	return false
}
