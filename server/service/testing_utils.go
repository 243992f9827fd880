package service

import (
	"net/http/httptest"
	"testing"

	"github.com/WatchBeam/clock"
	"github.com/fleetdm/livequery/server/campaigns"
	"github.com/fleetdm/livequery/server/config"
	"github.com/fleetdm/livequery/server/fleet"
	"github.com/fleetdm/livequery/server/health"
	"github.com/fleetdm/livequery/server/pubsub"
	kitlog "github.com/go-kit/kit/log"
)

// newTestService returns a service backed by an in-memory frame store and a
// mock clock that drives the stream status ticks.
func newTestService(t testing.TB) (*Service, *clock.MockClock) {
	return newTestServiceWithStore(t, pubsub.NewInmemFrames())
}

func newTestServiceWithStore(t testing.TB, store fleet.FrameStore) (*Service, *clock.MockClock) {
	mockClock := clock.NewMockClock()
	logger := kitlog.NewNopLogger()
	svc := NewService(campaigns.NewTracker(logger), store, logger, config.TestConfig().Server, mockClock)
	return svc, mockClock
}

// runServerForTests serves the full handler of svc on a local listener.
func runServerForTests(t testing.TB, svc CampaignService) *httptest.Server {
	handler := MakeHandler(svc, config.TestConfig().Server, kitlog.NewNopLogger(), map[string]health.Checker{
		"pubsub": health.Nop(),
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}
