// Package service holds the implementation of the campaign aggregation API:
// the HTTP endpoints that feed and read campaign aggregates, and the
// websocket streams that fan frames out to live consumers.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/fleetdm/livequery/server/campaigns"
	"github.com/fleetdm/livequery/server/config"
	"github.com/fleetdm/livequery/server/fleet"
	"github.com/fleetdm/livequery/server/websocket"
	kitlog "github.com/go-kit/kit/log"
)

// CampaignService is the full set of campaign operations served over HTTP,
// including the websocket stream.
type CampaignService interface {
	fleet.CampaignService

	// StreamCampaignFrames sends the campaign aggregate over conn, followed
	// by every frame published for the campaign and periodic status
	// updates. It returns once the consumer goes away or the campaign is
	// deleted.
	StreamCampaignFrames(ctx context.Context, conn *websocket.Conn, campaignID uint)
}

// Service is the struct implementing CampaignService. Create a new one with
// NewService.
type Service struct {
	tracker    *campaigns.Tracker
	frameStore fleet.FrameStore
	logger     kitlog.Logger
	clock      clock.Clock

	statusInterval time.Duration

	// publishMu orders publications against stream subscriptions, so that a
	// stream never receives a frame that is already part of its snapshot.
	publishMu sync.Mutex
}

var _ CampaignService = (*Service)(nil)

// NewService creates a new service from the config struct
func NewService(
	tracker *campaigns.Tracker,
	frameStore fleet.FrameStore,
	logger kitlog.Logger,
	config config.ServerConfig,
	c clock.Clock,
) *Service {
	interval := config.StatusInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Service{
		tracker:        tracker,
		frameStore:     frameStore,
		logger:         logger,
		clock:          c,
		statusInterval: interval,
	}
}
