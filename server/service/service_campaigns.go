package service

import (
	"context"
	"fmt"

	"github.com/fleetdm/livequery/server/fleet"
	"github.com/fleetdm/livequery/server/pubsub"
	"github.com/fleetdm/livequery/server/websocket"
	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/google/uuid"
	"github.com/igm/sockjs-go/v3/sockjs"
	"github.com/pkg/errors"
)

func (svc *Service) CreateCampaign(ctx context.Context, req fleet.CreateDistributedQueryCampaignRequest) (*fleet.DistributedQueryCampaign, error) {
	if req.ID == 0 {
		return nil, fleet.NewInvalidArgumentError("id", "must be set")
	}

	campaign, err := svc.tracker.Start(fleet.DistributedQueryCampaign{
		ID:      req.ID,
		QueryID: req.QueryID,
		UserID:  req.UserID,
		Status:  fleet.QueryWaiting,
	})
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

// PublishFrame folds the frame into the tracked aggregate, advances the
// campaign status and forwards the frame to the live streams of the campaign.
// The fold is authoritative: once it succeeded the frame is part of the
// aggregate, so a failure to forward it is logged and not returned. Returning
// it would make publishers retry a frame that was already applied.
func (svc *Service) PublishFrame(ctx context.Context, campaignID uint, frame fleet.Frame) (*fleet.DistributedQueryCampaign, error) {
	svc.publishMu.Lock()
	defer svc.publishMu.Unlock()

	campaign, err := svc.tracker.Apply(campaignID, frame)
	if err != nil {
		return nil, err
	}
	frame, _ = fleet.FrameValue(frame)

	switch f := frame.(type) {
	case fleet.ResultFrame, fleet.TotalsFrame:
		campaign, err = svc.advanceStatus(campaignID, fleet.QueryRunning)
	case fleet.StatusFrame:
		if f.Status == fleet.CampaignStatusFinished {
			campaign, err = svc.advanceStatus(campaignID, fleet.QueryComplete)
		}
	}
	if err != nil {
		return nil, err
	}

	if err := svc.frameStore.WriteFrame(campaignID, frame); err != nil && !pubsub.IsNoSubscriber(err) {
		level.Info(svc.logger).Log(
			"msg", "forward frame to live streams",
			"campaign_id", campaignID,
			"type", frame.FrameType(),
			"err", err,
		)
	}

	return &campaign, nil
}

// advanceStatus moves the campaign lifecycle forward. The tracker ignores
// backward moves.
func (svc *Service) advanceStatus(campaignID uint, status fleet.DistributedQueryStatus) (fleet.DistributedQueryCampaign, error) {
	return svc.tracker.SetStatus(campaignID, status)
}

func (svc *Service) GetCampaign(ctx context.Context, campaignID uint) (*fleet.DistributedQueryCampaign, error) {
	campaign, ok := svc.tracker.Snapshot(campaignID)
	if !ok {
		return nil, fleet.NewCampaignNotFoundError(campaignID)
	}
	return &campaign, nil
}

func (svc *Service) ListCampaigns(ctx context.Context) ([]fleet.DistributedQueryCampaign, error) {
	return svc.tracker.List(), nil
}

func (svc *Service) DeleteCampaign(ctx context.Context, campaignID uint) (*fleet.DistributedQueryCampaign, error) {
	campaign, ok := svc.tracker.Destroy(campaignID)
	if !ok {
		return nil, fleet.NewCampaignNotFoundError(campaignID)
	}
	return &campaign, nil
}

// campaignStatusOf derives the progress of a campaign from its aggregate.
// Every host that reported counts as one result, and results are expected
// from the hosts that were online when totals were last reported.
func campaignStatusOf(c fleet.DistributedQueryCampaign) fleet.CampaignStatus {
	status := fleet.CampaignStatus{
		ActualResults: uint(len(c.Hosts)),
		Status:        fleet.CampaignStatusPending,
	}
	if c.Totals != nil {
		status.ExpectedResults = c.Totals.Online
		if status.ActualResults >= status.ExpectedResults {
			status.Status = fleet.CampaignStatusFinished
		}
	}
	if c.Status == fleet.QueryComplete {
		status.Status = fleet.CampaignStatusFinished
	}
	return status
}

var errCampaignGone = errors.New("campaign no longer tracked")

func (svc *Service) StreamCampaignFrames(ctx context.Context, conn *websocket.Conn, campaignID uint) {
	logger := kitlog.With(svc.logger, "campaign_id", campaignID, "stream_id", uuid.NewString())
	level.Debug(logger).Log("msg", "stream opened")
	defer level.Debug(logger).Log("msg", "stream closed")

	// Open the channel from which we will receive published frames before
	// taking the snapshot, so nothing published in between is lost.
	cancelCtx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	svc.publishMu.Lock()
	campaign, err := svc.advanceStatus(campaignID, fleet.QueryRunning)
	if err != nil {
		svc.publishMu.Unlock()
		conn.WriteJSONError(fmt.Sprintf("cannot find campaign for ID %d", campaignID)) //nolint:errcheck
		return
	}
	readChan, err := svc.frameStore.ReadChannel(cancelCtx, campaignID)
	svc.publishMu.Unlock()
	if err != nil {
		level.Info(logger).Log("msg", "open read channel", "err", err)
		conn.WriteJSONError(fmt.Sprintf("cannot open read channel for campaign %d", campaignID)) //nolint:errcheck
		return
	}

	if err := conn.WriteJSON(websocket.EncodeSnapshot(campaign)); err != nil {
		level.Debug(logger).Log("msg", "write snapshot", "err", err)
		return
	}

	lastStatus := fleet.CampaignStatus{}
	updateStatus := func() error {
		current, ok := svc.tracker.Snapshot(campaignID)
		if !ok {
			if err := conn.WriteJSONError(fmt.Sprintf("campaign %d was deleted", campaignID)); err != nil {
				return errors.Wrap(err, "write campaign deleted")
			}
			return errCampaignGone
		}

		// only write status message if status has changed
		status := campaignStatusOf(current)
		if lastStatus != status {
			lastStatus = status
			if err := conn.WriteJSONMessage(fleet.FrameTypeStatus, status); err != nil {
				return errors.Wrap(err, "write status")
			}
		}
		return nil
	}

	if err := updateStatus(); err != nil {
		level.Debug(logger).Log("msg", "error updating status", "err", err)
		return
	}

	// Push status updates every statusInterval at most
	tick := svc.clock.After(svc.statusInterval)
	for {
		select {
		case item, ok := <-readChan:
			if !ok {
				return
			}
			switch item := item.(type) {
			case fleet.Frame:
				err := conn.WriteJSON(websocket.EncodeFrame(item))
				if errors.Is(err, sockjs.ErrSessionNotOpen) {
					// return and stop streaming if the session was closed
					// by the client
					return
				}
				if err != nil {
					level.Info(logger).Log("msg", "error writing to channel", "err", err)
				}
			case error:
				level.Info(logger).Log("msg", "error reading campaign frames", "err", item)
			}

		case <-tick:
			if conn.GetSessionState() == sockjs.SessionClosed {
				// return and stop streaming if the session was closed by
				// the client
				return
			}
			if err := updateStatus(); err != nil {
				level.Debug(logger).Log("msg", "error updating status", "err", err)
				return
			}
			tick = svc.clock.After(svc.statusInterval)

		case <-ctx.Done():
			return
		}
	}
}
