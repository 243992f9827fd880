package service

import (
	"context"
	"time"

	"github.com/fleetdm/livequery/server/fleet"
	"github.com/fleetdm/livequery/server/websocket"
	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// logging middleware logs the service actions
type loggingMiddleware struct {
	CampaignService
	logger kitlog.Logger
}

// NewLoggingService takes an existing service and adds a logging wrapper
func NewLoggingService(svc CampaignService, logger kitlog.Logger) CampaignService {
	return loggingMiddleware{CampaignService: svc, logger: logger}
}

// loggerDebug returns the info level if the error is non-nil, otherwise
// defaulting to the debug level.
func (mw loggingMiddleware) loggerDebug(err error) kitlog.Logger {
	logger := mw.logger
	if e, ok := err.(fleet.ErrWithInternal); ok {
		logger = kitlog.With(logger, "internal", e.Internal())
	}
	if err != nil {
		return level.Info(logger)
	}
	return level.Debug(logger)
}

// loggerInfo returns the info level
func (mw loggingMiddleware) loggerInfo(err error) kitlog.Logger {
	logger := mw.logger
	if e, ok := err.(fleet.ErrWithInternal); ok {
		logger = kitlog.With(logger, "internal", e.Internal())
	}
	return level.Info(logger)
}

func (mw loggingMiddleware) CreateCampaign(ctx context.Context, req fleet.CreateDistributedQueryCampaignRequest) (*fleet.DistributedQueryCampaign, error) {
	var (
		campaign *fleet.DistributedQueryCampaign
		err      error
	)
	defer func(begin time.Time) {
		mw.loggerInfo(err).Log(
			"method", "CreateCampaign",
			"campaign_id", req.ID,
			"query_id", req.QueryID,
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	campaign, err = mw.CampaignService.CreateCampaign(ctx, req)
	return campaign, err
}

func (mw loggingMiddleware) PublishFrame(ctx context.Context, campaignID uint, frame fleet.Frame) (*fleet.DistributedQueryCampaign, error) {
	var (
		campaign *fleet.DistributedQueryCampaign
		err      error
	)
	defer func(begin time.Time) {
		frameType := ""
		if frame != nil {
			frameType = frame.FrameType()
		}
		rows := 0
		if campaign != nil {
			rows = len(campaign.QueryResults)
		}
		mw.loggerDebug(err).Log(
			"method", "PublishFrame",
			"campaign_id", campaignID,
			"type", frameType,
			"rows", rows,
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	campaign, err = mw.CampaignService.PublishFrame(ctx, campaignID, frame)
	return campaign, err
}

func (mw loggingMiddleware) GetCampaign(ctx context.Context, campaignID uint) (*fleet.DistributedQueryCampaign, error) {
	var (
		campaign *fleet.DistributedQueryCampaign
		err      error
	)
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "GetCampaign",
			"campaign_id", campaignID,
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	campaign, err = mw.CampaignService.GetCampaign(ctx, campaignID)
	return campaign, err
}

func (mw loggingMiddleware) ListCampaigns(ctx context.Context) ([]fleet.DistributedQueryCampaign, error) {
	var (
		list []fleet.DistributedQueryCampaign
		err  error
	)
	defer func(begin time.Time) {
		mw.loggerDebug(err).Log(
			"method", "ListCampaigns",
			"count", len(list),
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	list, err = mw.CampaignService.ListCampaigns(ctx)
	return list, err
}

func (mw loggingMiddleware) DeleteCampaign(ctx context.Context, campaignID uint) (*fleet.DistributedQueryCampaign, error) {
	var (
		campaign *fleet.DistributedQueryCampaign
		err      error
	)
	defer func(begin time.Time) {
		mw.loggerInfo(err).Log(
			"method", "DeleteCampaign",
			"campaign_id", campaignID,
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	campaign, err = mw.CampaignService.DeleteCampaign(ctx, campaignID)
	return campaign, err
}

func (mw loggingMiddleware) StreamCampaignFrames(ctx context.Context, conn *websocket.Conn, campaignID uint) {
	defer func(begin time.Time) {
		mw.loggerInfo(nil).Log(
			"method", "StreamCampaignFrames",
			"campaign_id", campaignID,
			"took", time.Since(begin),
		)
	}(time.Now())
	mw.CampaignService.StreamCampaignFrames(ctx, conn, campaignID)
}
