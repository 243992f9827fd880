package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetdm/livequery/server/fleet"
	"github.com/go-kit/kit/metrics"
)

type metricsMiddleware struct {
	CampaignService
	requestCount   metrics.Counter
	requestLatency metrics.Histogram
}

// NewMetricsService service takes an existing service and wraps it
// with instrumentation middleware.
func NewMetricsService(
	svc CampaignService,
	requestCount metrics.Counter,
	requestLatency metrics.Histogram,
) CampaignService {
	return metricsMiddleware{
		CampaignService: svc,
		requestCount:    requestCount,
		requestLatency:  requestLatency,
	}
}

func (mw metricsMiddleware) observe(method string, err error, begin time.Time) {
	lvs := []string{"method", method, "error", fmt.Sprint(err != nil)}
	mw.requestCount.With(lvs...).Add(1)
	mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
}

func (mw metricsMiddleware) CreateCampaign(ctx context.Context, req fleet.CreateDistributedQueryCampaignRequest) (*fleet.DistributedQueryCampaign, error) {
	var (
		campaign *fleet.DistributedQueryCampaign
		err      error
	)
	defer func(begin time.Time) { mw.observe("CreateCampaign", err, begin) }(time.Now())
	campaign, err = mw.CampaignService.CreateCampaign(ctx, req)
	return campaign, err
}

func (mw metricsMiddleware) PublishFrame(ctx context.Context, campaignID uint, frame fleet.Frame) (*fleet.DistributedQueryCampaign, error) {
	var (
		campaign *fleet.DistributedQueryCampaign
		err      error
	)
	defer func(begin time.Time) { mw.observe("PublishFrame", err, begin) }(time.Now())
	campaign, err = mw.CampaignService.PublishFrame(ctx, campaignID, frame)
	return campaign, err
}

func (mw metricsMiddleware) GetCampaign(ctx context.Context, campaignID uint) (*fleet.DistributedQueryCampaign, error) {
	var (
		campaign *fleet.DistributedQueryCampaign
		err      error
	)
	defer func(begin time.Time) { mw.observe("GetCampaign", err, begin) }(time.Now())
	campaign, err = mw.CampaignService.GetCampaign(ctx, campaignID)
	return campaign, err
}

func (mw metricsMiddleware) ListCampaigns(ctx context.Context) ([]fleet.DistributedQueryCampaign, error) {
	var (
		list []fleet.DistributedQueryCampaign
		err  error
	)
	defer func(begin time.Time) { mw.observe("ListCampaigns", err, begin) }(time.Now())
	list, err = mw.CampaignService.ListCampaigns(ctx)
	return list, err
}

func (mw metricsMiddleware) DeleteCampaign(ctx context.Context, campaignID uint) (*fleet.DistributedQueryCampaign, error) {
	var (
		campaign *fleet.DistributedQueryCampaign
		err      error
	)
	defer func(begin time.Time) { mw.observe("DeleteCampaign", err, begin) }(time.Now())
	campaign, err = mw.CampaignService.DeleteCampaign(ctx, campaignID)
	return campaign, err
}
