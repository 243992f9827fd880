package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/fleetdm/livequery/server/fleet"
	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingMiddleware(t *testing.T) {
	inner, _ := newTestService(t)
	var buf bytes.Buffer
	svc := NewLoggingService(inner, kitlog.NewLogfmtLogger(&buf))
	ctx := context.Background()

	_, err := svc.CreateCampaign(ctx, fleet.CreateDistributedQueryCampaignRequest{ID: 5, QueryID: 6})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "method=CreateCampaign campaign_id=5 query_id=6")

	buf.Reset()
	_, err = svc.PublishFrame(ctx, 5, fleet.ResultFrame{})
	require.Error(t, err)
	assert.Contains(t, buf.String(), "method=PublishFrame")
	assert.Contains(t, buf.String(), "type=result")
	assert.Contains(t, buf.String(), "level=info")

	buf.Reset()
	_, err = svc.GetCampaign(ctx, 5)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "level=debug")
}

func TestMetricsMiddleware(t *testing.T) {
	inner, _ := newTestService(t)
	svc := NewMetricsService(inner, discard.NewCounter(), discard.NewHistogram())
	ctx := context.Background()

	_, err := svc.CreateCampaign(ctx, fleet.CreateDistributedQueryCampaignRequest{ID: 1})
	require.NoError(t, err)
	_, err = svc.PublishFrame(ctx, 1, resultFrame(1, "a"))
	require.NoError(t, err)

	list, err := svc.ListCampaigns(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Hosts, 1)

	_, err = svc.DeleteCampaign(ctx, 1)
	require.NoError(t, err)
	_, err = svc.GetCampaign(ctx, 1)
	assert.True(t, fleet.IsNotFound(err))
}
