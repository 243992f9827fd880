package service

import (
	"context"

	"github.com/fleetdm/livequery/server/fleet"
	"github.com/go-kit/kit/endpoint"
)

////////////////////////////////////////////////////////////////////////////////
// Create Campaign
////////////////////////////////////////////////////////////////////////////////

type campaignResponse struct {
	Campaign *fleet.DistributedQueryCampaign `json:"campaign,omitempty"`
	Err      error                           `json:"error,omitempty"`
}

func (r campaignResponse) error() error { return r.Err }

func makeCreateCampaignEndpoint(svc fleet.CampaignService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(fleet.CreateDistributedQueryCampaignRequest)
		campaign, err := svc.CreateCampaign(ctx, req)
		if err != nil {
			return campaignResponse{Err: err}, nil
		}
		return campaignResponse{Campaign: campaign}, nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// Publish Frame
////////////////////////////////////////////////////////////////////////////////

type publishFrameRequest struct {
	ID    uint
	Frame fleet.Frame
}

func makePublishFrameEndpoint(svc fleet.CampaignService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(publishFrameRequest)
		campaign, err := svc.PublishFrame(ctx, req.ID, req.Frame)
		if err != nil {
			return campaignResponse{Err: err}, nil
		}
		return campaignResponse{Campaign: campaign}, nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// Get Campaign
////////////////////////////////////////////////////////////////////////////////

type getCampaignRequest struct {
	ID uint
}

func makeGetCampaignEndpoint(svc fleet.CampaignService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(getCampaignRequest)
		campaign, err := svc.GetCampaign(ctx, req.ID)
		if err != nil {
			return campaignResponse{Err: err}, nil
		}
		return campaignResponse{Campaign: campaign}, nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// List Campaigns
////////////////////////////////////////////////////////////////////////////////

type listCampaignsResponse struct {
	Campaigns []fleet.DistributedQueryCampaign `json:"campaigns"`
	Err       error                            `json:"error,omitempty"`
}

func (r listCampaignsResponse) error() error { return r.Err }

func makeListCampaignsEndpoint(svc fleet.CampaignService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		list, err := svc.ListCampaigns(ctx)
		if err != nil {
			return listCampaignsResponse{Err: err}, nil
		}
		return listCampaignsResponse{Campaigns: list}, nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// Delete Campaign
////////////////////////////////////////////////////////////////////////////////

type deleteCampaignRequest struct {
	ID uint
}

func makeDeleteCampaignEndpoint(svc fleet.CampaignService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(deleteCampaignRequest)
		campaign, err := svc.DeleteCampaign(ctx, req.ID)
		if err != nil {
			return campaignResponse{Err: err}, nil
		}
		return campaignResponse{Campaign: campaign}, nil
	}
}
