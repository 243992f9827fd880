package fleet

import "context"

// CampaignService is the set of operations exposed over HTTP for live query
// campaign aggregates.
type CampaignService interface {
	// CreateCampaign registers an empty aggregate for a campaign that is about
	// to start streaming.
	CreateCampaign(ctx context.Context, req CreateDistributedQueryCampaignRequest) (*DistributedQueryCampaign, error)

	// PublishFrame folds the frame into the tracked aggregate and forwards it
	// to every live stream of the campaign.
	PublishFrame(ctx context.Context, campaignID uint, frame Frame) (*DistributedQueryCampaign, error)

	// GetCampaign returns the latest aggregate of the campaign.
	GetCampaign(ctx context.Context, campaignID uint) (*DistributedQueryCampaign, error)

	// ListCampaigns returns the latest aggregate of every tracked campaign,
	// ordered by ID.
	ListCampaigns(ctx context.Context) ([]DistributedQueryCampaign, error)

	// DeleteCampaign discards the aggregate and returns its last value.
	DeleteCampaign(ctx context.Context, campaignID uint) (*DistributedQueryCampaign, error)
}
