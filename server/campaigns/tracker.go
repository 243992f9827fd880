package campaigns

import (
	"sort"
	"sync"

	"github.com/fleetdm/livequery/server/fleet"
	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Tracker owns the latest aggregate of every campaign it was asked to track.
// It is the single writer for those aggregates: Apply calls are serialised,
// and the snapshots handed to readers are never modified afterwards.
type Tracker struct {
	mu        sync.RWMutex
	campaigns map[uint]fleet.DistributedQueryCampaign
	logger    kitlog.Logger
}

// NewTracker returns an empty tracker.
func NewTracker(logger kitlog.Logger) *Tracker {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	return &Tracker{
		campaigns: make(map[uint]fleet.DistributedQueryCampaign),
		logger:    logger,
	}
}

// Start begins tracking the campaign, starting from an empty aggregate.
func (t *Tracker) Start(campaign fleet.DistributedQueryCampaign) (fleet.DistributedQueryCampaign, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.campaigns[campaign.ID]; ok {
		return fleet.DistributedQueryCampaign{}, &fleet.AlreadyExistsError{ID: campaign.ID}
	}
	c := fleet.NewDistributedQueryCampaign(campaign.ID, campaign.QueryID, campaign.UserID)
	c.Status = campaign.Status
	t.campaigns[c.ID] = c
	activeCampaigns.Inc()

	level.Debug(t.logger).Log("msg", "tracking campaign", "campaign_id", c.ID, "query_id", c.QueryID)
	return c, nil
}

// Apply folds the frame into the campaign aggregate and stores the result.
// On a malformed frame the stored aggregate is left as it was and returned
// along with the error.
func (t *Tracker) Apply(campaignID uint, frame fleet.Frame) (fleet.DistributedQueryCampaign, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prior, ok := t.campaigns[campaignID]
	if !ok {
		return fleet.DistributedQueryCampaign{}, fleet.NewCampaignNotFoundError(campaignID)
	}

	frameType := frameTypeOf(frame)
	next, err := Fold(prior, frame)
	observeFold(frameType, err)
	if err != nil {
		level.Debug(t.logger).Log("msg", "rejected frame", "campaign_id", campaignID, "type", frameType, "err", err)
		return prior, err
	}
	t.campaigns[campaignID] = next
	return next, nil
}

// SetStatus records a lifecycle transition decided by the server. The
// lifecycle only moves forward: a status at or behind the current one leaves
// the campaign unchanged.
func (t *Tracker) SetStatus(campaignID uint, status fleet.DistributedQueryStatus) (fleet.DistributedQueryCampaign, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.campaigns[campaignID]
	if !ok {
		return fleet.DistributedQueryCampaign{}, fleet.NewCampaignNotFoundError(campaignID)
	}
	if status <= c.Status {
		return c, nil
	}
	c.Status = status
	t.campaigns[campaignID] = c
	return c, nil
}

// Snapshot returns the latest aggregate of the campaign.
func (t *Tracker) Snapshot(campaignID uint) (fleet.DistributedQueryCampaign, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	c, ok := t.campaigns[campaignID]
	return c, ok
}

// List returns the latest aggregate of every tracked campaign, ordered by ID.
func (t *Tracker) List() []fleet.DistributedQueryCampaign {
	t.mu.RLock()
	defer t.mu.RUnlock()

	list := make([]fleet.DistributedQueryCampaign, 0, len(t.campaigns))
	for _, c := range t.campaigns {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// Destroy stops tracking the campaign and returns its last aggregate.
func (t *Tracker) Destroy(campaignID uint) (fleet.DistributedQueryCampaign, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.campaigns[campaignID]
	if !ok {
		return fleet.DistributedQueryCampaign{}, false
	}
	delete(t.campaigns, campaignID)
	activeCampaigns.Dec()

	level.Debug(t.logger).Log("msg", "discarded campaign", "campaign_id", campaignID, "rows", len(c.QueryResults), "hosts", len(c.Hosts))
	return Destroy(c), true
}
