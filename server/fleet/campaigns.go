package fleet

import (
	"encoding/json"
	"fmt"
)

// DistributedQueryStatus is the lifecycle state of a live query campaign. The
// server is the authoritative source; aggregates never invent transitions.
type DistributedQueryStatus int

const (
	QueryWaiting DistributedQueryStatus = iota
	QueryRunning
	QueryComplete
)

var distributedQueryStatusNames = map[DistributedQueryStatus]string{
	QueryWaiting:  "waiting",
	QueryRunning:  "running",
	QueryComplete: "complete",
}

func (s DistributedQueryStatus) String() string {
	if name, ok := distributedQueryStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// DistributedQueryCampaign is the live aggregate state of one distributed
// query run across a fleet of hosts.
//
// A campaign value is treated as immutable once handed out: the aggregator
// always builds fresh slices when it needs to change Hosts or QueryResults, so
// a previously returned snapshot can be read safely while the next one is
// being built.
type DistributedQueryCampaign struct {
	ID      uint                   `json:"id"`
	QueryID uint                   `json:"query_id"`
	Status  DistributedQueryStatus `json:"status"`
	UserID  uint                   `json:"user_id"`

	// Hosts holds every host that reported at least once, unique by ID, in
	// the order they were first seen.
	Hosts []CampaignHost `json:"hosts"`
	// QueryResults is append-only, in arrival order. Duplicates are kept.
	QueryResults []QueryResultRow `json:"query_results"`
	// Totals is nil until the first totals frame is applied.
	Totals *CampaignTotals `json:"totals,omitempty"`
}

// HasHost reports whether a host with the given ID has already reported.
func (c DistributedQueryCampaign) HasHost(id uint) bool {
	for _, h := range c.Hosts {
		if h.ID == id {
			return true
		}
	}
	return false
}

// CampaignHost is the host summary carried in result frames. Its identity is
// ID; only Hostname is propagated onto result rows.
type CampaignHost struct {
	ID          uint   `json:"id"`
	Hostname    string `json:"hostname"`
	DisplayName string `json:"display_name,omitempty"`
	Platform    string `json:"platform,omitempty"`
	PrimaryIP   string `json:"primary_ip,omitempty"`
}

// QueryResultRow is one result row enriched with the hostname of the host
// that produced it.
type QueryResultRow struct {
	Hostname string `json:"hostname"`
	Feature  string `json:"feature"`
	Value    string `json:"value"`
}

// ResultRow is a row as reported by a host, before enrichment.
type ResultRow struct {
	Feature string `json:"feature"`
	Value   string `json:"value"`
}

// CampaignTotals holds the aggregate host counts for the campaign targets.
type CampaignTotals struct {
	Count           uint `json:"count"`
	Online          uint `json:"online"`
	Offline         uint `json:"offline,omitempty"`
	MissingInAction uint `json:"missing_in_action,omitempty"`
}

// CampaignStatus is the progress summary the server pushes while a campaign
// is streaming.
type CampaignStatus struct {
	ExpectedResults uint   `json:"expected_results"`
	ActualResults   uint   `json:"actual_results"`
	Status          string `json:"status"`
}

const (
	CampaignStatusPending  = "pending"
	CampaignStatusFinished = "finished"
)

// CreateDistributedQueryCampaignRequest is the payload used to register a new
// campaign aggregate.
type CreateDistributedQueryCampaignRequest struct {
	ID      uint `json:"id"`
	QueryID uint `json:"query_id"`
	UserID  uint `json:"user_id"`
}

// NewDistributedQueryCampaign returns an empty campaign aggregate in the
// waiting state.
func NewDistributedQueryCampaign(id, queryID, userID uint) DistributedQueryCampaign {
	return DistributedQueryCampaign{
		ID:           id,
		QueryID:      queryID,
		UserID:       userID,
		Status:       QueryWaiting,
		Hosts:        []CampaignHost{},
		QueryResults: []QueryResultRow{},
	}
}

// Clone returns a deep copy of the campaign.
func (c DistributedQueryCampaign) Clone() DistributedQueryCampaign {
	clone := c
	if c.Hosts != nil {
		clone.Hosts = make([]CampaignHost, len(c.Hosts))
		copy(clone.Hosts, c.Hosts)
	}
	if c.QueryResults != nil {
		clone.QueryResults = make([]QueryResultRow, len(c.QueryResults))
		copy(clone.QueryResults, c.QueryResults)
	}
	if c.Totals != nil {
		totals := *c.Totals
		clone.Totals = &totals
	}
	return clone
}

// MarshalJSON always emits hosts and query_results as arrays, even for a
// campaign that has not received any frame yet.
func (c DistributedQueryCampaign) MarshalJSON() ([]byte, error) {
	type alias DistributedQueryCampaign
	a := alias(c)
	if a.Hosts == nil {
		a.Hosts = []CampaignHost{}
	}
	if a.QueryResults == nil {
		a.QueryResults = []QueryResultRow{}
	}
	return json.Marshal(a)
}
