// Package campaigns folds the frames of a live query campaign stream into the
// campaign aggregate displayed to users.
package campaigns

import (
	"github.com/fleetdm/livequery/server/fleet"
)

// Fold applies one frame to the prior campaign aggregate and returns the next
// aggregate. It never modifies prior: whenever hosts or query results change,
// the returned campaign gets freshly allocated slices.
//
// Result frames append their rows, tagged with the reporting host's hostname,
// and register the host if it was not seen before. Totals frames replace the
// totals wholesale, so totals delivered out of order can regress. Status,
// error and unknown frames leave the aggregate untouched.
//
// Frames passed by pointer are folded like their values. Malformed frames,
// including nil and typed nil pointers, are rejected: prior is returned as is
// together with a *fleet.MalformedFrameError.
func Fold(prior fleet.DistributedQueryCampaign, frame fleet.Frame) (fleet.DistributedQueryCampaign, error) {
	frame, err := fleet.FrameValue(frame)
	if err != nil {
		return prior, err
	}

	switch f := frame.(type) {
	case fleet.ResultFrame:
		if err := f.Validate(); err != nil {
			return prior, err
		}
		return foldResult(prior, f), nil

	case fleet.TotalsFrame:
		next := prior
		totals := f.CampaignTotals
		next.Totals = &totals
		return next, nil

	case fleet.MalformedFrame:
		return prior, &fleet.MalformedFrameError{FrameType: f.Type, Reason: "could not be decoded", Err: f.Err}

	default:
		// status, error and unknown frames
		return prior, nil
	}
}

func foldResult(prior fleet.DistributedQueryCampaign, f fleet.ResultFrame) fleet.DistributedQueryCampaign {
	next := prior

	results := make([]fleet.QueryResultRow, len(prior.QueryResults), len(prior.QueryResults)+len(f.Rows))
	copy(results, prior.QueryResults)
	for _, row := range f.Rows {
		results = append(results, fleet.QueryResultRow{
			Hostname: f.Host.Hostname,
			Feature:  row.Feature,
			Value:    row.Value,
		})
	}
	next.QueryResults = results

	if prior.HasHost(f.Host.ID) {
		return next
	}
	hosts := make([]fleet.CampaignHost, len(prior.Hosts), len(prior.Hosts)+1)
	copy(hosts, prior.Hosts)
	next.Hosts = append(hosts, *f.Host)

	return next
}

// Destroy discards the campaign aggregate and returns its last value so the
// caller can render it one final time. Aggregates hold no resources.
func Destroy(c fleet.DistributedQueryCampaign) fleet.DistributedQueryCampaign {
	return c
}
