package campaigns

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/fleetdm/livequery/server/fleet"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testHost = fleet.CampaignHost{ID: 1, Hostname: "jmeller-mbp.local"}

	testCampaign = fleet.DistributedQueryCampaign{
		ID:      4,
		QueryID: 12,
		Status:  fleet.QueryWaiting,
		UserID:  1,
	}

	testResultFrame = fleet.ResultFrame{
		DistributedQueryExecutionID: 5,
		Host:                        &testHost,
		Rows: []fleet.ResultRow{
			{Feature: "product_name", Value: "Intel Core"},
			{Feature: "family", Value: "0600"},
		},
	}

	testTotalsFrame = fleet.TotalsFrame{CampaignTotals: fleet.CampaignTotals{Count: 5, Online: 1}}
)

func campaignWithResults() fleet.DistributedQueryCampaign {
	c := testCampaign
	c.Hosts = []fleet.CampaignHost{{ID: 2, Hostname: "some-machine"}}
	c.QueryResults = []fleet.QueryResultRow{
		{Hostname: "some-machine", Feature: "vendor", Value: "GenuineIntel"},
	}
	c.Totals = &fleet.CampaignTotals{Count: 3, Online: 2}
	return c
}

func TestFoldResultAppendsToExistingResults(t *testing.T) {
	prior := campaignWithResults()

	next, err := Fold(prior, testResultFrame)
	require.NoError(t, err)

	assert.Equal(t, []fleet.QueryResultRow{
		{Hostname: "some-machine", Feature: "vendor", Value: "GenuineIntel"},
		{Hostname: testHost.Hostname, Feature: "product_name", Value: "Intel Core"},
		{Hostname: testHost.Hostname, Feature: "family", Value: "0600"},
	}, next.QueryResults)
	assert.Contains(t, next.Hosts, testHost)
	assert.Len(t, next.Hosts, 2)
	assert.Equal(t, prior.Totals, next.Totals)
}

func TestFoldResultWithoutPriorResults(t *testing.T) {
	next, err := Fold(testCampaign, testResultFrame)
	require.NoError(t, err)

	assert.Equal(t, []fleet.QueryResultRow{
		{Hostname: testHost.Hostname, Feature: "product_name", Value: "Intel Core"},
		{Hostname: testHost.Hostname, Feature: "family", Value: "0600"},
	}, next.QueryResults)
	assert.Equal(t, []fleet.CampaignHost{testHost}, next.Hosts)
	assert.Nil(t, next.Totals)
}

func TestFoldTotals(t *testing.T) {
	t.Run("replaces existing totals", func(t *testing.T) {
		prior := campaignWithResults()
		next, err := Fold(prior, testTotalsFrame)
		require.NoError(t, err)
		require.NotNil(t, next.Totals)
		assert.Equal(t, fleet.CampaignTotals{Count: 5, Online: 1}, *next.Totals)
		assert.Equal(t, prior.QueryResults, next.QueryResults)
		assert.Equal(t, prior.Hosts, next.Hosts)
	})

	t.Run("adds totals when absent", func(t *testing.T) {
		next, err := Fold(testCampaign, testTotalsFrame)
		require.NoError(t, err)
		require.NotNil(t, next.Totals)
		assert.Equal(t, fleet.CampaignTotals{Count: 5, Online: 1}, *next.Totals)
	})

	t.Run("frame passed by pointer", func(t *testing.T) {
		prior := campaignWithResults()
		next, err := Fold(prior, &fleet.TotalsFrame{CampaignTotals: fleet.CampaignTotals{Count: 5, Online: 1}})
		require.NoError(t, err)
		require.NotNil(t, next.Totals)
		assert.Equal(t, fleet.CampaignTotals{Count: 5, Online: 1}, *next.Totals)
		assert.Equal(t, &fleet.CampaignTotals{Count: 3, Online: 2}, prior.Totals)
	})

	t.Run("last write wins with no trace of earlier totals", func(t *testing.T) {
		a := fleet.TotalsFrame{CampaignTotals: fleet.CampaignTotals{Count: 10, Online: 7, Offline: 2, MissingInAction: 1}}
		b := fleet.TotalsFrame{CampaignTotals: fleet.CampaignTotals{Count: 4, Online: 3}}

		c, err := Fold(testCampaign, a)
		require.NoError(t, err)
		c, err = Fold(c, b)
		require.NoError(t, err)
		assert.Equal(t, fleet.CampaignTotals{Count: 4, Online: 3}, *c.Totals)
	})

	t.Run("stale totals regress", func(t *testing.T) {
		newer := fleet.TotalsFrame{CampaignTotals: fleet.CampaignTotals{Count: 10, Online: 9}}
		stale := fleet.TotalsFrame{CampaignTotals: fleet.CampaignTotals{Count: 10, Online: 2}}

		c, err := Fold(testCampaign, newer)
		require.NoError(t, err)
		c, err = Fold(c, stale)
		require.NoError(t, err)
		assert.Equal(t, uint(2), c.Totals.Online)
	})
}

func TestFoldAppendOnly(t *testing.T) {
	frames := []fleet.ResultFrame{
		{Host: &fleet.CampaignHost{ID: 1, Hostname: "a"}, Rows: []fleet.ResultRow{{Feature: "f", Value: "1"}}},
		{Host: &fleet.CampaignHost{ID: 2, Hostname: "b"}, Rows: []fleet.ResultRow{}},
		{Host: &fleet.CampaignHost{ID: 1, Hostname: "a"}, Rows: []fleet.ResultRow{{Feature: "f", Value: "1"}, {Feature: "g", Value: "2"}}},
		{Host: &fleet.CampaignHost{ID: 3, Hostname: "c"}, Rows: []fleet.ResultRow{{Feature: "f", Value: "1"}, {Feature: "f", Value: "1"}, {Feature: "h", Value: "3"}}},
	}

	c := fleet.NewDistributedQueryCampaign(1, 1, 1)
	total := 0
	for i, f := range frames {
		prevLen := len(c.QueryResults)
		next, err := Fold(c, f)
		require.NoError(t, err)
		total += len(f.Rows)
		assert.Len(t, next.QueryResults, total, "frame %d", i)
		// previously folded rows keep their position
		assert.Equal(t, c.QueryResults, next.QueryResults[:prevLen])
		c = next
	}
	assert.Len(t, c.QueryResults, 6)
	assert.Equal(t, []fleet.CampaignHost{
		{ID: 1, Hostname: "a"},
		{ID: 2, Hostname: "b"},
		{ID: 3, Hostname: "c"},
	}, c.Hosts)
}

func TestFoldHostSetUniqueness(t *testing.T) {
	host := &fleet.CampaignHost{ID: 7, Hostname: "dup"}
	c, err := Fold(testCampaign, fleet.ResultFrame{Host: host, Rows: []fleet.ResultRow{{Feature: "a", Value: "1"}}})
	require.NoError(t, err)
	c, err = Fold(c, fleet.ResultFrame{Host: host, Rows: []fleet.ResultRow{{Feature: "b", Value: "2"}, {Feature: "c", Value: "3"}}})
	require.NoError(t, err)

	assert.Equal(t, []fleet.CampaignHost{*host}, c.Hosts)
	assert.Len(t, c.QueryResults, 3)
}

func TestFoldEmptyRowsRegistersHost(t *testing.T) {
	fresh := fleet.DistributedQueryCampaign{ID: 4}
	host := &fleet.CampaignHost{ID: 2, Hostname: "some-machine"}

	next, err := Fold(fresh, fleet.ResultFrame{Host: host, Rows: []fleet.ResultRow{}})
	require.NoError(t, err)
	assert.NotNil(t, next.QueryResults)
	assert.Empty(t, next.QueryResults)
	assert.Equal(t, []fleet.CampaignHost{*host}, next.Hosts)
}

func TestFoldNoopFrames(t *testing.T) {
	prior := campaignWithResults()
	frames := []fleet.Frame{
		fleet.UnknownFrame{Type: "host_status", Data: json.RawMessage(`{"id":1}`)},
		fleet.StatusFrame{CampaignStatus: fleet.CampaignStatus{ExpectedResults: 2, ActualResults: 1, Status: fleet.CampaignStatusPending}},
		fleet.ErrorFrame{Message: "boom"},
	}
	for _, f := range frames {
		t.Run(f.FrameType(), func(t *testing.T) {
			next, err := Fold(prior, f)
			require.NoError(t, err)
			if diff := cmp.Diff(prior, next); diff != "" {
				t.Errorf("aggregate changed (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFoldMalformedFrames(t *testing.T) {
	cases := []struct {
		name  string
		frame fleet.Frame
		field string
	}{
		{"nil frame", nil, ""},
		{"missing host", fleet.ResultFrame{Rows: []fleet.ResultRow{}}, "host"},
		{"missing host id", fleet.ResultFrame{Host: &fleet.CampaignHost{Hostname: "x"}, Rows: []fleet.ResultRow{}}, "host.id"},
		{"missing hostname", fleet.ResultFrame{Host: &fleet.CampaignHost{ID: 3}, Rows: []fleet.ResultRow{}}, "host.hostname"},
		{"missing rows", fleet.ResultFrame{Host: &fleet.CampaignHost{ID: 3, Hostname: "x"}}, "rows"},
		{"nil result pointer", (*fleet.ResultFrame)(nil), ""},
		{"undecodable", fleet.MalformedFrame{Type: fleet.FrameTypeTotals, Err: errors.New("unexpected end of JSON input")}, ""},
		{"undecodable pointer", &fleet.MalformedFrame{Type: fleet.FrameTypeResult, Err: errors.New("unexpected end of JSON input")}, ""},
		{"result pointer missing host", &fleet.ResultFrame{Rows: []fleet.ResultRow{}}, "host"},
		{"nil totals pointer", (*fleet.TotalsFrame)(nil), ""},
		{"nil status pointer", (*fleet.StatusFrame)(nil), ""},
		{"nil error pointer", (*fleet.ErrorFrame)(nil), ""},
		{"nil unknown pointer", (*fleet.UnknownFrame)(nil), ""},
		{"nil malformed pointer", (*fleet.MalformedFrame)(nil), ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			prior := campaignWithResults()
			snapshot := prior.Clone()

			next, err := Fold(prior, c.frame)
			require.Error(t, err)
			assert.True(t, fleet.IsMalformedFrame(err))
			var mfe *fleet.MalformedFrameError
			require.ErrorAs(t, err, &mfe)
			assert.Equal(t, c.field, mfe.Field)

			if diff := cmp.Diff(snapshot, next); diff != "" {
				t.Errorf("aggregate changed (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(snapshot, prior); diff != "" {
				t.Errorf("prior mutated (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFoldResultPointer(t *testing.T) {
	f := testResultFrame
	next, err := Fold(testCampaign, &f)
	require.NoError(t, err)
	assert.Len(t, next.QueryResults, 2)
}

func TestFoldDoesNotMutatePrior(t *testing.T) {
	prior := campaignWithResults()
	// leave spare capacity so that an in-place append would be observable
	prior.QueryResults = append(make([]fleet.QueryResultRow, 0, 10), prior.QueryResults...)
	prior.Hosts = append(make([]fleet.CampaignHost, 0, 10), prior.Hosts...)
	snapshot := prior.Clone()

	a, err := Fold(prior, testResultFrame)
	require.NoError(t, err)
	b, err := Fold(prior, fleet.ResultFrame{
		Host: &fleet.CampaignHost{ID: 9, Hostname: "other"},
		Rows: []fleet.ResultRow{{Feature: "x", Value: "y"}},
	})
	require.NoError(t, err)
	_, err = Fold(prior, testTotalsFrame)
	require.NoError(t, err)

	if diff := cmp.Diff(snapshot, prior); diff != "" {
		t.Errorf("prior mutated (-want +got):\n%s", diff)
	}
	// branches built from the same prior do not share appended rows
	assert.Equal(t, "product_name", a.QueryResults[1].Feature)
	assert.Equal(t, "x", b.QueryResults[1].Feature)
	assert.Equal(t, testHost, a.Hosts[1])
	assert.Equal(t, "other", b.Hosts[1].Hostname)
}

func TestFoldScenario(t *testing.T) {
	prior := fleet.DistributedQueryCampaign{
		ID:           4,
		QueryResults: []fleet.QueryResultRow{},
		Hosts:        []fleet.CampaignHost{},
	}

	c, err := Fold(prior, fleet.ResultFrame{
		Host: &fleet.CampaignHost{ID: 2, Hostname: "some-machine"},
		Rows: []fleet.ResultRow{{Feature: "vendor", Value: "GenuineIntel"}},
	})
	require.NoError(t, err)
	assert.Equal(t, fleet.DistributedQueryCampaign{
		ID:           4,
		QueryResults: []fleet.QueryResultRow{{Hostname: "some-machine", Feature: "vendor", Value: "GenuineIntel"}},
		Hosts:        []fleet.CampaignHost{{ID: 2, Hostname: "some-machine"}},
	}, c)

	withTotals, err := Fold(c, fleet.TotalsFrame{CampaignTotals: fleet.CampaignTotals{Count: 5, Online: 1}})
	require.NoError(t, err)
	assert.Equal(t, &fleet.CampaignTotals{Count: 5, Online: 1}, withTotals.Totals)
	assert.Equal(t, c.QueryResults, withTotals.QueryResults)
	assert.Equal(t, c.Hosts, withTotals.Hosts)

	b, err := json.Marshal(withTotals)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": 4, "query_id": 0, "status": 0, "user_id": 0,
		"hosts": [{"id": 2, "hostname": "some-machine"}],
		"query_results": [{"hostname": "some-machine", "feature": "vendor", "value": "GenuineIntel"}],
		"totals": {"count": 5, "online": 1}
	}`, string(b))
}

func TestDestroy(t *testing.T) {
	c := campaignWithResults()
	assert.Equal(t, c, Destroy(c))
}
