package fleet

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistributedQueryStatusString(t *testing.T) {
	assert.Equal(t, "waiting", QueryWaiting.String())
	assert.Equal(t, "running", QueryRunning.String())
	assert.Equal(t, "complete", QueryComplete.String())
	assert.Equal(t, "unknown(7)", DistributedQueryStatus(7).String())
}

func TestCampaignMarshalEmptyCollections(t *testing.T) {
	b, err := json.Marshal(DistributedQueryCampaign{ID: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"query_id":0,"status":0,"user_id":0,"hosts":[],"query_results":[]}`, string(b))
}

func TestCampaignClone(t *testing.T) {
	orig := NewDistributedQueryCampaign(1, 2, 3)
	orig.Hosts = append(orig.Hosts, CampaignHost{ID: 1, Hostname: "a"})
	orig.QueryResults = append(orig.QueryResults, QueryResultRow{Hostname: "a", Feature: "f", Value: "v"})
	orig.Totals = &CampaignTotals{Count: 1, Online: 1}

	clone := orig.Clone()
	assert.Equal(t, orig, clone)

	clone.Hosts[0].Hostname = "changed"
	clone.QueryResults[0].Value = "changed"
	clone.Totals.Online = 0
	assert.Equal(t, "a", orig.Hosts[0].Hostname)
	assert.Equal(t, "v", orig.QueryResults[0].Value)
	assert.Equal(t, uint(1), orig.Totals.Online)
	assert.True(t, orig.HasHost(1))
	assert.False(t, orig.HasHost(2))
}

func TestErrorStatusCodes(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{NewCampaignNotFoundError(1), http.StatusNotFound},
		{&AlreadyExistsError{ID: 1}, http.StatusConflict},
		{NewInvalidArgumentError("id", "must be set"), http.StatusUnprocessableEntity},
		{NewMalformedFrameError(FrameTypeResult, "host", "is required"), http.StatusBadRequest},
	}
	for _, c := range cases {
		t.Run(c.err.Error(), func(t *testing.T) {
			var sc ErrWithStatusCode
			require.True(t, errors.As(fmt.Errorf("wrapped: %w", c.err), &sc))
			assert.Equal(t, c.code, sc.StatusCode())
		})
	}
}

func TestNotFoundHelpers(t *testing.T) {
	err := fmt.Errorf("get: %w", NewCampaignNotFoundError(4))
	assert.True(t, IsNotFound(err))
	assert.True(t, errors.Is(err, ErrCampaignNotFound))
	assert.Equal(t, "get: campaign 4 was not found", err.Error())
	assert.False(t, IsNotFound(errors.New("other")))
}

func TestMalformedFrameError(t *testing.T) {
	inner := errors.New("unexpected EOF")
	err := error(&MalformedFrameError{FrameType: FrameTypeTotals, Reason: "could not be decoded", Err: inner})
	assert.Equal(t, `malformed "totals" frame: could not be decoded: unexpected EOF`, err.Error())
	assert.True(t, IsMalformedFrame(err))
	assert.ErrorIs(t, err, inner)

	invalid := NewInvalidArgumentError("id", "must be set")
	invalid.Append("query_id", "must be set")
	assert.Equal(t, "validation failed: id must be set and 2 other errors", invalid.Error())
	assert.Len(t, invalid.Invalid(), 2)
}
