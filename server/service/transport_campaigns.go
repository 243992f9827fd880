package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/fleetdm/livequery/server/fleet"
	"github.com/fleetdm/livequery/server/websocket"
)

// maxFrameSize bounds the body of a published frame.
const maxFrameSize = 10 << 20

func decodeCreateCampaignRequest(ctx context.Context, r *http.Request) (interface{}, error) {
	var req fleet.CreateDistributedQueryCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, badRequest("decode campaign: " + err.Error())
	}
	return req, nil
}

func decodePublishFrameRequest(ctx context.Context, r *http.Request) (interface{}, error) {
	id, err := idFromRequest(r, "id")
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFrameSize))
	if err != nil {
		return nil, badRequest("read frame: " + err.Error())
	}
	frame, err := websocket.ParseFrame(body)
	if err != nil {
		return nil, badRequest("decode frame: " + err.Error())
	}
	if frame.FrameType() == websocket.SnapshotType {
		return nil, fleet.NewInvalidArgumentError("type", "is reserved for stream snapshots")
	}
	return publishFrameRequest{ID: id, Frame: frame}, nil
}

func decodeGetCampaignRequest(ctx context.Context, r *http.Request) (interface{}, error) {
	id, err := idFromRequest(r, "id")
	if err != nil {
		return nil, err
	}
	return getCampaignRequest{ID: id}, nil
}

func decodeListCampaignsRequest(ctx context.Context, r *http.Request) (interface{}, error) {
	return nil, nil
}

func decodeDeleteCampaignRequest(ctx context.Context, r *http.Request) (interface{}, error) {
	id, err := idFromRequest(r, "id")
	if err != nil {
		return nil, err
	}
	return deleteCampaignRequest{ID: id}, nil
}
