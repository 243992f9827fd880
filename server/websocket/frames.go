package websocket

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fleetdm/livequery/server/fleet"
)

// DecodeFrame turns a message read from the wire into a typed frame. Messages
// of a known type whose payload cannot be decoded, or lacks required fields,
// become a fleet.MalformedFrame so that the consumer can reject them without
// tearing down the stream. Messages of an unknown type become a
// fleet.UnknownFrame.
func DecodeFrame(msg *JSONMessage) fleet.Frame {
	raw := rawData(msg.Data)

	switch msg.Type {
	case fleet.FrameTypeResult:
		var f fleet.ResultFrame
		if err := decodeData(raw, &f); err != nil {
			return fleet.MalformedFrame{Type: msg.Type, Err: err}
		}
		if err := f.Validate(); err != nil {
			return fleet.MalformedFrame{Type: msg.Type, Err: err}
		}
		return f

	case fleet.FrameTypeTotals:
		var payload struct {
			Count           *uint `json:"count"`
			Online          *uint `json:"online"`
			Offline         uint  `json:"offline"`
			MissingInAction uint  `json:"missing_in_action"`
		}
		if err := decodeData(raw, &payload); err != nil {
			return fleet.MalformedFrame{Type: msg.Type, Err: err}
		}
		if payload.Count == nil || payload.Online == nil {
			return fleet.MalformedFrame{Type: msg.Type, Err: fleet.NewMalformedFrameError(msg.Type, "count and online", "are required")}
		}
		return fleet.TotalsFrame{CampaignTotals: fleet.CampaignTotals{
			Count:           *payload.Count,
			Online:          *payload.Online,
			Offline:         payload.Offline,
			MissingInAction: payload.MissingInAction,
		}}

	case fleet.FrameTypeStatus:
		var s fleet.CampaignStatus
		if err := decodeData(raw, &s); err != nil {
			return fleet.MalformedFrame{Type: msg.Type, Err: err}
		}
		return fleet.StatusFrame{CampaignStatus: s}

	case fleet.FrameTypeError:
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			// the server is free to send structured errors
			text = string(raw)
		}
		return fleet.ErrorFrame{Message: text}

	default:
		return fleet.UnknownFrame{Type: msg.Type, Data: raw}
	}
}

// SnapshotType is the message type the server uses to hand a new stream
// consumer the aggregate it starts from. Aggregators that do not know about it
// treat it like any other unknown frame.
const SnapshotType = "campaign"

// EncodeSnapshot wraps a campaign aggregate in the message envelope.
func EncodeSnapshot(campaign fleet.DistributedQueryCampaign) JSONMessage {
	return JSONMessage{Type: SnapshotType, Data: campaign}
}

// DecodeSnapshot returns the aggregate carried by a snapshot frame. ok is
// false when the frame is not a snapshot.
func DecodeSnapshot(frame fleet.Frame) (campaign fleet.DistributedQueryCampaign, ok bool, err error) {
	unk, isUnknown := frame.(fleet.UnknownFrame)
	if !isUnknown || unk.Type != SnapshotType {
		return fleet.DistributedQueryCampaign{}, false, nil
	}
	if err := decodeData(unk.Data, &campaign); err != nil {
		return fleet.DistributedQueryCampaign{}, true, fmt.Errorf("decode snapshot: %w", err)
	}
	return campaign, true, nil
}

// EncodeFrame wraps a frame in the message envelope sent on the wire.
func EncodeFrame(frame fleet.Frame) JSONMessage {
	return JSONMessage{Type: frame.FrameType(), Data: frame}
}

// ParseFrame decodes a raw JSON message into a frame.
func ParseFrame(data []byte) (fleet.Frame, error) {
	msg, err := parseJSONMessage(data)
	if err != nil {
		return nil, err
	}
	return DecodeFrame(msg), nil
}

func rawData(data interface{}) json.RawMessage {
	switch d := data.(type) {
	case *json.RawMessage:
		if d == nil {
			return nil
		}
		return *d
	case json.RawMessage:
		return d
	case nil:
		return nil
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return nil
		}
		return b
	}
}

func decodeData(raw json.RawMessage, v interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return fmt.Errorf("missing data")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	return nil
}
