package fleet

import "encoding/json"

// Frame type discriminators as they appear on the wire.
const (
	FrameTypeResult = "result"
	FrameTypeTotals = "totals"
	FrameTypeStatus = "status"
	FrameTypeError  = "error"
)

// Frame is one inbound event of a live query campaign stream. The set of
// implementations is closed: every frame kind lives in this file, and code
// switching over frames must either handle a kind or fall through to the
// no-op default.
type Frame interface {
	// FrameType returns the wire discriminator of the frame.
	FrameType() string
	isFrame()
}

// ResultFrame carries the rows one host produced for the campaign query.
type ResultFrame struct {
	DistributedQueryExecutionID uint          `json:"distributed_query_execution_id"`
	Host                        *CampaignHost `json:"host"`
	Rows                        []ResultRow   `json:"rows"`
}

func (ResultFrame) FrameType() string { return FrameTypeResult }
func (ResultFrame) isFrame()          {}

// Validate checks the fields a result frame is required to carry.
//
// Host ID 0 is reserved and reads as a missing id: host IDs are assigned
// from 1, and a decoded frame whose host has no id carries 0.
func (f ResultFrame) Validate() error {
	switch {
	case f.Host == nil:
		return NewMalformedFrameError(FrameTypeResult, "host", "is required")
	case f.Host.ID == 0:
		return NewMalformedFrameError(FrameTypeResult, "host.id", "is required")
	case f.Host.Hostname == "":
		return NewMalformedFrameError(FrameTypeResult, "host.hostname", "is required")
	case f.Rows == nil:
		return NewMalformedFrameError(FrameTypeResult, "rows", "is required")
	}
	return nil
}

// TotalsFrame carries the latest host counts for the campaign targets.
type TotalsFrame struct {
	CampaignTotals
}

func (TotalsFrame) FrameType() string { return FrameTypeTotals }
func (TotalsFrame) isFrame()          {}

// MarshalJSON encodes the totals payload flat, as it is sent on the wire.
func (f TotalsFrame) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.CampaignTotals)
}

// StatusFrame carries server-side progress. It is not folded into the
// campaign aggregate.
type StatusFrame struct {
	CampaignStatus
}

func (StatusFrame) FrameType() string { return FrameTypeStatus }
func (StatusFrame) isFrame()          {}

func (f StatusFrame) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.CampaignStatus)
}

// ErrorFrame carries an error message the server wants the consumer to see.
type ErrorFrame struct {
	Message string
}

func (ErrorFrame) FrameType() string { return FrameTypeError }
func (ErrorFrame) isFrame()          {}

func (f ErrorFrame) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Message)
}

// UnknownFrame is a frame with a type this version does not know about. It is
// kept so that newer servers can add frame kinds without breaking consumers.
type UnknownFrame struct {
	Type string
	Data json.RawMessage
}

func (f UnknownFrame) FrameType() string { return f.Type }
func (UnknownFrame) isFrame()            {}

func (f UnknownFrame) MarshalJSON() ([]byte, error) {
	if len(f.Data) == 0 {
		return []byte("null"), nil
	}
	return f.Data, nil
}

// MalformedFrame is produced by the transport when a frame of a known type
// could not be decoded. Folding it is always rejected.
type MalformedFrame struct {
	Type string
	Err  error
}

func (f MalformedFrame) FrameType() string { return f.Type }
func (MalformedFrame) isFrame()            {}

// FrameValue returns the value form of frame. Every variant satisfies Frame
// through a pointer as well, so consumers switching over frames normalise
// first. A nil frame or a typed nil pointer is malformed.
func FrameValue(frame Frame) (Frame, error) {
	switch f := frame.(type) {
	case nil:
		return nil, NewMalformedFrameError("", "", "frame is nil")
	case *ResultFrame:
		if f == nil {
			return nil, NewMalformedFrameError(FrameTypeResult, "", "frame is nil")
		}
		return *f, nil
	case *TotalsFrame:
		if f == nil {
			return nil, NewMalformedFrameError(FrameTypeTotals, "", "frame is nil")
		}
		return *f, nil
	case *StatusFrame:
		if f == nil {
			return nil, NewMalformedFrameError(FrameTypeStatus, "", "frame is nil")
		}
		return *f, nil
	case *ErrorFrame:
		if f == nil {
			return nil, NewMalformedFrameError(FrameTypeError, "", "frame is nil")
		}
		return *f, nil
	case *UnknownFrame:
		if f == nil {
			return nil, NewMalformedFrameError("", "", "frame is nil")
		}
		return *f, nil
	case *MalformedFrame:
		if f == nil {
			return nil, NewMalformedFrameError("", "", "frame is nil")
		}
		return *f, nil
	default:
		return frame, nil
	}
}

var (
	_ Frame = ResultFrame{}
	_ Frame = TotalsFrame{}
	_ Frame = StatusFrame{}
	_ Frame = ErrorFrame{}
	_ Frame = UnknownFrame{}
	_ Frame = MalformedFrame{}
)
