package campaigns

import (
	"github.com/fleetdm/livequery/server/fleet"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	framesFolded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "livequery",
			Subsystem: "campaigns",
			Name:      "frames_folded_total",
			Help:      "Number of frames folded into campaign aggregates, by frame type.",
		},
		[]string{"type"},
	)
	framesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "livequery",
			Subsystem: "campaigns",
			Name:      "frames_rejected_total",
			Help:      "Number of malformed frames rejected, by frame type.",
		},
		[]string{"type"},
	)
	activeCampaigns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "livequery",
			Subsystem: "campaigns",
			Name:      "active",
			Help:      "Number of campaign aggregates currently tracked.",
		},
	)
)

func init() {
	prometheus.MustRegister(framesFolded, framesRejected, activeCampaigns)
}

// knownFrameLabel keeps the cardinality of the frame type label bounded when
// servers send frame kinds this version does not know about.
func knownFrameLabel(frameType string) string {
	switch frameType {
	case "result", "totals", "status", "error":
		return frameType
	default:
		return "unknown"
	}
}

// frameTypeOf returns the wire type of frame, tolerating nil and typed nil
// pointers.
func frameTypeOf(frame fleet.Frame) string {
	value, err := fleet.FrameValue(frame)
	if err != nil {
		var mfe *fleet.MalformedFrameError
		if errors.As(err, &mfe) {
			return mfe.FrameType
		}
		return ""
	}
	return value.FrameType()
}

func observeFold(frameType string, err error) {
	label := knownFrameLabel(frameType)
	if err != nil {
		framesRejected.WithLabelValues(label).Inc()
		return
	}
	framesFolded.WithLabelValues(label).Inc()
}
