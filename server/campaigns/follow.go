package campaigns

import (
	"context"
	"fmt"

	"github.com/fleetdm/livequery/server/fleet"
	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
)

// FollowHooks are the optional callbacks invoked while a campaign stream is
// followed. They run on the following goroutine, before the next frame is
// read.
type FollowHooks struct {
	// OnUpdate receives every aggregate produced by a successfully folded
	// frame, along with that frame.
	OnUpdate func(campaign fleet.DistributedQueryCampaign, frame fleet.Frame)
	// OnStatus receives the progress reported by status frames.
	OnStatus func(status fleet.CampaignStatus)
	// OnError receives transport errors, error frames sent by the server and
	// rejected frames. None of them stop the stream.
	OnError func(err error)
}

// ServerError is an error message the server sent on the stream.
type ServerError struct {
	Message string
}

func (e ServerError) Error() string { return "server error: " + e.Message }

// Follow threads the campaign through every frame read from stream, until
// the stream is closed or ctx is done, and returns the last good aggregate.
// Stream elements are fleet.Frame values or transport errors. The returned
// error is ctx.Err() when the context ended the stream, nil otherwise.
func Follow(
	ctx context.Context,
	logger kitlog.Logger,
	initial fleet.DistributedQueryCampaign,
	stream <-chan interface{},
	hooks FollowHooks,
) (fleet.DistributedQueryCampaign, error) {
	campaign := initial
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	logger = kitlog.With(logger, "campaign_id", initial.ID)

	reportErr := func(err error) {
		if hooks.OnError != nil {
			hooks.OnError(err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return campaign, ctx.Err()

		case msg, ok := <-stream:
			if !ok {
				level.Debug(logger).Log("msg", "campaign stream closed", "rows", len(campaign.QueryResults))
				return campaign, nil
			}

			switch msg := msg.(type) {
			case error:
				level.Info(logger).Log("msg", "error reading campaign stream", "err", msg)
				reportErr(errors.Wrap(msg, "read campaign stream"))

			case fleet.Frame:
				next, err := Fold(campaign, msg)
				observeFold(frameTypeOf(msg), err)
				if err != nil {
					level.Debug(logger).Log("msg", "skipping malformed frame", "err", err)
					reportErr(err)
					continue
				}
				campaign = next

				value, _ := fleet.FrameValue(msg)
				switch f := value.(type) {
				case fleet.StatusFrame:
					if hooks.OnStatus != nil {
						hooks.OnStatus(f.CampaignStatus)
					}
				case fleet.ErrorFrame:
					reportErr(ServerError{Message: f.Message})
				}
				if hooks.OnUpdate != nil {
					hooks.OnUpdate(campaign, msg)
				}

			default:
				level.Debug(logger).Log("msg", "ignoring unexpected stream element", "type", fmt.Sprintf("%T", msg))
			}
		}
	}
}
