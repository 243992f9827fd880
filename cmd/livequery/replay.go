package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/fleetdm/livequery/server/campaigns"
	"github.com/fleetdm/livequery/server/config"
	"github.com/fleetdm/livequery/server/fleet"
	"github.com/fleetdm/livequery/server/websocket"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// maxFrameLine bounds the size of a single recorded frame.
const maxFrameLine = 10 << 20

func createReplayCmd(configManager config.Manager) *cobra.Command {
	var (
		campaignID uint
		asJSON     bool
	)
	replayCmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Fold recorded campaign frames into an aggregate",
		Long: `
Fold recorded campaign frames into an aggregate

FILE holds one JSON frame per line, as sent on campaign streams. Use "-" to
read the frames from stdin. Malformed frames are reported and skipped.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return errors.Wrap(err, "open frames file")
				}
				defer f.Close()
				r = f
			}

			initial := fleet.NewDistributedQueryCampaign(campaignID, 0, 0)
			c, rejected, err := replayFrames(r, initial, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if rejected > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d frames rejected\n", rejected)
			}
			return renderCampaign(cmd.OutOrStdout(), c, asJSON)
		},
	}

	replayCmd.Flags().UintVar(&campaignID, "campaign", 0, "ID given to the aggregate when the recording has no snapshot")
	replayCmd.Flags().BoolVar(&asJSON, "json", false, "Print the aggregate as JSON")

	return replayCmd
}

// replayFrames folds every frame read from r, one JSON message per line, into
// campaign. A snapshot message replaces the aggregate. Lines that cannot be
// parsed and frames the aggregator rejects are reported to warn and counted.
func replayFrames(r io.Reader, campaign fleet.DistributedQueryCampaign, warn io.Writer) (fleet.DistributedQueryCampaign, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxFrameLine)

	line, rejected := 0, 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		frame, err := websocket.ParseFrame(raw)
		if err != nil {
			fmt.Fprintf(warn, "line %d: %s\n", line, err)
			rejected++
			continue
		}

		snapshot, ok, err := websocket.DecodeSnapshot(frame)
		if err != nil {
			fmt.Fprintf(warn, "line %d: %s\n", line, err)
			rejected++
			continue
		}
		if ok {
			campaign = snapshot
			continue
		}

		next, err := campaigns.Fold(campaign, frame)
		if err != nil {
			fmt.Fprintf(warn, "line %d: %s\n", line, err)
			rejected++
			continue
		}
		campaign = next
	}

	return campaign, rejected, errors.Wrap(scanner.Err(), "read frames")
}
