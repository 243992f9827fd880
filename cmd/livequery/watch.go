package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/cenkalti/backoff/v4"
	"github.com/fatih/color"
	"github.com/fleetdm/livequery/server/campaigns"
	"github.com/fleetdm/livequery/server/config"
	"github.com/fleetdm/livequery/server/fleet"
	"github.com/fleetdm/livequery/server/websocket"
	kitlog "github.com/go-kit/kit/log"
	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type watchOptions struct {
	campaignID   uint
	asJSON       bool
	exitOnFinish bool
}

func createWatchCmd(configManager config.Manager) *cobra.Command {
	var opts watchOptions
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a live query campaign",
		Long: `
Follow a live query campaign

Connects to a livequery server, folds every frame of the campaign into a local
aggregate and prints the aggregate when the stream ends or on interrupt.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.campaignID == 0 {
				return errors.New("--campaign is required")
			}
			config := configManager.LoadConfig()
			if err := config.Validate(); err != nil {
				return err
			}
			logger := initLogger(config.Logging, os.Stderr)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return watchCampaign(ctx, logger, config.Watch, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	watchCmd.Flags().UintVar(&opts.campaignID, "campaign", 0, "ID of the campaign to follow")
	watchCmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the aggregate as JSON")
	watchCmd.Flags().BoolVar(&opts.exitOnFinish, "exit", false, "Exit once every online host has responded")

	return watchCmd
}

// dialWithRetry connects to the server, retrying with exponential backoff
// while the server cannot be reached. An invalid server address is not
// retried.
func dialWithRetry(ctx context.Context, cfg config.WatchConfig, campaignID uint) (*websocket.Client, error) {
	if _, err := websocket.ResultsURL(cfg.ServerURL); err != nil {
		return nil, err
	}

	retryStrategy := backoff.NewExponentialBackOff()
	retryStrategy.InitialInterval = 250 * time.Millisecond
	retryStrategy.MaxElapsedTime = 30 * time.Second

	var client *websocket.Client
	err := backoff.Retry(func() error {
		c, err := websocket.Dial(ctx, cfg.ServerURL, campaignID, websocket.ClientOptions{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		})
		if err != nil {
			return err
		}
		client = c
		return nil
	}, backoff.WithContext(retryStrategy, ctx))
	if err != nil {
		return nil, err
	}
	return client, nil
}

// readSnapshot waits for the aggregate the server sends first on a stream.
func readSnapshot(ctx context.Context, frames <-chan interface{}) (fleet.DistributedQueryCampaign, error) {
	select {
	case item, ok := <-frames:
		if !ok {
			return fleet.DistributedQueryCampaign{}, errors.New("server closed the stream before sending the campaign")
		}
		switch item := item.(type) {
		case error:
			return fleet.DistributedQueryCampaign{}, pkgerrors.Wrap(item, "read campaign")
		case fleet.ErrorFrame:
			return fleet.DistributedQueryCampaign{}, campaigns.ServerError{Message: item.Message}
		case fleet.Frame:
			c, ok, err := websocket.DecodeSnapshot(item)
			if err != nil {
				return fleet.DistributedQueryCampaign{}, err
			}
			if !ok {
				return fleet.DistributedQueryCampaign{}, pkgerrors.Errorf("unexpected %q message before the campaign", item.FrameType())
			}
			return c, nil
		default:
			return fleet.DistributedQueryCampaign{}, pkgerrors.Errorf("unexpected stream element %T", item)
		}
	case <-ctx.Done():
		return fleet.DistributedQueryCampaign{}, ctx.Err()
	}
}

func watchCampaign(
	ctx context.Context,
	logger kitlog.Logger,
	cfg config.WatchConfig,
	opts watchOptions,
	out, progress io.Writer,
) error {
	client, err := dialWithRetry(ctx, cfg, opts.campaignID)
	if err != nil {
		return pkgerrors.Wrap(err, "connect to server")
	}
	defer client.Close()

	followCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := client.Frames(followCtx)
	initial, err := readSnapshot(followCtx, frames)
	if err != nil {
		return err
	}

	var (
		mu     sync.Mutex
		latest = initial
		status *fleet.CampaignStatus
	)

	// See charsets at
	// https://godoc.org/github.com/briandowns/spinner#pkg-variables
	s := spinner.New(spinner.CharSets[24], 200*time.Millisecond)
	s.Writer = progress
	s.Start()
	defer s.Stop()

	done := make(chan fleet.DistributedQueryCampaign, 1)
	go func() {
		final, _ := campaigns.Follow(followCtx, logger, initial, frames, campaigns.FollowHooks{
			OnUpdate: func(c fleet.DistributedQueryCampaign, _ fleet.Frame) {
				mu.Lock()
				latest = c
				mu.Unlock()
			},
			OnStatus: func(st fleet.CampaignStatus) {
				mu.Lock()
				status = &st
				mu.Unlock()
				if opts.exitOnFinish && st.Status == fleet.CampaignStatusFinished {
					cancel()
				}
			},
			OnError: func(err error) {
				var se campaigns.ServerError
				if errors.As(err, &se) {
					color.New(color.FgRed).Fprintf(progress, "Error from server: %s\n", se.Message)
					return
				}
				color.New(color.FgYellow).Fprintf(progress, "Error: %s\n", err)
			},
		})
		done <- final
	}()

	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = 500 * time.Millisecond
	}
	tick := time.NewTicker(refresh)
	defer tick.Stop()

	for {
		select {
		case final := <-done:
			s.Stop()
			return renderCampaign(out, final, opts.asJSON)
		case <-tick.C:
			mu.Lock()
			s.Suffix = progressLine(latest, status)
			mu.Unlock()
		}
	}
}
