package fleet

import "context"

// FrameStore defines functions for sending and receiving live query campaign
// frames through a pub/sub system.
type FrameStore interface {
	// WriteFrame publishes a frame for the campaign. Implementations return
	// an error whose NoSubscriber method reports true when nobody is reading
	// the campaign channel.
	WriteFrame(campaignID uint, frame Frame) error

	// ReadChannel returns a channel to be read for incoming frames of the
	// campaign. Elements are Frame values, or errors when the underlying
	// transport failed to deliver or decode a message. The channel is closed
	// once ctx is done.
	ReadChannel(ctx context.Context, campaignID uint) (<-chan interface{}, error)

	// HealthCheck returns an error if the FrameStore is not healthy.
	HealthCheck() error
}
