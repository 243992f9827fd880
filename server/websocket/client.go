package websocket

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// ResultsPath is the path prefix of the sockjs campaign results handler. The
// raw websocket transport lives under ResultsPath + "/websocket".
const ResultsPath = "/api/v1/livequery/results"

// ClientOptions configures the connection of a Client.
type ClientOptions struct {
	HandshakeTimeout   time.Duration
	InsecureSkipVerify bool
	Header             http.Header
}

// Client consumes the frames of one campaign from a livequery server.
type Client struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

// ResultsURL converts a server base address (http, https, ws or wss) into the
// raw websocket URL of the results handler.
func ResultsURL(serverAddr string) (string, error) {
	u, err := url.Parse(serverAddr)
	if err != nil {
		return "", errors.Wrap(err, "parse server address")
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", errors.Errorf("unsupported server address scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + ResultsPath + "/websocket"
	return u.String(), nil
}

// Dial connects to the results handler of the server and selects the
// campaign to stream.
func Dial(ctx context.Context, serverAddr string, campaignID uint, opts ClientOptions) (*Client, error) {
	u, err := ResultsURL(serverAddr)
	if err != nil {
		return nil, err
	}
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = 45 * time.Second
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify}, //nolint:gosec
	}

	conn, _, err := dialer.DialContext(ctx, u, opts.Header)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", u)
	}

	err = conn.WriteJSON(JSONMessage{
		Type: selectCampaignType,
		Data: selectCampaignData{CampaignID: campaignID},
	})
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "select campaign")
	}

	return &Client{conn: conn}, nil
}

// Frames starts reading the connection and returns the channel on which the
// decoded frames, or read errors, are delivered. The channel is closed when
// the server closes the connection, on the first read error, or when ctx is
// done. Frames must be called only once.
func (c *Client) Frames(ctx context.Context) <-chan interface{} {
	out := make(chan interface{})

	go func() {
		<-ctx.Done()
		c.Close()
	}()

	go func() {
		defer close(out)
		for {
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return
				}
				writeOrDone(ctx, out, errors.Wrap(err, "read websocket message"))
				return
			}

			var item interface{}
			frame, err := ParseFrame(data)
			if err != nil {
				item = err
			} else {
				item = frame
			}
			if writeOrDone(ctx, out, item) {
				return
			}
		}
	}()

	return out
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = c.conn.Close()
	})
	return err
}

// writeOrDone tries to write the item into the channel taking into account
// context.Done(). If context is done, returns true, otherwise false.
func writeOrDone(ctx context.Context, ch chan<- interface{}, item interface{}) bool {
	select {
	case ch <- item:
	case <-ctx.Done():
		return true
	}
	return false
}
