// Package signal connects to the relay that forwards signaling messages
// between participants and the server.
package signal

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/dkeye/meshcast/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Options struct {
	URL        string
	ClientID   domain.ParticipantID
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

type Client struct {
	opts   Options
	dialer *websocket.Dialer
}

func NewClient(opts Options) *Client {
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	return &Client{opts: opts, dialer: websocket.DefaultDialer}
}

func (cl *Client) endpoint() (string, error) {
	u, err := url.Parse(cl.opts.URL)
	if err != nil {
		return "", fmt.Errorf("parse signal url: %w", err)
	}
	q := u.Query()
	q.Set("clientId", string(cl.opts.ClientID))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect dials the relay and starts the pumps. Incoming valid messages are
// delivered on the returned channel, which is closed when the connection ends.
func (cl *Client) Connect(ctx context.Context) (*WsSignalConn, <-chan domain.Message, error) {
	endpoint, err := cl.endpoint()
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("module", "signal").Str("url", endpoint).Msg("connecting")

	ws, _, err := cl.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("websocket dial: %w", err)
	}
	if cl.opts.ReadLimit > 0 {
		ws.SetReadLimit(cl.opts.ReadLimit)
	}

	conn := newWsSignalConn(ws, cl.opts.SendBuffer)
	out := make(chan domain.Message, cl.opts.SendBuffer)

	go cl.writePump(ctx, conn)
	go cl.readPump(ctx, conn, out)
	return conn, out, nil
}
