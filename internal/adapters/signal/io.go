package signal

import (
	"context"
	"time"

	"github.com/dkeye/meshcast/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (cl *Client) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(cl.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			_ = c.Close()
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping")
				_ = c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				_ = c.Close()
				return
			}
		}
	}
}

func (cl *Client) readPump(ctx context.Context, c *WsSignalConn, out chan<- domain.Message) {
	defer func() {
		log.Info().Str("module", "signal").Msg("readPump closing")
		_ = c.Close()
		close(out)
	}()

	pongWait := cl.opts.PingPeriod * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Error().Err(err).Str("module", "signal").Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		m, err := domain.DecodeMessage(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Msg("dropping frame")
			continue
		}
		select {
		case out <- m:
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
