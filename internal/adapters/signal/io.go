package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/meshroom/internal/domain"
	"github.com/dkeye/meshroom/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			c.Close()
			ctl.writeClose(c)
			return
		case data, ok := <-c.send:
			if !ok {
				ctl.writeClose(c)
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) writeClose(c *WsSignalConn) {
	_ = c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, h domain.Handle, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("handle", string(h)).Msg("readPump closing")
		if err := ctl.Relay.Disconnect(h); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("handle", string(h)).Msg("relay disconnect")
		}
		ctl.opts.ChatLimiter.Forget(h)
		c.Close()
		cancel()
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("module", "signal").Str("handle", string(h)).Msg("readPump read error")
			}
			return
		}
		ctl.handleSignal(h, c, data)
	}
}

func (ctl *SignalWSController) handleSignal(h domain.Handle, c *WsSignalConn, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		code := protocol.CodeBadPayload
		if errors.Is(err, protocol.ErrUnknownType) {
			code = protocol.CodeUnknownType
		}
		log.Warn().Err(err).Str("module", "signal").Str("handle", string(h)).Msg("bad signal")
		ctl.sendError(c, code, err.Error())
		return
	}
	if _, ok := msg.(protocol.ChatMessage); ok && !ctl.opts.ChatLimiter.Allow(h) {
		ctl.sendError(c, protocol.CodeRateLimited, "slow down")
		return
	}
	if err := ctl.Relay.Dispatch(h, msg); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("handle", string(h)).Msg("relay dispatch")
	}
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, code protocol.ErrorCode, text string) {
	b, err := protocol.Encode(protocol.Error{Code: code, Message: text})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendError encode")
		return
	}
	_ = c.TrySend(b)
}
