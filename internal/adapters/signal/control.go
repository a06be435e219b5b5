package signal

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// CloseUnauthorized is the application close code for a rejected credential.
const CloseUnauthorized = 4401

var (
	errOutboxClosed = errors.New("outbound queue closed")
	errMalformed    = errors.New("malformed frame")
	errIdle         = errors.New("idle timeout")
)

// closeWith sends a close frame carrying code and releases the connection.
func (c *WsSignalConn) closeWith(code int, text string, wait time.Duration) {
	msg := websocket.FormatCloseMessage(code, text)
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wait)); err != nil &&
		!errors.Is(err, websocket.ErrCloseSent) {
		log.Debug().Err(err).Str("module", "signal").Int("code", code).Msg("write close frame")
	}
	c.Close()
}

func (c *WsSignalConn) ping(wait time.Duration) error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wait))
}
