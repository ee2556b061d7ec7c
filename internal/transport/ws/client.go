package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fbik/avito-monitor-app/internal/constants"
	"github.com/fbik/avito-monitor-app/internal/logger"
	"github.com/fbik/avito-monitor-app/pkg/logging"
	"github.com/fbik/avito-monitor-app/pkg/models"
)

var (
	ErrClientClosed = errors.New("client connection closed")
	ErrSlowClient   = errors.New("client send buffer is full")
)

// Client is one WebSocket subscriber. Frames are queued on send and written
// by writePump, the only writer on conn.
type Client struct {
	ctx          context.Context // carries client_id for logging
	id           string
	conn         *websocket.Conn
	send         chan []byte
	writeTimeout time.Duration
	logger       logger.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(ctx context.Context, id string, conn *websocket.Conn, bufferSize int, writeTimeout time.Duration, log logger.Logger) *Client {
	return &Client{
		ctx:          logging.WithClientID(ctx, id),
		id:           id,
		conn:         conn,
		send:         make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		logger:       log,
		done:         make(chan struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Deliver queues the event without blocking; a full buffer drops the frame.
func (c *Client) Deliver(event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSlowClient
	}
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

type request struct {
	Event string `json:"event"`
}

// readPump consumes client frames until the connection fails, invoking
// onRequest for each well-formed request.
func (c *Client) readPump(onRequest func(event string)) {
	defer c.Close()

	c.conn.SetReadLimit(constants.WSMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(constants.WSPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(constants.WSPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.DebugwCtx(c.ctx, "WebSocket read failed", "error", err)
			}
			return
		}

		var req request
		if err := json.Unmarshal(data, &req); err != nil || req.Event == "" {
			continue
		}
		onRequest(req.Event)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WSPingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.DebugwCtx(c.ctx, "WebSocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
