package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fbik/avito-monitor-app/internal/broadcast"
	"github.com/fbik/avito-monitor-app/internal/config"
	"github.com/fbik/avito-monitor-app/internal/logger"
	"github.com/fbik/avito-monitor-app/pkg/models"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func setupServer(t *testing.T) (*broadcast.Hub, string) {
	t.Helper()
	return setupServerWithLogger(t, logger.NopLogger())
}

func setupServerWithLogger(t *testing.T, log logger.Logger) (*broadcast.Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := broadcast.NewHub(logger.NopLogger(), 0)
	router := gin.New()
	NewHandler(hub, config.BroadcastConfig{ClientBufferSize: 8, WriteTimeout: time.Second}, log).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestServe_WelcomeThenStatus(t *testing.T) {
	hub, url := setupServer(t)
	conn := dial(t, url)

	welcome := readFrame(t, conn)
	assert.Equal(t, "connected", welcome.Event)
	var connected models.ConnectedPayload
	require.NoError(t, json.Unmarshal(welcome.Data, &connected))
	assert.NotEmpty(t, connected.ClientID)
	assert.Equal(t, "Connected to Avito Messages Monitor", connected.Message)

	status := readFrame(t, conn)
	assert.Equal(t, "status", status.Event)
	var payload models.StatusPayload
	require.NoError(t, json.Unmarshal(status.Data, &payload))
	assert.Equal(t, 1, payload.ConnectedClients)
	assert.Equal(t, "online", payload.Status)

	assert.Equal(t, 1, hub.Count())
}

func TestServe_LogsCarryClientID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	_, url := setupServerWithLogger(t, logger.FromZap(zap.New(core)))
	conn := dial(t, url)

	var connected models.ConnectedPayload
	require.NoError(t, json.Unmarshal(readFrame(t, conn).Data, &connected))
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"event": "unknown"}))
	require.Eventually(t, func() bool {
		return logs.FilterMessage("Ignoring unknown client request").Len() == 1
	}, 2*time.Second, 5*time.Millisecond)

	for _, msg := range []string{"WebSocket client connected", "Ignoring unknown client request"} {
		entries := logs.FilterMessage(msg).All()
		require.Len(t, entries, 1, msg)
		assert.Equal(t, connected.ClientID, entries[0].ContextMap()["client_id"], msg)
	}
}

func TestServe_ReceivesBroadcasts(t *testing.T) {
	hub, url := setupServer(t)
	conn := dial(t, url)
	readFrame(t, conn)
	readFrame(t, conn)

	hub.Publish(models.NewEvent(models.EventMessageIngested, models.MessageIngestedPayload{
		Message: models.Message{ID: "1", Sender: "John Smith", Text: "hello"},
	}))

	f := readFrame(t, conn)
	assert.Equal(t, "message-ingested", f.Event)
	var payload models.MessageIngestedPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, "hello", payload.Message.Text)
}

func TestServe_GetStatusAnsweredToRequesterOnly(t *testing.T) {
	_, url := setupServer(t)
	a := dial(t, url)
	readFrame(t, a)
	readFrame(t, a)

	b := dial(t, url)
	readFrame(t, b)
	readFrame(t, b)

	require.NoError(t, a.WriteJSON(map[string]string{"event": "get_status"}))

	f := readFrame(t, a)
	assert.Equal(t, "status", f.Event)
	var payload models.StatusPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, 2, payload.ConnectedClients)

	require.NoError(t, b.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	var none frame
	assert.Error(t, b.ReadJSON(&none))
}

func TestServe_DisconnectUnsubscribes(t *testing.T) {
	hub, url := setupServer(t)
	conn := dial(t, url)
	readFrame(t, conn)

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestClient_DropsWhenBufferFull(t *testing.T) {
	c := newClient(context.Background(), "c1", nil, 1, time.Second, logger.NopLogger())

	require.NoError(t, c.Deliver(models.NewEvent(models.EventStatus, nil)))
	assert.ErrorIs(t, c.Deliver(models.NewEvent(models.EventStatus, nil)), ErrSlowClient)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Deliver(models.NewEvent(models.EventStatus, nil)), ErrClientClosed)
}
