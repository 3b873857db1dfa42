package live

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/khaledhikmat/vs-belt/model"
	"github.com/stretchr/testify/require"
)

func dialViewer(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(h.Handler())
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBroadcastReachesViewers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub()
	go h.Run(ctx)

	conn := dialViewer(t, h)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	outcome := model.PipelineOutcome{PrimaryLabel: "high", PrimaryConfidence: 99}.WithSecondary("alto", 87.5)
	require.NoError(t, h.Broadcast(outcome))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got model.PipelineOutcome
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, outcome, got)
}

func TestViewerDisconnectIsUnregistered(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub()
	go h.Run(ctx)

	conn := dialViewer(t, h)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastNeverBlocks(t *testing.T) {
	h := NewHub()

	for i := 0; i < broadcastQueue; i++ {
		require.NoError(t, h.Broadcast(model.PipelineOutcome{PrimaryLabel: "low"}))
	}
	require.ErrorIs(t, h.Broadcast(model.PipelineOutcome{PrimaryLabel: "low"}), ErrHubBusy)
}

func TestCancelClosesViewers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	h := NewHub()
	go h.Run(ctx)

	conn := dialViewer(t, h)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
