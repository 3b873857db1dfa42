package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/khaledhikmat/vs-belt/service/lgr"
	"golang.org/x/xerrors"
)

var ErrHubBusy = errors.New("live hub is busy")

const (
	writeWait      = 5 * time.Second
	readWait       = 60 * time.Second
	broadcastQueue = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans pipeline outcomes out to websocket viewers. Viewers only
// listen; anything they send is discarded.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, broadcastQueue),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until the context is cancelled, then closes
// every remaining viewer.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			lgr.Logger.Info("live hub context cancelled")
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			lgr.Logger.Debug("viewer connected", slog.Int("viewers", count))

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			count := len(h.clients)
			h.mutex.Unlock()
			lgr.Logger.Debug("viewer disconnected", slog.Int("viewers", count))

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					lgr.Logger.Warn("dropping viewer after failed write", lgr.Err(err))
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Broadcast encodes the payload as JSON and queues it for all viewers.
// It never blocks: a full queue returns ErrHubBusy.
func (h *Hub) Broadcast(payload any) error {
	message, err := json.Marshal(payload)
	if err != nil {
		return xerrors.Errorf("encode live payload: %w", err)
	}

	select {
	case h.broadcast <- message:
		return nil
	default:
		return ErrHubBusy
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Handler upgrades viewers and keeps reading until they go away so that
// close frames and pongs are processed.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			lgr.Logger.Warn("websocket upgrade failed", lgr.Err(err))
			return
		}
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(readWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(readWait))
			return nil
		})

		select {
		case h.register <- conn:
		case <-h.done:
			conn.Close()
			return
		}

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		select {
		case h.unregister <- conn:
		case <-h.done:
		}
	}
}

// ListenAndServe exposes the hub on /ws until the context is cancelled.
func (h *Hub) ListenAndServe(ctx context.Context, address string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	lgr.Logger.Info("live hub listening", slog.String("address", address))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return xerrors.Errorf("live hub server: %w", err)
	}
	return nil
}
