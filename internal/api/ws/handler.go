package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"foundry-telemetry/internal/feed"
	"foundry-telemetry/internal/observability/metrics"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades dashboard connections and pushes feed snapshots on an interval.
type Handler struct {
	hub      *Hub
	feed     *feed.Service
	interval time.Duration
	logger   *log.Logger
}

// NewHandler constructs a handler. interval defaults to 5s.
func NewHandler(hub *Hub, svc *feed.Service, interval time.Duration, logger *log.Logger) *Handler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{hub: hub, feed: svc, interval: interval, logger: logger}
}

// ServeHTTP handles GET /ws.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("ws upgrade error: %v", err)
		return
	}

	client := &Client{
		hub:  h.hub,
		conn: conn,
		send: make(chan []byte, 64),
	}
	h.hub.Register(client)
	go client.writePump()

	if msg, err := NewEnvelope(EventConnectionEstablished, MessagePayload{Message: "WebSocket connection established successfully"}); err == nil {
		h.sendTo(client, msg)
	}
	for _, msg := range h.Snapshot(r.Context()) {
		h.sendTo(client, msg)
	}

	h.readPump(client)
}

// Run broadcasts a snapshot every interval until ctx is cancelled.
func (h *Handler) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.hub.ClientCount() == 0 {
				continue
			}
			for _, msg := range h.Snapshot(ctx) {
				h.hub.Broadcast(msg)
			}
		}
	}
}

// Snapshot builds one round of feed events. A failed read yields a single error event.
func (h *Handler) Snapshot(ctx context.Context) [][]byte {
	msgs, err := h.snapshot(ctx)
	if err != nil {
		h.logger.Printf("ws snapshot error: %v", err)
		msg, encErr := NewEnvelope(EventError, MessagePayload{Message: err.Error()})
		if encErr != nil {
			return nil
		}
		metrics.IncFeedPush(EventError)
		return [][]byte{msg}
	}
	return msgs
}

func (h *Handler) snapshot(ctx context.Context) ([][]byte, error) {
	latest, err := h.feed.Latest(ctx)
	if err != nil {
		return nil, err
	}
	power, err := h.feed.CurrentPower(ctx)
	if err != nil {
		return nil, err
	}
	today, err := h.feed.Today(ctx)
	if err != nil {
		return nil, err
	}
	view, err := h.feed.PowerView(ctx)
	if err != nil {
		return nil, err
	}
	thisMonth, err := h.feed.Monthly(ctx, h.feed.Now())
	if err != nil {
		return nil, err
	}
	prevMonth, err := h.feed.Monthly(ctx, h.feed.PreviousMonth())
	if err != nil {
		return nil, err
	}

	events := []struct {
		name string
		data any
	}{
		{EventLatestEnergyData, latest},
		{EventCurrentPower, CurrentPowerPayload{TotalPower: power}},
		{EventTodayData, today},
		{EventPowerView, view},
		{EventMonthlyData, MonthlyPayload{
			ThisMonthConsumption:     thisMonth.Consumption,
			PreviousMonthConsumption: prevMonth.Consumption,
		}},
		{EventConsumptionPerTonne, PerTonnePayload{
			ThisMonthConsumptionPerTonne:     thisMonth.ConsumptionPerTonne,
			PreviousMonthConsumptionPerTonne: prevMonth.ConsumptionPerTonne,
		}},
	}
	msgs := make([][]byte, 0, len(events))
	for _, e := range events {
		msg, err := NewEnvelope(e.name, e.data)
		if err != nil {
			return nil, err
		}
		metrics.IncFeedPush(e.name)
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (h *Handler) sendTo(c *Client, msg []byte) {
	select {
	case c.send <- msg:
	default:
	}
}

// readPump drains client frames until the connection closes.
func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Printf("ws read error: %v", err)
			}
			return
		}
	}
}
