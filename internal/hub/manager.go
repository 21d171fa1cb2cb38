package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"minchat/internal/event"
	"minchat/internal/model"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type inboundMessage struct {
	event  event.WsEvent
	client *Client
}

// Commands is what the hub invokes for inbound socket traffic and
// connection lifecycle. Wired after construction because the service
// that implements it needs the hub as its notifier.
type Commands interface {
	ChangeFocus(ctx context.Context, userID, peerID string) error
	SetStatusMessage(ctx context.Context, userID, text string) error
	SetActive(ctx context.Context, userID string, active bool) error
}

// Hub keeps one live connection per user and fans every event out to all
// of them. A single run loop drains the broadcast channel, so events
// published from one goroutine reach every client in publish order.
type Hub struct {
	clients   map[string]*Client
	clientsMu sync.RWMutex

	broadcast chan event.WsEvent
	inbound   chan inboundMessage

	commands Commands
	logger   *zap.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:   make(map[string]*Client),
		broadcast: make(chan event.WsEvent, 1024), // buffer size for broadcast
		inbound:   make(chan inboundMessage, 4096), // buffer for burst handling
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	// run manager loop
	go h.run()

	// start worker loop
	for i := 0; i < workerPoolSize; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in, ok := <-h.inbound:
					if !ok {
						return
					}

					h.handleEvent(in.event, in.client)
				}
			}
		}()
	}

	return h
}

// SetCommands wires the command sink in after construction.
func (h *Hub) SetCommands(commands Commands) {
	h.commands = commands
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case ev := <-h.broadcast:
			h.deliverToAll(ev)
		}
	}
}

func (h *Hub) handleEvent(ev event.WsEvent, c *Client) {
	if h.commands == nil {
		h.logger.Warn("inbound event before commands were wired",
			zap.String("event", ev.Event),
		)
		return
	}

	switch ev.Event {
	case event.EventChatFocus:
		var payload event.FocusChangePayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			h.logger.Warn("failed to unmarshal focus payload",
				zap.String("client_id", c.ID),
				zap.Error(err),
			)
			return
		}

		if err := h.commands.ChangeFocus(h.ctx, c.userID, payload.PeerID); err != nil {
			h.logger.Warn("focus change rejected",
				zap.String("user_id", c.userID),
				zap.String("peer_id", payload.PeerID),
				zap.Error(err),
			)
		}
	case event.EventSetStatus:
		var payload event.SetStatusPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			h.logger.Warn("failed to unmarshal status payload",
				zap.String("client_id", c.ID),
				zap.Error(err),
			)
			return
		}

		if err := h.commands.SetStatusMessage(h.ctx, c.userID, payload.StatusMessage); err != nil {
			h.logger.Warn("status update rejected",
				zap.String("user_id", c.userID),
				zap.Error(err),
			)
		}
	default:
		h.logger.Warn("unknown event type", zap.String("event", ev.Event))
	}
}

func (h *Hub) deliverToAll(ev event.WsEvent) {
	// collect clients while holding RLock
	h.clientsMu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.RUnlock()

	// deliver to clients without holding lock
	for _, c := range clients {
		if c.SafeSend(ev, sendTimeout) {
			continue
		}

		// egress full -> apply policy
		if kickOnFull && !c.IsClosed() {
			h.logger.Warn("egress full, dropping client",
				zap.String("client_id", c.ID),
				zap.String("user_id", c.userID),
			)
			c.Close()
		}
	}
}

// addClient registers c as the user's live connection, replacing and
// closing any previous one. One connection per user.
func (h *Hub) addClient(c *Client) {
	h.clientsMu.Lock()
	old, replaced := h.clients[c.userID]
	h.clients[c.userID] = c
	h.clientsMu.Unlock()

	if replaced && old != c {
		old.Close()
	}

	h.logger.Debug("client registered",
		zap.String("client_id", c.ID),
		zap.String("user_id", c.userID),
	)
}

// dropClient removes c and reports whether it was still the user's
// registered connection. A connection beaten by its replacement reports
// false so it cannot flip the user offline.
func (h *Hub) dropClient(c *Client) bool {
	h.clientsMu.Lock()
	current, ok := h.clients[c.userID]
	wasCurrent := ok && current == c
	if wasCurrent {
		delete(h.clients, c.userID)
	}
	h.clientsMu.Unlock()

	c.Close()

	h.logger.Debug("client removed",
		zap.String("client_id", c.ID),
		zap.String("user_id", c.userID),
		zap.Bool("was_current", wasCurrent),
	)
	return wasCurrent
}

func (h *Hub) activate(userID string) {
	if h.commands == nil {
		return
	}
	if err := h.commands.SetActive(h.ctx, userID, true); err != nil {
		h.logger.Warn("activation failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (h *Hub) deactivate(userID string) {
	if h.commands == nil {
		return
	}
	if err := h.commands.SetActive(h.ctx, userID, false); err != nil {
		h.logger.Warn("deactivation failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (h *Hub) Stop() {
	h.cancel()

	// Close all client connections
	h.clientsMu.RLock()
	for _, client := range h.clients {
		client.Close()
	}
	h.clientsMu.RUnlock()

	close(h.inbound)
	h.wg.Wait()
}

// -----------------------------------------------------------------
// event.Notifier implementation
// -----------------------------------------------------------------

func (h *Hub) NotifyNewMessage(msg *model.Message) {
	h.publish(event.EventNewMessage, event.NewMessagePayload{Message: msg})
}

func (h *Hub) NotifyEdited(messageID, newContent string, editedAt time.Time) {
	h.publish(event.EventEditedMessage, event.EditedMessagePayload{
		MessageID: messageID,
		Content:   newContent,
		EditedAt:  editedAt,
	})
}

func (h *Hub) NotifyDeleted(messageID string) {
	h.publish(event.EventDeletedMessage, event.DeletedMessagePayload{MessageID: messageID})
}

func (h *Hub) NotifyCountChanged(ownerID, peerID string, count int, isRead bool) {
	h.publish(event.EventCountChanged, event.CountChangedPayload{
		OwnerID: ownerID,
		PeerID:  peerID,
		Count:   count,
		IsRead:  isRead,
	})
}

func (h *Hub) NotifyPresenceChanged(userID string, isActive bool) {
	h.publish(event.EventPresenceChanged, event.PresenceChangedPayload{
		UserID:   userID,
		IsActive: isActive,
	})
}

func (h *Hub) NotifyStatusMessage(userID, statusMessage string) {
	h.publish(event.EventStatusMessage, event.StatusMessagePayload{
		UserID:        userID,
		StatusMessage: statusMessage,
	})
}

// publish queues one event for the run loop. The send blocks rather than
// drops so a caller emitting a primary event then a derived one can never
// have only the derived one arrive.
func (h *Hub) publish(kind string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal event payload",
			zap.String("event", kind),
			zap.Error(err),
		)
		return
	}

	select {
	case h.broadcast <- event.WsEvent{Event: kind, Payload: raw}:
	case <-h.ctx.Done():
	}
}

// -----------------------------------------------------------------
// WebSocket endpoint
// -----------------------------------------------------------------

var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	switch origin {
	case "", "http://localhost:4200", "http://localhost:3000":
		return true
	default:
		return false
	}
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := websocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	RegisterClient(userID, conn, h)
	h.activate(userID)
}
