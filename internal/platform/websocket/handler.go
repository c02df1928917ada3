package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/woundcare/woundcare/internal/domain/session"
	"github.com/woundcare/woundcare/internal/platform/apperr"
	"github.com/woundcare/woundcare/internal/platform/docstore"
	"github.com/woundcare/woundcare/internal/platform/live"
)

// Client message actions.
const (
	ActionAuth        = "auth"
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// writeWait bounds the close frame sent to a lagged client.
const writeWait = 5 * time.Second

// Subscription kinds.
const (
	KindCollection = "collection"
	KindDocument   = "document"
)

// ClientMessage is an inbound message from a WebSocket client.
//
// auth signs the connection in with a session token, or out when Token is
// empty. subscribe opens or updates the subscription ID; unsubscribe
// closes it.
type ClientMessage struct {
	Action string          `json:"action"`
	Token  string          `json:"token,omitempty"`
	ID     string          `json:"id,omitempty"`
	Kind   string          `json:"kind,omitempty"`
	Query  live.Descriptor `json:"query"`
}

// SessionOpener returns a settled session signed in with token.
type SessionOpener func(ctx context.Context, token string) (*session.Session, error)

// Handler upgrades HTTP requests to WebSocket connections.
type Handler struct {
	hub      *Hub
	store    *docstore.Client
	open     SessionOpener
	errs     *apperr.Emitter
	logger   zerolog.Logger
	upgrader gorillawebsocket.Upgrader
}

// NewHandler creates a handler. Permission errors of every connection are
// forwarded to errs. An empty origins list accepts any origin.
func NewHandler(hub *Hub, store *docstore.Client, open SessionOpener, errs *apperr.Emitter, logger zerolog.Logger, origins []string) *Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &Handler{
		hub:    hub,
		store:  store,
		open:   open,
		errs:   errs,
		logger: logger.With().Str("component", "websocket").Logger(),
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || allowed["*"] || origin == "" || allowed[origin]
			},
		},
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", h.HandleConnect)
}

// HandleConnect upgrades the request, registers the client with the hub and
// starts its read and write pumps.
func (h *Handler) HandleConnect(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	conn := h.newConnection()
	h.hub.Register(conn.client)
	h.logger.Debug().Str("client", conn.client.ID).Msg("websocket connected")

	go h.writePump(conn.client, ws)
	go h.readPump(conn, ws)
	return nil
}

func (h *Handler) readPump(conn *connection, ws *gorillawebsocket.Conn) {
	defer func() {
		conn.close()
		ws.Close()
		h.logger.Debug().Str("client", conn.client.ID).Msg("websocket disconnected")
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			conn.sendError("", "malformed message")
			continue
		}
		conn.handle(msg)
	}
}

// writePump writes buffered events until the client is unregistered. A
// lagged client is closed with 1013 so that it reconnects and resubscribes;
// closing the socket also ends its read pump.
func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for {
		select {
		case message, ok := <-client.Send:
			if !ok {
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-client.Lagged():
			msg := gorillawebsocket.FormatCloseMessage(gorillawebsocket.CloseTryAgainLater, "client too slow")
			_ = ws.WriteControl(gorillawebsocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}

type liveSubscription interface {
	Update(live.Descriptor)
	Close()
}

type openSub struct {
	kind string
	sub  liveSubscription
}

// connection is the client scope of one WebSocket: its session, its live
// scope and the subscriptions opened by the client.
type connection struct {
	h      *Handler
	client *Client
	scope  *live.Scope
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger

	mu         sync.Mutex
	sess       *session.Session
	offSession func()
	subs       map[string]openSub
}

func (h *Handler) newConnection() *connection {
	ctx, cancel := context.WithCancel(context.Background())
	conn := &connection{
		h:      h,
		client: &Client{ID: uuid.New().String(), Send: make(chan []byte, 256)},
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]openSub),
	}
	conn.logger = h.logger.With().Str("client", conn.client.ID).Logger()
	conn.client.onEvent = conn.onHubEvent

	errs := apperr.NewEmitter()
	errs.On(apperr.EventPermissionError, func(pe *apperr.PermissionError) {
		conn.send(EventPermissionError, "", pe)
		if h.errs != nil {
			h.errs.Emit(apperr.EventPermissionError, pe)
		}
	})
	conn.scope = live.NewScope(ctx, h.store, conn, errs, conn.logger)
	return conn
}

// ViewerID implements live.Viewer.
func (c *connection) ViewerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.ViewerID()
}

// ViewerRole implements live.Viewer.
func (c *connection) ViewerRole() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.ViewerRole()
}

func (c *connection) handle(msg ClientMessage) {
	switch msg.Action {
	case ActionAuth:
		c.authenticate(msg.Token)
	case ActionSubscribe:
		c.subscribe(msg)
	case ActionUnsubscribe:
		c.unsubscribe(msg.ID)
	default:
		c.sendError(msg.ID, "unknown action "+msg.Action)
	}
}

func (c *connection) authenticate(token string) {
	c.signOut()
	if token == "" {
		c.send(EventSession, "", session.Snapshot{State: session.StateAnonymous})
		c.scope.Refresh()
		return
	}

	sess, err := c.h.open(c.ctx, token)
	if err != nil {
		c.logger.Debug().Err(err).Msg("websocket authentication failed")
		c.sendError("", "authentication failed")
		c.scope.Refresh()
		return
	}

	off := sess.OnChange(func(snap session.Snapshot) {
		c.send(EventSession, "", snap)
		if snap.State.Settled() {
			c.scope.Refresh()
		}
	})
	c.mu.Lock()
	c.sess, c.offSession = sess, off
	c.mu.Unlock()

	c.h.hub.Subscribe(c.client, []string{UserTopic(sess.ViewerID())})
	c.send(EventSession, "", sess.Snapshot())
	c.scope.Refresh()
}

func (c *connection) signOut() {
	c.mu.Lock()
	sess, off := c.sess, c.offSession
	c.sess, c.offSession = nil, nil
	c.mu.Unlock()

	if sess == nil {
		return
	}
	off()
	c.h.hub.Unsubscribe(c.client, []string{UserTopic(sess.ViewerID())})
	sess.Close()
}

// onHubEvent runs under the hub lock.
func (c *connection) onHubEvent(ev Event) {
	if ev.Type != EventRoleUpdated {
		return
	}
	go c.reloadSession()
}

func (c *connection) reloadSession() {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return
	}
	if _, err := sess.RefreshUser(c.ctx); err != nil {
		c.logger.Debug().Err(err).Msg("session reload after role change failed")
	}
}

func (c *connection) subscribe(msg ClientMessage) {
	if msg.ID == "" {
		c.sendError("", "subscription id is required")
		return
	}
	kind := msg.Kind
	if kind == "" {
		kind = KindCollection
	}

	c.mu.Lock()
	cur, ok := c.subs[msg.ID]
	c.mu.Unlock()
	if ok && cur.kind == kind {
		cur.sub.Update(msg.Query)
		return
	}
	if ok {
		cur.sub.Close()
	}

	id := msg.ID
	var sub liveSubscription
	switch kind {
	case KindCollection:
		sub = live.Collection(c.scope, msg.Query, live.Raw, func(env live.Envelope[[]live.Record[map[string]any]]) {
			c.send(EventSnapshot, id, env)
		})
	case KindDocument:
		sub = live.Document(c.scope, msg.Query, live.Raw, func(env live.Envelope[*live.Record[map[string]any]]) {
			c.send(EventSnapshot, id, env)
		})
	default:
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		c.sendError(id, "unknown subscription kind "+kind)
		return
	}

	c.mu.Lock()
	c.subs[id] = openSub{kind: kind, sub: sub}
	c.mu.Unlock()
}

func (c *connection) unsubscribe(id string) {
	c.mu.Lock()
	cur, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()
	if ok {
		cur.sub.Close()
	}
}

func (c *connection) send(typ, id string, data any) {
	ev, err := NewEvent(typ, id, data)
	if err != nil {
		c.logger.Error().Err(err).Str("type", typ).Msg("failed to encode event")
		return
	}
	c.h.hub.Send(c.client, ev)
}

func (c *connection) sendError(id, message string) {
	c.send(EventError, id, map[string]string{"message": message})
}

// close tears the connection scope down.
func (c *connection) close() {
	c.scope.Close()
	c.signOut()
	c.h.hub.Unregister(c.client)
	c.cancel()
}
