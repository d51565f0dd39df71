package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"goblet/internal/game"
	"goblet/internal/world"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultMaxMessageSize = 64 * 1024
)

// SessionWorld is what a new session plays in. Sessions never share a
// streamer or controller.
type SessionWorld struct {
	Streamer *world.Streamer
	Game     *game.Controller
	Hello    Hello
}

// SessionFactory builds the world of a new session.
type SessionFactory func(id string) (SessionWorld, error)

type HubConfig struct {
	NewSession     SessionFactory
	Logger         *log.Logger
	WriteWait      time.Duration
	MaxMessageSize int64
}

// Hub accepts websocket sessions and tracks them by id.
type Hub struct {
	newSession SessionFactory
	logger     *log.Logger
	upgrader   websocket.Upgrader
	writeWait  time.Duration
	maxSize    int64

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

func NewHub(cfg HubConfig) (*Hub, error) {
	if cfg.NewSession == nil {
		return nil, errors.New("hub requires a session factory")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "network ", log.LstdFlags|log.Lmicroseconds)
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		newSession: cfg.NewSession,
		logger:     cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		writeWait: cfg.WriteWait,
		maxSize:   cfg.MaxMessageSize,
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[string]*Session),
	}, nil
}

// ServeHTTP upgrades the request and runs the session until the client
// disconnects or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed: %v", err)
		return
	}

	id := uuid.NewString()
	sw, err := h.newSession(id)
	if err != nil {
		h.logger.Printf("session %s: create world: %v", id, err)
		message := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "world unavailable")
		conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(h.writeWait))
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()

	session := &Session{
		ID:        id,
		conn:      conn,
		streamer:  sw.Streamer,
		game:      sw.Game,
		writeWait: h.writeWait,
	}
	if !h.register(session) {
		message := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(h.writeWait))
		conn.Close()
		sw.Streamer.Close()
		return
	}
	defer h.unregister(session)

	hello := sw.Hello
	hello.SessionID = id
	if err := session.Send(MessageHello, hello); err != nil {
		h.logger.Printf("session %s: send hello: %v", id, err)
		return
	}
	h.logger.Printf("session %s connected from %s", id, r.RemoteAddr)

	conn.SetReadLimit(h.maxSize)
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Printf("session %s: read: %v", id, err)
			}
			return
		}
		env, err := Decode(payload)
		if err != nil {
			h.logger.Printf("discarding malformed message from %s: %v", id, err)
			continue
		}
		if err := session.handle(ctx, env); err != nil {
			if errors.Is(err, errSessionGone) {
				return
			}
			if sendErr := session.Send(MessageError, ErrorMessage{RequestSeq: env.Seq, Message: err.Error()}); sendErr != nil {
				return
			}
		}
	}
}

func (h *Hub) register(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s.ID] = s
	return true
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.ID)
	h.mu.Unlock()

	s.conn.Close()
	if err := s.streamer.Close(); err != nil {
		h.logger.Printf("session %s: close streamer: %v", s.ID, err)
	}
	h.logger.Printf("session %s disconnected", s.ID)
}

// Len reports the number of connected sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Sessions returns the connected sessions ordered by id.
func (h *Hub) Sessions() []*Session {
	h.mu.RLock()
	list := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		list = append(list, s)
	}
	h.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// Send delivers one message to the session with the given id.
func (h *Hub) Send(id string, msgType MessageType, payload any) error {
	h.mu.RLock()
	s, ok := h.sessions[id]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session %s not connected", id)
	}
	return s.Send(msgType, payload)
}

// Broadcast sends the message to every session and returns how many
// deliveries failed.
func (h *Hub) Broadcast(msgType MessageType, payload any) int {
	failed := 0
	for _, s := range h.Sessions() {
		if err := s.Send(msgType, payload); err != nil {
			h.logger.Printf("broadcast %s to %s: %v", msgType, s.ID, err)
			failed++
		}
	}
	return failed
}

// Close disconnects every session and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	list := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		list = append(list, s)
	}
	h.mu.Unlock()

	h.cancel()
	message := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, s := range list {
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(h.writeWait))
		s.writeMu.Unlock()
		s.conn.Close()
	}
	return nil
}

var errSessionGone = errors.New("session closed")

// Session is one connected client with its own streamer and game state.
type Session struct {
	ID string

	conn      *websocket.Conn
	streamer  *world.Streamer
	game      *game.Controller
	writeWait time.Duration
	seq       atomic.Uint64

	writeMu sync.Mutex

	streamMu sync.Mutex
	center   world.ChunkCoord
	streamed bool

	// playerChunk is where the player was on the last tick. It is tracked
	// apart from center so a client viewpoint survives idle ticks.
	playerChunk world.ChunkCoord
	tracked     bool

	inputMu sync.Mutex
	input   game.Input
}

// Send writes one envelope to the client.
func (s *Session) Send(msgType MessageType, payload any) error {
	env, err := NewEnvelope(msgType, s.seq.Add(1), payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}
	data, err := Encode(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", errSessionGone, err)
	}
	return nil
}

func (s *Session) handle(ctx context.Context, env Envelope) error {
	switch env.Type {
	case MessageViewpoint:
		var vp Viewpoint
		if err := DecodePayload(env, &vp); err != nil {
			return fmt.Errorf("decode viewpoint: %w", err)
		}
		return s.Stream(ctx, vp.Position)
	case MessageInput:
		var in game.Input
		if err := DecodePayload(env, &in); err != nil {
			return fmt.Errorf("decode input: %w", err)
		}
		s.inputMu.Lock()
		s.input = in
		s.inputMu.Unlock()
		return nil
	case MessageAction:
		var action game.Action
		if err := DecodePayload(env, &action); err != nil {
			return fmt.Errorf("decode action: %w", err)
		}
		if _, err := s.game.Dispatch(action); err != nil {
			return err
		}
		return s.PushState()
	case MessageKeepAlive:
		return s.Send(MessageKeepAlive, KeepAlive{SessionID: s.ID, Time: time.Now().UTC()})
	}
	return fmt.Errorf("unsupported message type %q", env.Type)
}

// Stream moves the session's viewpoint and sends the chunks that entered
// and left the visible set.
func (s *Session) Stream(ctx context.Context, viewpoint mgl64.Vec3) error {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()

	update, err := s.streamer.Update(ctx, viewpoint)
	if err != nil {
		return fmt.Errorf("stream chunks: %w", err)
	}
	s.center = update.Center
	s.streamed = true

	if len(update.Loaded) > 0 {
		if err := s.Send(MessageChunkLoad, ChunkLoad{Center: update.Center, Chunks: update.Loaded}); err != nil {
			return err
		}
	}
	if len(update.Evicted) > 0 {
		if err := s.Send(MessageChunkEvict, ChunkEvict{Chunks: update.Evicted}); err != nil {
			return err
		}
	}
	return nil
}

// Advance runs one simulation step with the last received input and
// streams new chunks when the player crosses a chunk border, or on the
// first tick if nothing was streamed yet.
func (s *Session) Advance(ctx context.Context, dt time.Duration) (game.State, error) {
	s.inputMu.Lock()
	in := s.input
	s.inputMu.Unlock()

	state := s.game.Step(in, dt.Seconds())
	current := world.ChunkCoordAt(state.Player.Position)

	s.streamMu.Lock()
	crossed := s.tracked && s.playerChunk != current
	initial := !s.streamed
	s.playerChunk = current
	s.tracked = true
	s.streamMu.Unlock()
	if crossed || initial {
		if err := s.Stream(ctx, state.Player.Position); err != nil {
			return state, err
		}
	}
	return state, nil
}

// PushState sends the current game snapshot.
func (s *Session) PushState() error {
	return s.Send(MessageState, StateUpdate{State: s.game.Snapshot(), Body: s.game.Body()})
}
