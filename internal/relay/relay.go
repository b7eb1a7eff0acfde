package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"classroom-backend/internal/model"
	"classroom-backend/internal/store"
)

// =============================================================================
// Relay - room presence, whiteboard and chat fan-out
// =============================================================================

// MessageWriter persists a chat message and applies the answered rule.
type MessageWriter interface {
	SendMessage(ctx context.Context, roomID, userID int64, content, role string) (*model.Message, int64, error)
}

// Deduper claims client-supplied message ids so a resubmitted send_message
// is stored once.
type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Relay coordinates every connected client. Presence, canvas history and
// room subscriptions are owned here and guarded by mu; message persistence
// is serialized per room so the answered update of a teacher message cannot
// interleave with another send in the same room.
type Relay struct {
	mu       sync.Mutex
	presence *PresenceTable
	canvas   *CanvasHistory
	clients  map[string]*Client
	subs     map[int64]map[string]*Client // roomID -> connID -> client
	joined   map[string]map[int64]bool    // connID -> rooms

	roomLocksMu sync.Mutex
	roomLocks   map[int64]*sync.Mutex

	messages MessageWriter
	dedupe   Deduper
}

// Stats is a point-in-time view for health output.
type Stats struct {
	Clients     int `json:"clients"`
	Rooms       int `json:"rooms"`
	PresentRoom int `json:"rooms_with_presence"`
}

// New creates a relay. dedupe may be nil, in which case clientMsgId is only
// echoed back and never checked.
func New(messages MessageWriter, dedupe Deduper) *Relay {
	return &Relay{
		presence:  NewPresenceTable(),
		canvas:    NewCanvasHistory(),
		clients:   make(map[string]*Client),
		subs:      make(map[int64]map[string]*Client),
		joined:    make(map[string]map[int64]bool),
		roomLocks: make(map[int64]*sync.Mutex),
		messages:  messages,
		dedupe:    dedupe,
	}
}

// Connect registers a new connection so it receives server-wide events.
func (r *Relay) Connect(c *Client) {
	r.mu.Lock()
	r.clients[c.ID()] = c
	total := len(r.clients)
	r.mu.Unlock()

	log.Printf("[Relay] Client connected: %s (total: %d)", c.ID(), total)
}

// Disconnect runs the leave path for every room the connection joined or
// registered presence in, then closes its outbound queue.
func (r *Relay) Disconnect(c *Client) {
	r.mu.Lock()

	affected := make(map[int64]bool)
	for roomID := range r.joined[c.ID()] {
		affected[roomID] = true
		r.unsubscribeLocked(c, roomID)
	}
	for _, roomID := range r.presence.UnregisterByConnection(c.ID()) {
		affected[roomID] = true
	}
	delete(r.joined, c.ID())
	delete(r.clients, c.ID())

	for roomID := range affected {
		r.broadcastLocked(roomID, encode(TypePresenceUpdated, r.presence.Members(roomID)), "")
	}
	total := len(r.clients)
	r.mu.Unlock()

	c.close()
	log.Printf("[Relay] Client disconnected: %s (rooms left: %d, remaining: %d)", c.ID(), len(affected), total)
}

// HandleFrame decodes one raw frame and dispatches it. Validation failures
// are reported to the sender only.
func (r *Relay) HandleFrame(ctx context.Context, c *Client, data []byte) {
	cmd, err := DecodeCommand(data)
	if err != nil {
		c.enqueue(encode(TypeError, ErrorPayload{Message: err.Error()}))
		return
	}
	r.Handle(ctx, c, cmd)
}

// Handle dispatches a decoded command.
func (r *Relay) Handle(ctx context.Context, c *Client, cmd Command) {
	switch cmd := cmd.(type) {
	case JoinCommand:
		r.Join(c, cmd)
	case LeaveCommand:
		r.Leave(c, cmd)
	case SendMessageCommand:
		r.SendMessage(ctx, c, cmd)
	case DrawStrokeCommand:
		r.DrawStroke(c, cmd)
	case ClearCanvasCommand:
		r.ClearCanvas(c, cmd)
	case PingCommand:
		c.enqueue(encode(TypePong, nil))
	default:
		c.enqueue(encode(TypeError, ErrorPayload{Message: ErrUnknownType.Error()}))
	}
}

// Join registers presence, replays the canvas to the joiner only and
// broadcasts the member list to the whole room.
func (r *Relay) Join(c *Client, cmd JoinCommand) {
	roomID := int64(cmd.RoomID)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.subscribeLocked(c, roomID)
	members := r.presence.Register(roomID, Member{
		ID:     cmd.User.ID,
		Name:   cmd.User.Name,
		Role:   cmd.User.Role,
		ConnID: c.ID(),
	})

	c.enqueue(encode(TypeCanvasSnapshot, r.canvas.Snapshot(roomID)))
	r.broadcastLocked(roomID, encode(TypePresenceUpdated, members), "")

	log.Printf("[Room %d] %s (%d) joined, present: %d", roomID, cmd.User.Name, cmd.User.ID, len(members))
}

// Leave unregisters presence and tells the remaining members.
func (r *Relay) Leave(c *Client, cmd LeaveCommand) {
	roomID := int64(cmd.RoomID)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.unsubscribeLocked(c, roomID)
	members := r.presence.Unregister(roomID, cmd.UserID)
	r.broadcastLocked(roomID, encode(TypePresenceUpdated, members), "")

	log.Printf("[Room %d] User %d left, present: %d", roomID, cmd.UserID, len(members))
}

// SendMessage persists the message and only then broadcasts it. A storage
// failure is reported to the sender alone.
func (r *Relay) SendMessage(ctx context.Context, c *Client, cmd SendMessageCommand) {
	roomID := int64(cmd.RoomID)
	if strings.TrimSpace(cmd.Content) == "" {
		return
	}

	var dedupeKey string
	if cmd.ClientMsgID != "" && r.dedupe != nil {
		dedupeKey = fmt.Sprintf("msg:%d:%s", cmd.UserID, cmd.ClientMsgID)
		claimed, err := r.dedupe.Claim(ctx, dedupeKey)
		switch {
		case err != nil:
			log.Printf("[Room %d] Idempotency check failed, storing anyway: %v", roomID, err)
			dedupeKey = ""
		case !claimed:
			c.enqueue(encode(TypeMessageAck, AckPayload{ClientMsgID: cmd.ClientMsgID, Duplicate: true}))
			return
		}
	}

	lock := r.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	msg, marked, err := r.messages.SendMessage(ctx, roomID, cmd.UserID, cmd.Content, cmd.Role)
	if err != nil {
		log.Printf("[Room %d] Failed to store message from user %d: %v", roomID, cmd.UserID, err)
		if dedupeKey != "" {
			if rerr := r.dedupe.Release(context.WithoutCancel(ctx), dedupeKey); rerr != nil {
				log.Printf("[Room %d] Failed to release idempotency key: %v", roomID, rerr)
			}
		}
		c.enqueue(encode(TypeMessageFailed, FailurePayload{
			ClientMsgID: cmd.ClientMsgID,
			RoomID:      roomID,
			Error:       deliveryError(err),
		}))
		return
	}

	view := NewMessageView(msg, cmd.Name, cmd.Role)
	view.ClientMsgID = cmd.ClientMsgID

	r.mu.Lock()
	r.broadcastAllLocked(encode(TypeChatListRefresh, nil))
	r.broadcastLocked(roomID, encode(TypeMessageReceived, view), "")
	c.enqueue(encode(TypeMessageAck, AckPayload{ClientMsgID: cmd.ClientMsgID, ID: msg.ID}))
	r.mu.Unlock()

	if marked > 0 {
		log.Printf("[Room %d] Teacher %d answered, %d message(s) marked", roomID, cmd.UserID, marked)
	}
}

// DrawStroke appends a teacher's stroke and forwards it to everyone else in
// the room. Strokes from any other role are dropped without a reply.
func (r *Relay) DrawStroke(c *Client, cmd DrawStrokeCommand) {
	if !model.IsTeacher(cmd.Role) {
		return
	}
	roomID := int64(cmd.RoomID)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.canvas.Append(roomID, cmd.Stroke)
	r.broadcastLocked(roomID, encode(TypeStrokeDrawn, cmd.Stroke), c.ID())
}

// ClearCanvas wipes a room's whiteboard for everyone, the initiator included.
func (r *Relay) ClearCanvas(c *Client, cmd ClearCanvasCommand) {
	if !model.IsTeacher(cmd.Role) {
		return
	}
	roomID := int64(cmd.RoomID)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.canvas.Clear(roomID)
	r.broadcastLocked(roomID, encode(TypeCanvasCleared, nil), "")

	log.Printf("[Room %d] Canvas cleared by %s", roomID, c.ID())
}

// NotifyChatListChanged tells every connection to refetch room summaries.
// Used by the REST handlers after they create rooms or messages.
func (r *Relay) NotifyChatListChanged() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastAllLocked(encode(TypeChatListRefresh, nil))
}

// PublishMessage announces a message stored outside the socket path, such as
// the REST send endpoint.
func (r *Relay) PublishMessage(view MessageView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastAllLocked(encode(TypeChatListRefresh, nil))
	r.broadcastLocked(view.RoomID, encode(TypeMessageReceived, view), "")
}

// Members returns the current presence list of a room.
func (r *Relay) Members(roomID int64) []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence.Members(roomID)
}

// Stats reports connection and room counts.
func (r *Relay) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Clients:     len(r.clients),
		Rooms:       len(r.subs),
		PresentRoom: r.presence.Rooms(),
	}
}

// =============================================================================
// Internals (callers hold r.mu unless noted)
// =============================================================================

func (r *Relay) subscribeLocked(c *Client, roomID int64) {
	if r.subs[roomID] == nil {
		r.subs[roomID] = make(map[string]*Client)
	}
	r.subs[roomID][c.ID()] = c

	if r.joined[c.ID()] == nil {
		r.joined[c.ID()] = make(map[int64]bool)
	}
	r.joined[c.ID()][roomID] = true

	// a client that joins without Connect still gets server-wide events
	r.clients[c.ID()] = c
}

func (r *Relay) unsubscribeLocked(c *Client, roomID int64) {
	if subs, ok := r.subs[roomID]; ok {
		delete(subs, c.ID())
		if len(subs) == 0 {
			delete(r.subs, roomID)
		}
	}
	if rooms, ok := r.joined[c.ID()]; ok {
		delete(rooms, roomID)
	}
}

// broadcastLocked queues frame for every subscriber of the room except the
// connection with id skip.
func (r *Relay) broadcastLocked(roomID int64, frame []byte, skip string) {
	for id, c := range r.subs[roomID] {
		if id == skip {
			continue
		}
		c.enqueue(frame)
	}
}

func (r *Relay) broadcastAllLocked(frame []byte) {
	for _, c := range r.clients {
		c.enqueue(frame)
	}
}

// roomLock returns the per-room persistence lock. It is separate from r.mu:
// presence and whiteboard traffic proceed while a room's message is stored.
func (r *Relay) roomLock(roomID int64) *sync.Mutex {
	r.roomLocksMu.Lock()
	defer r.roomLocksMu.Unlock()

	lock, ok := r.roomLocks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		r.roomLocks[roomID] = lock
	}
	return lock
}

// deliveryError is the client-facing reason for a failed send.
func deliveryError(err error) string {
	switch {
	case errors.Is(err, store.ErrRoomNotFound):
		return "room not found"
	case errors.Is(err, store.ErrRoomInactive):
		return "room is closed"
	default:
		return "message could not be delivered"
	}
}
