package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jmoretti/go-liveroom/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

type connState int

const (
	stateConnected connState = iota
	stateAuthenticated
	stateInRoom
	stateClosed
)

// Client is the per-connection session: the websocket pumps plus the state
// machine driving authentication, room membership and event dispatch.
// state, user and room are only touched from the read goroutine.
type Client struct {
	id     string
	conn   *websocket.Conn
	server *LiveServer
	log    *log.Logger

	state connState
	user  types.User
	room  *Room

	send chan *ServerMessage
	stop chan struct{}
}

func NewClient(conn *websocket.Conn, ls *LiveServer, l *log.Logger) *Client {
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		server: ls,
		log:    l,
		state:  stateConnected,
		send:   make(chan *ServerMessage, 256),
		stop:   make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			if !c.writeMessage(msg) {
				return
			}
		case <-c.stop:
			// drain anything queued before the stop, the terminal error
			// response in particular
			for {
				select {
				case msg := <-c.send:
					if !c.writeMessage(msg) {
						return
					}
				default:
					return
				}
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	// the write pump owns closing the connection: cleanup signals it via
	// stop, and it drains queued messages (a terminal Unauthorized response
	// in particular) before the close
	defer c.cleanup()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.client = c
		msg.Timestamp = Now()

		if fatal := c.dispatch(&msg); fatal {
			break
		}
	}
}

// dispatch routes one inbound event through the session state machine.
// Returns true only for connection-fatal failures (bad token).
func (c *Client) dispatch(msg *ClientMessage) bool {
	if msg.Auth != nil {
		return c.handleAuth(msg)
	}

	if c.state == stateConnected {
		// nothing but AUTHENTICATE is accepted before authentication;
		// the event is answered and otherwise ignored
		c.queueMessage(ErrUnauthenticated(msg.Id))
		return false
	}

	msg.UserId = c.user.Id

	switch {
	case msg.Join != nil:
		c.handleJoin(msg)
	case msg.Leave != nil:
		c.handleLeave(msg)
	case msg.Seat != nil:
		c.handleSeatRequest(msg)
	case msg.SeatRelease != nil:
		c.handleSeatRelease(msg)
	case msg.Mute != nil:
		c.handleMute(msg)
	case msg.Speaking != nil:
		c.handleSpeaking(msg)
	case msg.Hand != nil:
		c.handleHand(msg)
	case msg.Video != nil:
		c.handleVideo(msg)
	case msg.Publish != nil:
		c.handlePublish(msg)
	case msg.Typing != nil:
		c.handleTyping(msg)
	case msg.Gift != nil:
		c.handleGift(msg)
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}

	return false
}

func (c *Client) handleAuth(msg *ClientMessage) bool {
	if c.state != stateConnected {
		// already authenticated, nothing to do
		c.queueMessage(NoErrOK(msg.Id, nil))
		return false
	}

	userId, err := c.server.verifier.Verify(msg.Auth.Token)
	if err != nil {
		c.log.Printf("authentication failed on conn %s: %v", c.id, err)
		c.queueMessage(ErrUnauthorized(msg.Id))
		return true
	}

	ctx, cancel := storeCtx()
	defer cancel()

	dbUser, err := c.server.db.GetAccountById(ctx, userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.queueMessage(ErrUnauthorized(msg.Id))
			return true
		}
		c.log.Printf("GetAccountById(%d): %v", userId, err)
		c.queueMessage(ErrStoreUnavailable(msg.Id))
		return false
	}

	c.user = types.User{
		Id:        dbUser.Id,
		Username:  dbUser.Username,
		AvatarUrl: dbUser.AvatarUrl,
	}
	c.state = stateAuthenticated

	c.server.attachClient(c)

	c.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{Id: msg.Id, Timestamp: Now()},
		Notification: &Notification{
			Authenticated: &Authenticated{User: c.user},
		},
	})

	return false
}

func (c *Client) handleJoin(msg *ClientMessage) {
	var (
		room     *Room
		rec      types.PresenceRecord
		snapshot []types.PresenceRecord
	)

	// a join can race the room being unloaded; reload and retry once
	for attempt := 0; ; attempt++ {
		var err error
		room, err = c.server.getOrLoadRoom(msg.Join.RoomId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.queueMessage(ErrRoomNotFound(msg.Id))
			} else {
				c.log.Printf("load room %q: %v", msg.Join.RoomId, err)
				c.queueMessage(ErrStoreUnavailable(msg.Id))
			}
			return
		}

		role, err := c.resolveRole(room)
		if err != nil {
			c.log.Printf("resolve role for user %d in room %q: %v", c.user.Id, room.externalId, err)
			c.queueMessage(ErrStoreUnavailable(msg.Id))
			return
		}

		// one connection holds one room at a time
		if c.room != nil && c.room != room {
			c.leaveCurrentRoom()
		}

		rec, snapshot, err = room.join(c, role)
		if err == nil {
			break
		}

		if errors.Is(err, errRoomGone) && attempt == 0 {
			continue
		}

		if errors.Is(err, errRoomFull) {
			c.queueMessage(ErrRoomFull(msg.Id))
		} else {
			c.queueMessage(ErrStoreUnavailable(msg.Id))
		}
		c.server.unloadRoomIfEmpty(room)
		return
	}

	c.room = room
	c.state = stateInRoom

	c.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{Id: msg.Id, Timestamp: Now()},
		Notification: &Notification{
			RoomJoined: &RoomJoined{
				Room:    room.info(),
				Users:   snapshot,
				Current: rec,
			},
		},
	})

	c.server.persistMembership(room, rec)
}

// resolveRole resolves the user's role once at join time from the persisted
// membership; it is cached on the presence record afterwards.
func (c *Client) resolveRole(room *Room) (types.Role, error) {
	if room.ownerId == c.user.Id {
		return types.RoleOwner, nil
	}

	ctx, cancel := storeCtx()
	defer cancel()

	member, err := c.server.db.GetMembership(ctx, c.user.Id, room.id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.RoleMember, nil
		}
		return "", err
	}

	switch member.Role {
	case "owner":
		return types.RoleOwner, nil
	case "admin":
		return types.RoleAdmin, nil
	default:
		return types.RoleMember, nil
	}
}

func (c *Client) handleLeave(msg *ClientMessage) {
	if c.room == nil {
		// leaving twice is a no-op, not an error
		c.queueMessage(NoErrOK(msg.Id, nil))
		return
	}

	c.leaveCurrentRoom()
	c.state = stateAuthenticated
	c.queueMessage(NoErrOK(msg.Id, nil))
}

// leaveCurrentRoom tears down this connection's room attachment. The "user
// left" broadcast and the membership-row delete only happen when the user's
// last connection in the room is gone.
func (c *Client) leaveCurrentRoom() {
	room := c.room
	if room == nil {
		return
	}
	c.room = nil

	userGone, empty := room.leave(c)
	if userGone {
		c.server.deleteMembership(room, c.user.Id)
	}
	if empty {
		c.server.unloadRoomIfEmpty(room)
	}
}

func (c *Client) handleSeatRequest(msg *ClientMessage) {
	if c.room == nil {
		return
	}

	rec, err := c.room.requestSeat(c.user.Id, msg.Seat.SeatNumber)
	if err != nil {
		if errors.Is(err, errSeatOccupied) {
			// error to the requester only, nothing is broadcast
			c.queueMessage(ErrSeatOccupied(msg.Id))
		}
		return
	}

	c.server.persistMembership(c.room, rec)
}

func (c *Client) handleSeatRelease(msg *ClientMessage) {
	if c.room == nil {
		return
	}

	rec, ok := c.room.releaseSeat(c.user.Id)
	if !ok {
		return
	}

	c.server.persistMembership(c.room, rec)
}

func (c *Client) handleMute(msg *ClientMessage) {
	if c.room == nil {
		return
	}

	rec, ok := c.room.setMute(c.user.Id, msg.Mute.IsMuted)
	if !ok {
		return
	}

	c.server.persistMembership(c.room, rec)
}

func (c *Client) handleSpeaking(msg *ClientMessage) {
	if c.room == nil {
		return
	}

	c.room.setSpeaking(c.user.Id, msg.Speaking.Active)
}

func (c *Client) handleHand(msg *ClientMessage) {
	if c.room == nil {
		return
	}

	c.room.setHandRaised(c.user.Id, msg.Hand.Raised)
}

func (c *Client) handleVideo(msg *ClientMessage) {
	if c.room == nil {
		return
	}

	c.room.setVideo(c.user.Id, msg.Video.On)
}

func (c *Client) handlePublish(msg *ClientMessage) {
	room := c.room
	if room == nil {
		return
	}

	ctx, cancel := storeCtx()
	defer cancel()

	saved, err := c.server.db.CreateMessage(ctx, databaseMessage(room.id, c.user.Id, msg))
	if err != nil {
		c.log.Printf("save message from user %d in room %q: %v", c.user.Id, room.externalId, err)
		c.queueMessage(ErrStoreUnavailable(msg.Id))
		return
	}

	c.queueMessage(NoErrAccepted(msg.Id))

	c.server.stats.Incr("NumMessages")
	room.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: msg.Timestamp},
		Message: &ChatMessage{
			Message: types.Message{
				Id:        saved.Id,
				SeqId:     saved.SeqId,
				RoomId:    saved.RoomId,
				UserId:    saved.UserId,
				Content:   saved.Content,
				Type:      saved.Type,
				Timestamp: saved.CreatedAt,
			},
			Username:  c.user.Username,
			AvatarUrl: c.user.AvatarUrl,
		},
	})
}

func (c *Client) handleTyping(msg *ClientMessage) {
	if c.room == nil {
		return
	}

	c.room.notifyTyping(c, msg.Typing.Active)
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		return false
	}

	return true
}

func (c *Client) writeMessage(msg *ServerMessage) bool {
	bytes, err := json.Marshal(msg)
	if err != nil {
		c.log.Println("failed to serialize message:", err)
		return true
	}

	return c.sendMessage(websocket.TextMessage, bytes)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}

// cleanup runs when the read pump exits: disconnect is an implicit leave
// plus registry detach, so no presence record can outlive its connection.
func (c *Client) cleanup() {
	c.leaveCurrentRoom()

	if c.state != stateConnected {
		c.server.detachClient(c)
	}
	c.state = stateClosed

	c.server.DeregisterClient(c)
	c.stopClient()
}
