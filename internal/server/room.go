package server

import (
	"errors"
	"log"
	"sync"

	"github.com/jmoretti/go-liveroom/internal/database"
	"github.com/jmoretti/go-liveroom/internal/types"
)

var (
	errRoomFull = errors.New("room is full")
	errRoomGone = errors.New("room unloaded")
)

// Room is the in-process authority for one live room: the set of connected
// clients plus the presence table. All mutation and the broadcast it causes
// run inside one critical section, so receivers never observe a state
// field's updates out of order, and a snapshot taken on join can never miss
// an update it wasn't broadcast. The mutex is only ever held around
// in-memory work, never across a store call.
type Room struct {
	id          int
	externalId  string
	name        string
	description string
	capacity    int
	ownerId     int

	mu       sync.Mutex
	presence *presenceTable
	clients  map[*Client]struct{}
	userMap  map[int]map[*Client]struct{}
	// dead is set when the server unloads the room; a join racing the
	// unload sees it and reloads instead of entering an orphaned instance
	dead bool

	log *log.Logger
}

func newRoom(dbRoom database.Room, logger *log.Logger) *Room {
	return &Room{
		id:          dbRoom.Id,
		externalId:  dbRoom.ExternalId,
		name:        dbRoom.Name,
		description: dbRoom.Description,
		capacity:    dbRoom.Capacity,
		ownerId:     dbRoom.OwnerId,
		presence:    newPresenceTable(),
		clients:     make(map[*Client]struct{}),
		userMap:     make(map[int]map[*Client]struct{}),
		log:         logger,
	}
}

func (r *Room) info() types.Room {
	return types.Room{
		Id:          r.id,
		ExternalId:  r.externalId,
		Name:        r.name,
		Description: r.description,
		Capacity:    r.capacity,
		OwnerId:     r.ownerId,
	}
}

// join adds the connection and creates or refreshes the user's presence
// record. The capacity check and the add are one atomic step, so two
// concurrent joins cannot both squeeze into the last slot. Returns the
// joiner's record and the full snapshot for the private acknowledgment; the
// "user joined" broadcast to everyone else happens here, inside the same
// critical section as the mutation.
func (r *Room) join(c *Client, role types.Role) (types.PresenceRecord, []types.PresenceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dead {
		return types.PresenceRecord{}, nil, errRoomGone
	}

	_, alreadyPresent := r.presence.get(c.user.Id)
	if !alreadyPresent && r.capacity > 0 && r.presence.count() >= r.capacity {
		return types.PresenceRecord{}, nil, errRoomFull
	}

	r.clients[c] = struct{}{}
	if r.userMap[c.user.Id] == nil {
		r.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	r.userMap[c.user.Id][c] = struct{}{}

	rec := r.presence.join(c.user, role)
	snapshot := r.presence.snapshot()

	if !alreadyPresent {
		r.broadcastLocked(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Notification: &Notification{
				UserJoined: &UserJoined{
					RoomId: r.externalId,
					User:   rec,
				},
			},
			SkipClient: c,
		})
	}

	return rec, snapshot, nil
}

// leave removes the connection. The presence record and the "user left"
// broadcast only go out when this was the user's last connection in the
// room. Reports whether the user fully left and whether the room is now
// empty. Safe to call for a client that never joined.
func (r *Room) leave(c *Client) (userGone bool, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c]; !ok {
		return false, len(r.clients) == 0
	}

	delete(r.clients, c)
	if userClients, ok := r.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userMap, c.user.Id)
		}
	}

	if r.userMap[c.user.Id] == nil {
		if r.presence.leave(c.user.Id) {
			userGone = true
			r.broadcastLocked(&ServerMessage{
				BaseMessage: BaseMessage{Timestamp: Now()},
				Notification: &Notification{
					UserLeft: &UserLeft{
						RoomId: r.externalId,
						UserId: c.user.Id,
					},
				},
				SkipClient: c,
			})
		}
	}

	return userGone, len(r.clients) == 0
}

// requestSeat performs the seat check-and-set and broadcasts the result.
// Exactly one of two concurrent requesters for the same seat wins; the
// loser gets errSeatOccupied and nothing is broadcast.
func (r *Room) requestSeat(userId, seatNumber int) (types.PresenceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.presence.setSeat(userId, seatNumber)
	if err != nil {
		return types.PresenceRecord{}, err
	}

	r.broadcastSeatLocked(rec)
	return rec, nil
}

func (r *Room) releaseSeat(userId int) (types.PresenceRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.presence.clearSeat(userId)
	if err != nil {
		return types.PresenceRecord{}, false
	}

	r.broadcastSeatLocked(rec)
	return rec, true
}

func (r *Room) setMute(userId int, muted bool) (types.PresenceRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.presence.setMute(userId, muted)
	if !ok {
		return types.PresenceRecord{}, false
	}

	r.broadcastSeatLocked(rec)
	return rec, true
}

func (r *Room) setSpeaking(userId int, active bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.presence.setSpeaking(userId, active); !ok {
		return false
	}

	r.broadcastLocked(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			Speaking: &SpeakingState{RoomId: r.externalId, UserId: userId, Active: active},
		},
	})
	return true
}

func (r *Room) setHandRaised(userId int, raised bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.presence.setHandRaised(userId, raised); !ok {
		return false
	}

	r.broadcastLocked(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			Hand: &HandState{RoomId: r.externalId, UserId: userId, Raised: raised},
		},
	})
	return true
}

func (r *Room) setVideo(userId int, on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.presence.setVideo(userId, on); !ok {
		return false
	}

	r.broadcastLocked(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			Video: &VideoState{RoomId: r.externalId, UserId: userId, On: on},
		},
	})
	return true
}

func (r *Room) notifyTyping(c *Client, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.presence.get(c.user.Id); !ok {
		return
	}

	r.broadcastLocked(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			Typing: &TypingState{RoomId: r.externalId, UserId: c.user.Id, Active: active},
		},
		SkipClient: c,
	})
}

func (r *Room) hasUser(userId int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.presence.get(userId)
	return ok
}

func (r *Room) snapshot() []types.PresenceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.presence.snapshot()
}

// broadcast delivers an event to every client currently in the room,
// at most once each; a full send buffer drops the message for that client.
func (r *Room) broadcast(msg *ServerMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.broadcastLocked(msg)
}

func (r *Room) broadcastLocked(msg *ServerMessage) {
	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		if !client.queueMessage(msg) {
			r.log.Printf("dropping message for %q in room %q: send buffer full",
				client.user.Username, r.externalId)
		}
	}
}

func (r *Room) broadcastSeatLocked(rec types.PresenceRecord) {
	r.broadcastLocked(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			SeatUpdated: &SeatUpdated{
				RoomId:     r.externalId,
				UserId:     rec.UserId,
				SeatNumber: rec.SeatNumber,
				IsMuted:    rec.IsMuted,
			},
		},
	})
}
