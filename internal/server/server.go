package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jmoretti/go-liveroom/internal/auth"
	"github.com/jmoretti/go-liveroom/internal/database"
	"github.com/jmoretti/go-liveroom/internal/stats"
	"github.com/jmoretti/go-liveroom/internal/types"
)

// storeTimeout bounds every store round trip so a stalled call surfaces as
// an error event instead of hanging the session.
const storeTimeout = 5 * time.Second

func storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

var registeredMetrics = []string{
	"NumConnections",
	"NumOnlineUsers",
	"NumActiveRooms",
	"NumMessages",
	"NumGiftsSent",
}

// LiveServer is the process-wide coordination core: the connection registry,
// the set of materialized rooms, and the external collaborators (store,
// token verifier, stats) the sessions need.
type LiveServer struct {
	log      *log.Logger
	db       database.LiveRoomRepository
	verifier auth.TokenVerifier
	stats    stats.StatsProvider

	registry *connRegistry

	roomsMu sync.Mutex
	rooms   map[string]*Room

	clientsMu sync.Mutex
	clients   map[*Client]struct{}
}

func NewLiveServer(logger *log.Logger, db database.LiveRoomRepository, verifier auth.TokenVerifier, su stats.StatsProvider) (*LiveServer, error) {
	for _, m := range registeredMetrics {
		su.RegisterMetric(m)
	}

	return &LiveServer{
		log:      logger,
		db:       db,
		verifier: verifier,
		stats:    su,
		registry: newConnRegistry(),
		rooms:    make(map[string]*Room),
		clients:  make(map[*Client]struct{}),
	}, nil
}

func (ls *LiveServer) RegisterClient(c *Client) {
	ls.clientsMu.Lock()
	ls.clients[c] = struct{}{}
	ls.clientsMu.Unlock()

	ls.stats.Incr("NumConnections")
}

func (ls *LiveServer) DeregisterClient(c *Client) {
	ls.clientsMu.Lock()
	_, ok := ls.clients[c]
	delete(ls.clients, c)
	ls.clientsMu.Unlock()

	if ok {
		ls.stats.Decr("NumConnections")
	}
}

// attachClient records an authenticated connection. The user's online status
// is only persisted on the first connection.
func (ls *LiveServer) attachClient(c *Client) {
	if ls.registry.attach(c.user.Id, c) {
		ls.stats.Incr("NumOnlineUsers")
		ls.persistOnlineStatus(c.user.Id, true)
	}
}

// detachClient unregisters a connection; when it was the user's last one the
// offline status is persisted.
func (ls *LiveServer) detachClient(c *Client) {
	if ls.registry.detach(c.user.Id, c) {
		ls.stats.Decr("NumOnlineUsers")
		ls.persistOnlineStatus(c.user.Id, false)
	}
}

// OnlineUsers reports the number of distinct online identities.
func (ls *LiveServer) OnlineUsers() int {
	return ls.registry.countOnline()
}

func (ls *LiveServer) IsOnline(userId int) bool {
	return ls.registry.isOnline(userId)
}

// NotifyUser delivers an event to every live connection of one identity.
func (ls *LiveServer) NotifyUser(userId int, msg *ServerMessage) {
	for _, c := range ls.registry.clientsFor(userId) {
		if !c.queueMessage(msg) {
			ls.log.Printf("dropping direct message for user %d: send buffer full", userId)
		}
	}
}

// getOrLoadRoom returns the in-process authority for a room, materializing
// it from the store on first use. The store lookup runs outside any lock.
func (ls *LiveServer) getOrLoadRoom(externalId string) (*Room, error) {
	ls.roomsMu.Lock()
	if room, ok := ls.rooms[externalId]; ok {
		ls.roomsMu.Unlock()
		return room, nil
	}
	ls.roomsMu.Unlock()

	ctx, cancel := storeCtx()
	defer cancel()

	dbRoom, err := ls.db.GetRoomByExternalId(ctx, externalId)
	if err != nil {
		return nil, err
	}

	ls.roomsMu.Lock()
	defer ls.roomsMu.Unlock()

	// another session may have loaded it while we were at the store
	if room, ok := ls.rooms[externalId]; ok {
		return room, nil
	}

	room := newRoom(dbRoom, ls.log)
	ls.rooms[externalId] = room
	ls.stats.Incr("NumActiveRooms")
	ls.log.Printf("loaded room %q", room.externalId)

	return room, nil
}

// unloadRoomIfEmpty drops a materialized room once its last client is gone.
// Holding roomsMu across the emptiness check keeps it atomic with respect to
// getOrLoadRoom, so a concurrent join either finds the room still mapped or
// sees it marked dead and reloads.
func (ls *LiveServer) unloadRoomIfEmpty(r *Room) {
	ls.roomsMu.Lock()
	defer ls.roomsMu.Unlock()

	r.mu.Lock()
	empty := len(r.clients) == 0
	if empty {
		r.dead = true
	}
	r.mu.Unlock()

	if empty && ls.rooms[r.externalId] == r {
		delete(ls.rooms, r.externalId)
		ls.stats.Decr("NumActiveRooms")
		ls.log.Printf("unloaded room %q", r.externalId)
	}
}

func (ls *LiveServer) persistOnlineStatus(userId int, online bool) {
	go func() {
		ctx, cancel := storeCtx()
		defer cancel()

		if err := ls.db.SetOnlineStatus(ctx, userId, online); err != nil {
			ls.log.Printf("persist online status user=%d online=%t: %v", userId, online, err)
		}
	}()
}

// persistMembership mirrors a presence record to the durable membership row.
// Fire and forget: the live broadcast never blocks on persistence, failures
// are logged.
func (ls *LiveServer) persistMembership(room *Room, rec types.PresenceRecord) {
	go func() {
		ctx, cancel := storeCtx()
		defer cancel()

		err := ls.db.UpsertMembership(ctx, database.MemberParams{
			RoomId:     room.id,
			AccountId:  rec.UserId,
			Role:       string(rec.Role),
			SeatNumber: rec.SeatNumber,
			IsMuted:    rec.IsMuted,
		})
		if err != nil {
			ls.log.Printf("persist membership user=%d room=%q: %v", rec.UserId, room.externalId, err)
		}
	}()
}

func (ls *LiveServer) deleteMembership(room *Room, userId int) {
	go func() {
		ctx, cancel := storeCtx()
		defer cancel()

		if err := ls.db.DeleteMembership(ctx, userId, room.id); err != nil {
			ls.log.Printf("delete membership user=%d room=%q: %v", userId, room.externalId, err)
		}
	}()
}

func (ls *LiveServer) clientCount() int {
	ls.clientsMu.Lock()
	defer ls.clientsMu.Unlock()

	return len(ls.clients)
}

// Shutdown closes every live connection and waits for their sessions to
// finish cleanup, bounded by the context.
func (ls *LiveServer) Shutdown(ctx context.Context) error {
	ls.clientsMu.Lock()
	for c := range ls.clients {
		if c.conn != nil {
			c.conn.Close()
		}
		c.stopClient()
	}
	ls.clientsMu.Unlock()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if ls.clientCount() == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func databaseMessage(roomId, userId int, msg *ClientMessage) database.Message {
	return database.Message{
		RoomId:    roomId,
		UserId:    userId,
		Content:   msg.Publish.Content,
		Type:      msg.Publish.Type,
		CreatedAt: msg.Timestamp,
	}
}
