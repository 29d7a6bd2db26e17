package server

import (
	"fmt"
	"sync"
	"testing"

	"github.com/jmoretti/go-liveroom/internal/database"
	"github.com/jmoretti/go-liveroom/internal/testutil"
	"github.com/jmoretti/go-liveroom/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoom(t *testing.T, capacity int) *Room {
	return newRoom(database.Room{
		Id:         1,
		ExternalId: "room-1",
		Name:       "Test Room",
		Capacity:   capacity,
		OwnerId:    42,
	}, testutil.TestLogger(t))
}

func joinedClient(t *testing.T, ls *LiveServer, room *Room, userId int) *Client {
	t.Helper()

	c := newTestClient(t, ls, types.User{Id: userId, Username: fmt.Sprintf("user%d", userId)})
	_, _, err := room.join(c, types.RoleMember)
	require.NoError(t, err)
	for peer := range room.clients {
		drain(peer)
	}
	return c
}

func TestRoomJoin(t *testing.T) {
	ls := newTestLiveServer(t, &database.MockLiveRoomRepository{}, nil)

	t.Run("first join broadcasts to others only", func(t *testing.T) {
		room := newTestRoom(t, 8)
		other := joinedClient(t, ls, room, 1)

		joiner := newTestClient(t, ls, types.User{Id: 2, Username: "user2"})
		rec, snapshot, err := room.join(joiner, types.RoleMember)
		require.NoError(t, err)

		assert.Equal(t, 2, rec.UserId)
		assert.True(t, rec.IsMuted, "expected new arrival to start muted")
		assert.Nil(t, rec.SeatNumber, "expected new arrival without a seat")
		assert.Len(t, snapshot, 2, "expected snapshot to include both users")

		assert.Empty(t, drain(joiner), "joiner gets the private ack elsewhere, not the broadcast")

		msgs := drain(other)
		require.Len(t, msgs, 1)
		require.NotNil(t, msgs[0].Notification.UserJoined)
		assert.Equal(t, 2, msgs[0].Notification.UserJoined.User.UserId)
	})

	t.Run("owner role recorded in presence", func(t *testing.T) {
		room := newTestRoom(t, 8)
		owner := newTestClient(t, ls, types.User{Id: 42, Username: "owner"})
		rec, _, err := room.join(owner, types.RoleOwner)
		require.NoError(t, err)
		assert.Equal(t, types.RoleOwner, rec.Role)
	})

	t.Run("second device joins without broadcast", func(t *testing.T) {
		room := newTestRoom(t, 8)
		c1 := joinedClient(t, ls, room, 1)

		c2 := newTestClient(t, ls, types.User{Id: 1, Username: "user1"})
		_, snapshot, err := room.join(c2, types.RoleMember)
		require.NoError(t, err)

		assert.Len(t, snapshot, 1, "expected one presence record for both devices")
		assert.Empty(t, drain(c1), "expected no user-joined broadcast for a second device")
	})

	t.Run("full room rejects new users", func(t *testing.T) {
		room := newTestRoom(t, 2)
		joinedClient(t, ls, room, 1)
		joinedClient(t, ls, room, 2)

		c := newTestClient(t, ls, types.User{Id: 3, Username: "user3"})
		_, _, err := room.join(c, types.RoleMember)
		assert.ErrorIs(t, err, errRoomFull)
	})

	t.Run("capacity does not block a present user's second device", func(t *testing.T) {
		room := newTestRoom(t, 1)
		joinedClient(t, ls, room, 1)

		c := newTestClient(t, ls, types.User{Id: 1, Username: "user1"})
		_, _, err := room.join(c, types.RoleMember)
		assert.NoError(t, err)
	})
}

func TestRoomLeave(t *testing.T) {
	ls := newTestLiveServer(t, &database.MockLiveRoomRepository{}, nil)

	t.Run("last connection removes presence and broadcasts", func(t *testing.T) {
		room := newTestRoom(t, 8)
		c1 := joinedClient(t, ls, room, 1)
		c2 := joinedClient(t, ls, room, 2)

		userGone, empty := room.leave(c1)
		assert.True(t, userGone)
		assert.False(t, empty)

		msgs := drain(c2)
		require.Len(t, msgs, 1)
		require.NotNil(t, msgs[0].Notification.UserLeft)
		assert.Equal(t, 1, msgs[0].Notification.UserLeft.UserId)

		userGone, empty = room.leave(c2)
		assert.True(t, userGone)
		assert.True(t, empty)
	})

	t.Run("user stays while another device remains", func(t *testing.T) {
		room := newTestRoom(t, 8)
		c1 := joinedClient(t, ls, room, 1)
		c2 := joinedClient(t, ls, room, 1)
		watcher := joinedClient(t, ls, room, 2)

		userGone, empty := room.leave(c1)
		assert.False(t, userGone)
		assert.False(t, empty)
		assert.Empty(t, drain(watcher), "expected no user-left broadcast while a device remains")
		assert.True(t, room.hasUser(1))

		userGone, _ = room.leave(c2)
		assert.True(t, userGone)
		assert.False(t, room.hasUser(1))
	})

	t.Run("never joined", func(t *testing.T) {
		room := newTestRoom(t, 8)
		c := newTestClient(t, ls, types.User{Id: 1, Username: "user1"})

		userGone, empty := room.leave(c)
		assert.False(t, userGone)
		assert.True(t, empty)
	})
}

func TestRoomSeats(t *testing.T) {
	ls := newTestLiveServer(t, &database.MockLiveRoomRepository{}, nil)

	t.Run("take and release", func(t *testing.T) {
		room := newTestRoom(t, 8)
		c := joinedClient(t, ls, room, 1)
		watcher := joinedClient(t, ls, room, 2)

		rec, err := room.requestSeat(1, 3)
		require.NoError(t, err)
		require.NotNil(t, rec.SeatNumber)
		assert.Equal(t, 3, *rec.SeatNumber)
		assert.False(t, rec.IsMuted, "expected taking a seat to unmute")

		msgs := drain(watcher)
		require.Len(t, msgs, 1)
		require.NotNil(t, msgs[0].Notification.SeatUpdated)
		assert.Equal(t, 3, *msgs[0].Notification.SeatUpdated.SeatNumber)

		rec, ok := room.releaseSeat(1)
		require.True(t, ok)
		assert.Nil(t, rec.SeatNumber)
		assert.True(t, rec.IsMuted, "expected releasing a seat to mute")
		drain(c)
		drain(watcher)
	})

	t.Run("occupied seat refused without broadcast", func(t *testing.T) {
		room := newTestRoom(t, 8)
		joinedClient(t, ls, room, 1)
		watcher := joinedClient(t, ls, room, 2)

		_, err := room.requestSeat(1, 3)
		require.NoError(t, err)
		drain(watcher)

		_, err = room.requestSeat(2, 3)
		assert.ErrorIs(t, err, errSeatOccupied)
		assert.Empty(t, drain(watcher), "expected no broadcast for a refused seat")
	})

	t.Run("release without seat", func(t *testing.T) {
		room := newTestRoom(t, 8)
		joinedClient(t, ls, room, 1)

		_, ok := room.releaseSeat(1)
		assert.False(t, ok)
	})
}

// Seat conflicts are resolved inside one critical section: of N concurrent
// requests for the same seat, exactly one wins and only the winner's update
// is broadcast.
func TestRoomSeatRace(t *testing.T) {
	ls := newTestLiveServer(t, &database.MockLiveRoomRepository{}, nil)
	room := newTestRoom(t, 0)

	const contenders = 25
	watcher := joinedClient(t, ls, room, 1000)
	for i := 1; i <= contenders; i++ {
		joinedClient(t, ls, room, i)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners, losers int

	for i := 1; i <= contenders; i++ {
		wg.Add(1)
		go func(userId int) {
			defer wg.Done()
			_, err := room.requestSeat(userId, 5)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
			} else if err == errSeatOccupied {
				losers++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "expected exactly one seat winner")
	assert.Equal(t, contenders-1, losers, "expected all others refused")

	var seatUpdates int
	for _, msg := range drain(watcher) {
		if msg.Notification != nil && msg.Notification.SeatUpdated != nil {
			seatUpdates++
		}
	}
	assert.Equal(t, 1, seatUpdates, "expected only the winner's update broadcast")
}

func TestRoomStateBroadcasts(t *testing.T) {
	ls := newTestLiveServer(t, &database.MockLiveRoomRepository{}, nil)
	room := newTestRoom(t, 8)
	actor := joinedClient(t, ls, room, 1)
	watcher := joinedClient(t, ls, room, 2)

	t.Run("speaking", func(t *testing.T) {
		require.True(t, room.setSpeaking(1, true))

		msgs := drain(watcher)
		require.Len(t, msgs, 1)
		require.NotNil(t, msgs[0].Notification.Speaking)
		assert.True(t, msgs[0].Notification.Speaking.Active)
		drain(actor)
	})

	t.Run("hand raise", func(t *testing.T) {
		require.True(t, room.setHandRaised(1, true))

		msgs := drain(watcher)
		require.Len(t, msgs, 1)
		require.NotNil(t, msgs[0].Notification.Hand)
		assert.True(t, msgs[0].Notification.Hand.Raised)
		drain(actor)
	})

	t.Run("video", func(t *testing.T) {
		require.True(t, room.setVideo(1, true))

		msgs := drain(watcher)
		require.Len(t, msgs, 1)
		require.NotNil(t, msgs[0].Notification.Video)
		assert.True(t, msgs[0].Notification.Video.On)
		drain(actor)
	})

	t.Run("typing skips the sender", func(t *testing.T) {
		room.notifyTyping(actor, true)

		assert.Empty(t, drain(actor))
		msgs := drain(watcher)
		require.Len(t, msgs, 1)
		require.NotNil(t, msgs[0].Notification.Typing)
		assert.True(t, msgs[0].Notification.Typing.Active)
	})

	t.Run("unknown user is a no-op", func(t *testing.T) {
		assert.False(t, room.setSpeaking(99, true))
		assert.False(t, room.setHandRaised(99, true))
		assert.False(t, room.setVideo(99, true))
		assert.Empty(t, drain(watcher))
	})
}
