package server

import (
	"errors"

	"github.com/jmoretti/go-liveroom/internal/types"
)

var (
	errSeatOccupied = errors.New("seat occupied")
	errNotPresent   = errors.New("user not present in room")
)

// presenceTable holds the ephemeral per-room presence records. It is a plain
// data structure: the owning Room serializes all access under its mutex, so
// every mutation on a room's presence is linearized with respect to every
// other, including seat check-and-set across users.
type presenceTable struct {
	records map[int]*types.PresenceRecord
	order   []int       // user ids in join order, for stable snapshots
	seats   map[int]int // seat number -> user id
}

func newPresenceTable() *presenceTable {
	return &presenceTable{
		records: make(map[int]*types.PresenceRecord),
		seats:   make(map[int]int),
	}
}

// join creates the record with the documented defaults (muted, no seat), or
// refreshes display fields if the user is already present from another
// connection. The resolved role is cached for the life of the record.
func (p *presenceTable) join(user types.User, role types.Role) types.PresenceRecord {
	if rec, ok := p.records[user.Id]; ok {
		rec.Username = user.Username
		rec.AvatarUrl = user.AvatarUrl
		return *rec
	}

	rec := &types.PresenceRecord{
		UserId:    user.Id,
		Username:  user.Username,
		AvatarUrl: user.AvatarUrl,
		Role:      role,
		IsMuted:   true,
		JoinedAt:  Now(),
	}
	p.records[user.Id] = rec
	p.order = append(p.order, user.Id)

	return *rec
}

// leave removes the record and frees any held seat. Leaving twice is a no-op.
func (p *presenceTable) leave(userId int) bool {
	rec, ok := p.records[userId]
	if !ok {
		return false
	}

	if rec.SeatNumber != nil {
		delete(p.seats, *rec.SeatNumber)
	}
	delete(p.records, userId)
	for i, id := range p.order {
		if id == userId {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}

	return true
}

// setSeat assigns a seat if it is free. Taking a seat always unmutes; moving
// seats frees the previous one.
func (p *presenceTable) setSeat(userId, seatNumber int) (types.PresenceRecord, error) {
	rec, ok := p.records[userId]
	if !ok {
		return types.PresenceRecord{}, errNotPresent
	}

	if holder, taken := p.seats[seatNumber]; taken && holder != userId {
		return types.PresenceRecord{}, errSeatOccupied
	}

	if rec.SeatNumber != nil && *rec.SeatNumber != seatNumber {
		delete(p.seats, *rec.SeatNumber)
	}

	seat := seatNumber
	p.seats[seatNumber] = userId
	rec.SeatNumber = &seat
	rec.IsMuted = false

	return *rec, nil
}

// clearSeat releases the user's seat and mutes them again.
func (p *presenceTable) clearSeat(userId int) (types.PresenceRecord, error) {
	rec, ok := p.records[userId]
	if !ok {
		return types.PresenceRecord{}, errNotPresent
	}

	if rec.SeatNumber != nil {
		delete(p.seats, *rec.SeatNumber)
		rec.SeatNumber = nil
	}
	rec.IsMuted = true
	rec.IsSpeaking = false

	return *rec, nil
}

// The field setters fail silently when the user is not present: a late event
// for an already-left user must not resurrect a record.

func (p *presenceTable) setMute(userId int, muted bool) (types.PresenceRecord, bool) {
	rec, ok := p.records[userId]
	if !ok {
		return types.PresenceRecord{}, false
	}

	rec.IsMuted = muted
	if muted {
		rec.IsSpeaking = false
	}

	return *rec, true
}

func (p *presenceTable) setSpeaking(userId int, active bool) (types.PresenceRecord, bool) {
	rec, ok := p.records[userId]
	if !ok {
		return types.PresenceRecord{}, false
	}

	rec.IsSpeaking = active
	return *rec, true
}

func (p *presenceTable) setHandRaised(userId int, raised bool) (types.PresenceRecord, bool) {
	rec, ok := p.records[userId]
	if !ok {
		return types.PresenceRecord{}, false
	}

	rec.IsHandRaised = raised
	return *rec, true
}

func (p *presenceTable) setVideo(userId int, on bool) (types.PresenceRecord, bool) {
	rec, ok := p.records[userId]
	if !ok {
		return types.PresenceRecord{}, false
	}

	rec.IsVideoOn = on
	return *rec, true
}

func (p *presenceTable) get(userId int) (types.PresenceRecord, bool) {
	rec, ok := p.records[userId]
	if !ok {
		return types.PresenceRecord{}, false
	}

	return *rec, true
}

// snapshot returns copies of all records in join order, never a
// partially-written record.
func (p *presenceTable) snapshot() []types.PresenceRecord {
	records := make([]types.PresenceRecord, 0, len(p.order))
	for _, id := range p.order {
		if rec, ok := p.records[id]; ok {
			records = append(records, *rec)
		}
	}

	return records
}

func (p *presenceTable) count() int {
	return len(p.records)
}
