package database

import "time"

type User struct {
	Id           int
	Username     string
	AvatarUrl    string
	EmailAddress string
	PasswordHash string
	CoinBalance  int64
	GemBalance   int64
	IsOnline     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	Id          int
	ExternalId  string
	Name        string
	Description string
	Capacity    int
	OwnerId     int
	SeqId       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoomMember is the durable mirror of a presence record. The in-memory
// record is authoritative while a connection is live; these rows exist for
// restarts and moderation.
type RoomMember struct {
	Id         int
	RoomId     int
	AccountId  int
	Role       string
	SeatNumber *int
	IsMuted    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Message struct {
	Id        int
	SeqId     int
	RoomId    int
	UserId    int
	Content   string
	Type      string
	CreatedAt time.Time
}

type Gift struct {
	Id           int
	Name         string
	AnimationRef string
	CoinPrice    int64
	GemValue     int64
}

type GiftTransaction struct {
	Id         int
	GiftId     int
	SenderId   int
	ReceiverId int
	RoomId     int
	CoinsSpent int64
	GemsEarned int64
	CreatedAt  time.Time
}

type CreateAccountParams struct {
	Username     string
	AvatarUrl    string
	EmailAddress string
	PasswordHash string
}

type CreateRoomParams struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Capacity    int    `json:"capacity"`
	OwnerId     int    `json:"-"`
	ExternalId  string `json:"external_id"`
}

type MemberParams struct {
	RoomId     int
	AccountId  int
	Role       string
	SeatNumber *int
	IsMuted    bool
}

type SettleGiftParams struct {
	GiftId     int
	SenderId   int
	ReceiverId int
	RoomId     int
	CoinPrice  int64
	GemValue   int64
}
