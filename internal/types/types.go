package types

import (
	"time"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	AvatarUrl    string    `json:"avatar_url,omitempty"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CoinBalance  int64     `json:"coin_balance,omitempty"`
	GemBalance   int64     `json:"gem_balance,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Room struct {
	Id          int       `json:"id"`
	ExternalId  string    `json:"external_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Capacity    int       `json:"capacity"`
	OwnerId     int       `json:"owner_id"`
	SeqId       int       `json:"seq_id"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// PresenceRecord is the live, in-memory state of one user inside one room.
// Display fields are denormalized at join time so broadcasts never require
// a user lookup.
type PresenceRecord struct {
	UserId       int       `json:"user_id"`
	Username     string    `json:"username"`
	AvatarUrl    string    `json:"avatar_url,omitempty"`
	Role         Role      `json:"role"`
	SeatNumber   *int      `json:"seat_number,omitempty"`
	IsMuted      bool      `json:"is_muted"`
	IsSpeaking   bool      `json:"is_speaking"`
	IsHandRaised bool      `json:"is_hand_raised"`
	IsVideoOn    bool      `json:"is_video_on"`
	JoinedAt     time.Time `json:"joined_at"`
}

type Message struct {
	Id        int       `json:"id,omitempty"`
	SeqId     int       `json:"seq_id"`
	RoomId    int       `json:"room_id"`
	UserId    int       `json:"user_id"`
	Content   string    `json:"content"`
	Type      string    `json:"type,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Gift struct {
	Id           int    `json:"id"`
	Name         string `json:"name"`
	AnimationRef string `json:"animation_ref,omitempty"`
	// CoinPrice is debited from the sender, GemValue credited to the receiver.
	CoinPrice int64 `json:"coin_price"`
	GemValue  int64 `json:"gem_value"`
}

type GiftTransaction struct {
	Id         int       `json:"id"`
	GiftId     int       `json:"gift_id"`
	SenderId   int       `json:"sender_id"`
	ReceiverId int       `json:"receiver_id"`
	RoomId     int       `json:"room_id"`
	CoinsSpent int64     `json:"coins_spent"`
	GemsEarned int64     `json:"gems_earned"`
	CreatedAt  time.Time `json:"created_at"`
}
