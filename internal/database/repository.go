package database

import (
	"context"
	"errors"
)

// Settlement failures the caller must tell apart from plain store errors.
var (
	ErrInsufficientFunds = errors.New("insufficient coin balance")
	ErrAccountNotFound   = errors.New("account not found")
)

type LiveRoomRepository interface {
	Ping(ctx context.Context) error

	CreateAccount(ctx context.Context, params CreateAccountParams) (User, error)
	GetAccountById(ctx context.Context, accountId int) (User, error)
	GetAccountByEmail(ctx context.Context, email string) (User, error)
	SetOnlineStatus(ctx context.Context, accountId int, online bool) error

	CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error)
	GetRoomByExternalId(ctx context.Context, externalId string) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)

	GetMembership(ctx context.Context, accountId, roomId int) (RoomMember, error)
	UpsertMembership(ctx context.Context, params MemberParams) error
	DeleteMembership(ctx context.Context, accountId, roomId int) error

	CreateMessage(ctx context.Context, msg Message) (Message, error)
	GetMessages(ctx context.Context, roomId, since, before, limit int) ([]Message, error)

	GetGift(ctx context.Context, giftId int) (Gift, error)
	ListGifts(ctx context.Context) ([]Gift, error)
	// SettleGift debits the sender, credits the receiver and appends the
	// transaction row in a single database transaction. The debit is a
	// conditional decrement: it only applies if the sender's balance covers
	// the price at commit time. Returns ErrInsufficientFunds or
	// ErrAccountNotFound when the settlement cannot proceed.
	SettleGift(ctx context.Context, params SettleGiftParams) (GiftTransaction, error)
}
