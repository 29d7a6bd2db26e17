package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockLiveRoomRepository struct {
	mock.Mock
}

func (m *MockLiveRoomRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockLiveRoomRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockLiveRoomRepository) GetAccountById(ctx context.Context, accountId int) (User, error) {
	args := m.Called(ctx, accountId)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockLiveRoomRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockLiveRoomRepository) SetOnlineStatus(ctx context.Context, accountId int, online bool) error {
	args := m.Called(ctx, accountId, online)
	return args.Error(0)
}

func (m *MockLiveRoomRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Room), args.Error(1)
}

func (m *MockLiveRoomRepository) GetRoomByExternalId(ctx context.Context, externalId string) (Room, error) {
	args := m.Called(ctx, externalId)
	return args.Get(0).(Room), args.Error(1)
}

func (m *MockLiveRoomRepository) ListRooms(ctx context.Context) ([]Room, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Room), args.Error(1)
}

func (m *MockLiveRoomRepository) GetMembership(ctx context.Context, accountId, roomId int) (RoomMember, error) {
	args := m.Called(ctx, accountId, roomId)
	return args.Get(0).(RoomMember), args.Error(1)
}

func (m *MockLiveRoomRepository) UpsertMembership(ctx context.Context, params MemberParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockLiveRoomRepository) DeleteMembership(ctx context.Context, accountId, roomId int) error {
	args := m.Called(ctx, accountId, roomId)
	return args.Error(0)
}

func (m *MockLiveRoomRepository) CreateMessage(ctx context.Context, msg Message) (Message, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockLiveRoomRepository) GetMessages(ctx context.Context, roomId, since, before, limit int) ([]Message, error) {
	args := m.Called(ctx, roomId, since, before, limit)
	return args.Get(0).([]Message), args.Error(1)
}

func (m *MockLiveRoomRepository) GetGift(ctx context.Context, giftId int) (Gift, error) {
	args := m.Called(ctx, giftId)
	return args.Get(0).(Gift), args.Error(1)
}

func (m *MockLiveRoomRepository) ListGifts(ctx context.Context) ([]Gift, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Gift), args.Error(1)
}

func (m *MockLiveRoomRepository) SettleGift(ctx context.Context, params SettleGiftParams) (GiftTransaction, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(GiftTransaction), args.Error(1)
}
