package server

import (
	"net/http"
	"time"

	"github.com/jmoretti/go-liveroom/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is the closed set of inbound events. Exactly one of the
// event pointers is expected to be non-nil.
type ClientMessage struct {
	BaseMessage
	Auth        *Auth        `json:"auth,omitempty"`
	Join        *Join        `json:"join,omitempty"`
	Leave       *Leave       `json:"leave,omitempty"`
	Mute        *Mute        `json:"mute,omitempty"`
	Speaking    *Speaking    `json:"speaking,omitempty"`
	Hand        *Hand        `json:"hand,omitempty"`
	Video       *Video       `json:"video,omitempty"`
	Seat        *SeatRequest `json:"seat,omitempty"`
	SeatRelease *SeatRelease `json:"seat_release,omitempty"`
	Publish     *Publish     `json:"publish,omitempty"`
	Typing      *Typing      `json:"typing,omitempty"`
	Gift        *GiftSend    `json:"gift,omitempty"`
	UserId      int          `json:"-"`
	client      *Client      `json:"-"`
}

func (cm *ClientMessage) GetUserId() int {
	if cm.UserId != 0 {
		return cm.UserId
	}

	if cm.client != nil {
		return cm.client.user.Id
	}

	return 0
}

type Auth struct {
	Token string `json:"token"`
}

type Join struct {
	RoomId string `json:"room_id"`
}

type Leave struct{}

type Mute struct {
	IsMuted bool `json:"is_muted"`
}

type Speaking struct {
	Active bool `json:"active"`
}

type Hand struct {
	Raised bool `json:"raised"`
}

type Video struct {
	On bool `json:"on"`
}

type SeatRequest struct {
	SeatNumber int `json:"seat_number"`
}

type SeatRelease struct{}

type Publish struct {
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
}

type Typing struct {
	Active bool `json:"active"`
}

type GiftSend struct {
	GiftId     int `json:"gift_id"`
	ReceiverId int `json:"receiver_id"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response     `json:"response,omitempty"`
	Message      *ChatMessage  `json:"message,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
	SkipClient   *Client       `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

// ChatMessage is a persisted room message together with the sender's
// denormalized display fields.
type ChatMessage struct {
	types.Message
	Username  string `json:"username"`
	AvatarUrl string `json:"avatar_url,omitempty"`
}

type Notification struct {
	Authenticated *Authenticated `json:"authenticated,omitempty"`
	RoomJoined    *RoomJoined    `json:"room_joined,omitempty"`
	UserJoined    *UserJoined    `json:"user_joined,omitempty"`
	UserLeft      *UserLeft      `json:"user_left,omitempty"`
	SeatUpdated   *SeatUpdated   `json:"seat_updated,omitempty"`
	Speaking      *SpeakingState `json:"speaking,omitempty"`
	Hand          *HandState     `json:"hand,omitempty"`
	Video         *VideoState    `json:"video,omitempty"`
	Typing        *TypingState   `json:"typing,omitempty"`
	Gift          *GiftReceived  `json:"gift,omitempty"`
}

type Authenticated struct {
	User types.User `json:"user"`
}

// RoomJoined is the private acknowledgment sent to the joining connection
// only: room info plus the full presence snapshot.
type RoomJoined struct {
	Room    types.Room             `json:"room"`
	Users   []types.PresenceRecord `json:"users"`
	Current types.PresenceRecord   `json:"current"`
}

type UserJoined struct {
	RoomId string               `json:"room_id"`
	User   types.PresenceRecord `json:"user"`
}

type UserLeft struct {
	RoomId string `json:"room_id"`
	UserId int    `json:"user_id"`
}

type SeatUpdated struct {
	RoomId     string `json:"room_id"`
	UserId     int    `json:"user_id"`
	SeatNumber *int   `json:"seat_number"`
	IsMuted    bool   `json:"is_muted"`
}

type SpeakingState struct {
	RoomId string `json:"room_id"`
	UserId int    `json:"user_id"`
	Active bool   `json:"active"`
}

type HandState struct {
	RoomId string `json:"room_id"`
	UserId int    `json:"user_id"`
	Raised bool   `json:"raised"`
}

type VideoState struct {
	RoomId string `json:"room_id"`
	UserId int    `json:"user_id"`
	On     bool   `json:"on"`
}

type TypingState struct {
	RoomId string `json:"room_id"`
	UserId int    `json:"user_id"`
	Active bool   `json:"active"`
}

type GiftReceived struct {
	RoomId       string `json:"room_id"`
	GiftId       int    `json:"gift_id"`
	GiftName     string `json:"gift_name"`
	AnimationRef string `json:"animation_ref,omitempty"`
	SenderId     int    `json:"sender_id"`
	ReceiverId   int    `json:"receiver_id"`
	CoinsSpent   int64  `json:"coins_spent"`
	GemsEarned   int64  `json:"gems_earned"`
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func errResponse(id, code int, text string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        text,
		},
	}
}

func ErrUnauthorized(id int) *ServerMessage {
	return errResponse(id, http.StatusUnauthorized, "unauthorized")
}

func ErrUnauthenticated(id int) *ServerMessage {
	return errResponse(id, http.StatusUnauthorized, "authentication required")
}

func ErrRoomNotFound(id int) *ServerMessage {
	return errResponse(id, http.StatusNotFound, "room not found")
}

func ErrRoomFull(id int) *ServerMessage {
	return errResponse(id, http.StatusConflict, "room full")
}

func ErrSeatOccupied(id int) *ServerMessage {
	return errResponse(id, http.StatusConflict, "seat occupied")
}

func ErrGiftNotFound(id int) *ServerMessage {
	return errResponse(id, http.StatusNotFound, "gift not found")
}

func ErrSenderNotFound(id int) *ServerMessage {
	return errResponse(id, http.StatusNotFound, "sender not found")
}

func ErrInsufficientFunds(id int) *ServerMessage {
	return errResponse(id, http.StatusPaymentRequired, "insufficient funds")
}

func ErrStoreUnavailable(id int) *ServerMessage {
	return errResponse(id, http.StatusServiceUnavailable, "service unavailable")
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := errResponse(0, http.StatusBadRequest, "invalid message format")
	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
