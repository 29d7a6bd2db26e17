package server

import (
	"database/sql"
	"errors"

	"github.com/jmoretti/go-liveroom/internal/database"
	"github.com/jmoretti/go-liveroom/internal/types"
)

// handleGift runs the settlement flow: resolve the gift, then let the store
// debit, credit and append the transaction row in one database transaction.
// The debit is a conditional decrement, so a second concurrent gift from the
// same sender cannot race past a stale balance read. The room broadcast is
// best effort and never rolls the settlement back.
func (c *Client) handleGift(msg *ClientMessage) {
	room := c.room
	if room == nil {
		return
	}

	ctx, cancel := storeCtx()
	defer cancel()

	gift, err := c.server.db.GetGift(ctx, msg.Gift.GiftId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.queueMessage(ErrGiftNotFound(msg.Id))
		} else {
			c.log.Printf("GetGift(%d): %v", msg.Gift.GiftId, err)
			c.queueMessage(ErrStoreUnavailable(msg.Id))
		}
		return
	}

	tx, err := c.server.db.SettleGift(ctx, database.SettleGiftParams{
		GiftId:     gift.Id,
		SenderId:   c.user.Id,
		ReceiverId: msg.Gift.ReceiverId,
		RoomId:     room.id,
		CoinPrice:  gift.CoinPrice,
		GemValue:   gift.GemValue,
	})
	if err != nil {
		switch {
		case errors.Is(err, database.ErrInsufficientFunds):
			c.queueMessage(ErrInsufficientFunds(msg.Id))
		case errors.Is(err, database.ErrAccountNotFound):
			c.queueMessage(ErrSenderNotFound(msg.Id))
		default:
			c.log.Printf("settle gift %d from %d to %d in room %q: %v",
				gift.Id, c.user.Id, msg.Gift.ReceiverId, room.externalId, err)
			c.queueMessage(ErrStoreUnavailable(msg.Id))
		}
		return
	}

	c.queueMessage(NoErrOK(msg.Id, types.GiftTransaction{
		Id:         tx.Id,
		GiftId:     tx.GiftId,
		SenderId:   tx.SenderId,
		ReceiverId: tx.ReceiverId,
		RoomId:     tx.RoomId,
		CoinsSpent: tx.CoinsSpent,
		GemsEarned: tx.GemsEarned,
		CreatedAt:  tx.CreatedAt,
	}))

	giftMsg := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			Gift: &GiftReceived{
				RoomId:       room.externalId,
				GiftId:       gift.Id,
				GiftName:     gift.Name,
				AnimationRef: gift.AnimationRef,
				SenderId:     tx.SenderId,
				ReceiverId:   tx.ReceiverId,
				CoinsSpent:   tx.CoinsSpent,
				GemsEarned:   tx.GemsEarned,
			},
		},
	}

	c.server.stats.Incr("NumGiftsSent")
	room.broadcast(giftMsg)

	// a receiver who is online but not in the room still hears about it,
	// on every device
	if !room.hasUser(tx.ReceiverId) {
		c.server.NotifyUser(tx.ReceiverId, giftMsg)
	}
}
