package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	upsertMemberQuery = "INSERT INTO room_members (room_id, account_id, role, seat_number, is_muted, created_at, updated_at) " +
		"VALUES ($1, $2, $3, $4, $5, $6, $6) " +
		"ON CONFLICT (room_id, account_id) DO UPDATE SET role = $3, seat_number = $4, is_muted = $5, updated_at = $6"

	// debitCoinsQuery is a conditional decrement: the balance check is
	// re-validated at write time, so two concurrent settlements from the
	// same sender cannot together overdraw the account.
	debitCoinsQuery = "UPDATE accounts SET coin_balance = coin_balance - $2, updated_at = $3 " +
		"WHERE id = $1 AND coin_balance >= $2"
)

func (db *PgLiveRoomRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	res := db.conn.QueryRowContext(ctx,
		"INSERT INTO accounts (username, avatar_url, email, password_hash, coin_balance, gem_balance, created_at) "+
			"VALUES ($1, $2, $3, $4, 0, 0, $5) RETURNING id, username, avatar_url, email",
		params.Username,
		params.AvatarUrl,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.AvatarUrl,
		&u.EmailAddress,
	)

	return u, err
}

func (db *PgLiveRoomRepository) GetAccountById(ctx context.Context, id int) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, avatar_url, email, coin_balance, gem_balance FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.AvatarUrl,
		&user.EmailAddress,
		&user.CoinBalance,
		&user.GemBalance,
	)

	return user, err
}

func (db *PgLiveRoomRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, avatar_url, email, password_hash FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.AvatarUrl,
		&user.EmailAddress,
		&user.PasswordHash,
	)

	return user, err
}

func (db *PgLiveRoomRepository) SetOnlineStatus(ctx context.Context, accountId int, online bool) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE accounts SET is_online = $2, updated_at = $3 WHERE id = $1",
		accountId,
		online,
		time.Now().UTC(),
	)

	return err
}

func (db *PgLiveRoomRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRowContext(ctx,
		"INSERT INTO rooms (name, external_id, description, capacity, owner_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $6) "+
			"RETURNING id, name, external_id, description, capacity, owner_id, created_at, updated_at",
		params.Name,
		params.ExternalId,
		params.Description,
		params.Capacity,
		params.OwnerId,
		time.Now().UTC(),
	)

	var room Room
	err = res.Scan(
		&room.Id,
		&room.Name,
		&room.ExternalId,
		&room.Description,
		&room.Capacity,
		&room.OwnerId,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return Room{}, err
	}

	// the creator is the owner member
	_, err = tx.ExecContext(ctx,
		upsertMemberQuery,
		room.Id,
		params.OwnerId,
		"owner",
		nil,
		true,
		time.Now().UTC(),
	)
	if err != nil {
		return Room{}, err
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	return room, err
}

func (db *PgLiveRoomRepository) GetRoomByExternalId(ctx context.Context, externalId string) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, external_id, name, description, capacity, owner_id, seq_id FROM rooms "+
			"WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Name,
		&room.Description,
		&room.Capacity,
		&room.OwnerId,
		&room.SeqId,
	)

	return room, err
}

func (db *PgLiveRoomRepository) ListRooms(ctx context.Context) ([]Room, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, external_id, name, description, capacity, owner_id FROM rooms ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err = rows.Scan(&room.Id, &room.ExternalId, &room.Name, &room.Description, &room.Capacity, &room.OwnerId); err != nil {
			break
		}

		rooms = append(rooms, room)
	}
	return rooms, err
}

func (db *PgLiveRoomRepository) GetMembership(ctx context.Context, accountId, roomId int) (RoomMember, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, room_id, account_id, role, seat_number, is_muted FROM room_members "+
			"WHERE account_id = $1 AND room_id = $2 LIMIT 1",
		accountId,
		roomId,
	)

	var m RoomMember
	var seat sql.NullInt64
	err := row.Scan(
		&m.Id,
		&m.RoomId,
		&m.AccountId,
		&m.Role,
		&seat,
		&m.IsMuted,
	)
	if seat.Valid {
		n := int(seat.Int64)
		m.SeatNumber = &n
	}

	return m, err
}

func (db *PgLiveRoomRepository) UpsertMembership(ctx context.Context, params MemberParams) error {
	_, err := db.conn.ExecContext(ctx,
		upsertMemberQuery,
		params.RoomId,
		params.AccountId,
		params.Role,
		params.SeatNumber,
		params.IsMuted,
		time.Now().UTC(),
	)

	return err
}

func (db *PgLiveRoomRepository) DeleteMembership(ctx context.Context, accountId, roomId int) error {
	_, err := db.conn.ExecContext(ctx,
		"DELETE FROM room_members WHERE account_id = $1 AND room_id = $2",
		accountId,
		roomId,
	)

	return err
}

func (db *PgLiveRoomRepository) CreateMessage(ctx context.Context, msg Message) (Message, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// claim the next per-room sequence id together with the insert
	row := tx.QueryRowContext(ctx,
		"UPDATE rooms SET seq_id = seq_id + 1 WHERE id = $1 RETURNING seq_id",
		msg.RoomId,
	)
	if err = row.Scan(&msg.SeqId); err != nil {
		return Message{}, err
	}

	res := tx.QueryRowContext(ctx,
		"INSERT INTO messages (seq_id, room_id, user_id, content, type, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
		msg.SeqId,
		msg.RoomId,
		msg.UserId,
		msg.Content,
		msg.Type,
		msg.CreatedAt,
	)
	if err = res.Scan(&msg.Id); err != nil {
		return Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (db *PgLiveRoomRepository) GetMessages(ctx context.Context, roomId, since, before, limit int) ([]Message, error) {
	var upper, lower int = 1<<31 - 1, 0
	if before > 0 {
		upper = before - 1
	}

	if since > 0 {
		lower = since
	}

	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, seq_id, room_id, user_id, content, type, created_at FROM messages "+
			"WHERE room_id = $1 AND seq_id BETWEEN $2 AND $3 ORDER BY seq_id DESC LIMIT $4",
		roomId,
		lower,
		upper,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.Id, &msg.SeqId, &msg.RoomId, &msg.UserId, &msg.Content, &msg.Type, &msg.CreatedAt); err != nil {
			break
		}

		messages = append(messages, msg)
	}
	return messages, err
}

func (db *PgLiveRoomRepository) GetGift(ctx context.Context, giftId int) (Gift, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, name, animation_ref, coin_price, gem_value FROM gifts WHERE id = $1 LIMIT 1",
		giftId,
	)

	var gift Gift
	err := row.Scan(
		&gift.Id,
		&gift.Name,
		&gift.AnimationRef,
		&gift.CoinPrice,
		&gift.GemValue,
	)

	return gift, err
}

func (db *PgLiveRoomRepository) ListGifts(ctx context.Context) ([]Gift, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, name, animation_ref, coin_price, gem_value FROM gifts ORDER BY coin_price",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gifts []Gift
	for rows.Next() {
		var gift Gift
		if err = rows.Scan(&gift.Id, &gift.Name, &gift.AnimationRef, &gift.CoinPrice, &gift.GemValue); err != nil {
			break
		}

		gifts = append(gifts, gift)
	}
	return gifts, err
}

func (db *PgLiveRoomRepository) SettleGift(ctx context.Context, params SettleGiftParams) (GiftTransaction, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return GiftTransaction{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()

	res, err := tx.ExecContext(ctx, debitCoinsQuery, params.SenderId, params.CoinPrice, now)
	if err != nil {
		return GiftTransaction{}, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return GiftTransaction{}, err
	}

	if affected == 0 {
		// either the sender does not exist or the balance no longer covers
		// the price; re-read inside the transaction to tell them apart
		var balance int64
		scanErr := tx.QueryRowContext(ctx,
			"SELECT coin_balance FROM accounts WHERE id = $1", params.SenderId,
		).Scan(&balance)
		if scanErr == sql.ErrNoRows {
			err = ErrAccountNotFound
		} else if scanErr != nil {
			err = scanErr
		} else {
			err = fmt.Errorf("%w: balance %d, price %d", ErrInsufficientFunds, balance, params.CoinPrice)
		}
		return GiftTransaction{}, err
	}

	res, err = tx.ExecContext(ctx,
		"UPDATE accounts SET gem_balance = gem_balance + $2, updated_at = $3 WHERE id = $1",
		params.ReceiverId,
		params.GemValue,
		now,
	)
	if err != nil {
		return GiftTransaction{}, err
	}

	affected, err = res.RowsAffected()
	if err != nil {
		return GiftTransaction{}, err
	}
	if affected == 0 {
		err = fmt.Errorf("credit receiver %d: %w", params.ReceiverId, ErrAccountNotFound)
		return GiftTransaction{}, err
	}

	gt := GiftTransaction{
		GiftId:     params.GiftId,
		SenderId:   params.SenderId,
		ReceiverId: params.ReceiverId,
		RoomId:     params.RoomId,
		CoinsSpent: params.CoinPrice,
		GemsEarned: params.GemValue,
		CreatedAt:  now,
	}

	row := tx.QueryRowContext(ctx,
		"INSERT INTO gift_transactions (gift_id, sender_id, receiver_id, room_id, coins_spent, gems_earned, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id",
		gt.GiftId,
		gt.SenderId,
		gt.ReceiverId,
		gt.RoomId,
		gt.CoinsSpent,
		gt.GemsEarned,
		gt.CreatedAt,
	)
	if err = row.Scan(&gt.Id); err != nil {
		return GiftTransaction{}, err
	}

	if err = tx.Commit(); err != nil {
		return GiftTransaction{}, err
	}

	return gt, nil
}
