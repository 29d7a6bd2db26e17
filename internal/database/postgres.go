package database

import (
	"context"
	"database/sql"
)

type PgLiveRoomRepository struct {
	conn *sql.DB
}

func NewPgLiveRoomRepository(dsn string) (*PgLiveRoomRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgLiveRoomRepository{conn: db}, nil
}

func (db *PgLiveRoomRepository) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *PgLiveRoomRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
