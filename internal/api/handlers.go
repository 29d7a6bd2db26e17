package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/jmoretti/go-liveroom/internal/database"
	"github.com/jmoretti/go-liveroom/internal/server"
	"github.com/jmoretti/go-liveroom/internal/types"
	"github.com/teris-io/shortid"
)

const defaultRoomCapacity = 12

type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Capacity    int    `json:"capacity"`
}

func (s *LiveRoomApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *LiveRoomApp) createRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Capacity <= 0 {
		req.Capacity = defaultRoomCapacity
	}

	externalId, err := shortid.Generate()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.CreateRoom(r.Context(), database.CreateRoomParams{
		Name:        req.Name,
		Description: req.Description,
		Capacity:    req.Capacity,
		OwnerId:     userId,
		ExternalId:  externalId,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, types.Room{
		Id:          room.Id,
		ExternalId:  room.ExternalId,
		Name:        room.Name,
		Description: room.Description,
		Capacity:    room.Capacity,
		OwnerId:     room.OwnerId,
		CreatedAt:   room.CreatedAt,
		UpdatedAt:   room.UpdatedAt,
	})
}

func (s *LiveRoomApp) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.db.ListRooms(r.Context())
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.Room, 0, len(rooms))
	for _, room := range rooms {
		resp = append(resp, types.Room{
			Id:          room.Id,
			ExternalId:  room.ExternalId,
			Name:        room.Name,
			Description: room.Description,
			Capacity:    room.Capacity,
			OwnerId:     room.OwnerId,
		})
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *LiveRoomApp) listGifts(w http.ResponseWriter, r *http.Request) {
	gifts, err := s.db.ListGifts(r.Context())
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.Gift, 0, len(gifts))
	for _, g := range gifts {
		resp = append(resp, types.Gift{
			Id:           g.Id,
			Name:         g.Name,
			AnimationRef: g.AnimationRef,
			CoinPrice:    g.CoinPrice,
			GemValue:     g.GemValue,
		})
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *LiveRoomApp) getMessages(w http.ResponseWriter, r *http.Request) {
	roomExternalId := r.URL.Query().Get("room_id")
	if roomExternalId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomByExternalId(r.Context(), roomExternalId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	since, _ := strconv.Atoi(r.URL.Query().Get("since"))
	before, _ := strconv.Atoi(r.URL.Query().Get("before"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	messages, err := s.db.GetMessages(r.Context(), room.Id, since, before, limit)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		resp = append(resp, types.Message{
			Id:        m.Id,
			SeqId:     m.SeqId,
			RoomId:    m.RoomId,
			UserId:    m.UserId,
			Content:   m.Content,
			Type:      m.Type,
			Timestamp: m.CreatedAt,
		})
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *LiveRoomApp) online(w http.ResponseWriter, r *http.Request) {
	s.writeJson(w, http.StatusOK, map[string]int{
		"online_users": s.ls.OnlineUsers(),
	})
}

// serveWs upgrades the connection and starts the session pumps. The client
// is not authenticated here: its first socket event must be AUTHENTICATE.
func (s *LiveRoomApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(conn, s.ls, s.log)

	s.ls.RegisterClient(client)
	go client.Write()
	go client.Read()
}
