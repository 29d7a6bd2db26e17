package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jmoretti/go-liveroom/internal/database"
	"github.com/jmoretti/go-liveroom/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreateAccountHandler(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db := &database.MockLiveRoomRepository{}
		db.On("CreateAccount", mock.Anything, mock.MatchedBy(func(p database.CreateAccountParams) bool {
			return p.Username == "user1" && p.EmailAddress == "user1@example.com" &&
				verifyPassword(p.PasswordHash, "hunter22")
		})).Return(database.User{Id: 1, Username: "user1", EmailAddress: "user1@example.com"}, nil)

		_, mux := newTestApp(t, db)

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/register",
			strings.NewReader(`{"username":"user1","email":"user1@example.com","password":"hunter22"}`)))

		assert.Equal(t, http.StatusCreated, w.Code)

		var user types.User
		require.NoError(t, json.NewDecoder(w.Body).Decode(&user))
		assert.Equal(t, 1, user.Id)
		db.AssertExpectations(t)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, mux := newTestApp(t, &database.MockLiveRoomRepository{})

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/register",
			strings.NewReader(`{"username":"user1"}`)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestLoginHandler(t *testing.T) {
	hash, err := hashPassword("hunter22")
	require.NoError(t, err)

	account := database.User{
		Id:           1,
		Username:     "user1",
		EmailAddress: "user1@example.com",
		PasswordHash: hash,
		CoinBalance:  150,
	}

	t.Run("success returns token and cookie", func(t *testing.T) {
		db := &database.MockLiveRoomRepository{}
		db.On("GetAccountByEmail", mock.Anything, "user1@example.com").Return(account, nil)

		app, mux := newTestApp(t, db)

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login",
			strings.NewReader(`{"email":"user1@example.com","password":"hunter22"}`)))

		require.Equal(t, http.StatusOK, w.Code)

		var resp LoginResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, 1, resp.User.Id)
		assert.Equal(t, int64(150), resp.User.CoinBalance)
		require.NotEmpty(t, resp.Token)

		userId, err := app.tokens.Verify(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, 1, userId)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, tokenCookieKey, cookies[0].Name)
		assert.Equal(t, resp.Token, cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
	})

	t.Run("wrong password", func(t *testing.T) {
		db := &database.MockLiveRoomRepository{}
		db.On("GetAccountByEmail", mock.Anything, "user1@example.com").Return(account, nil)

		_, mux := newTestApp(t, db)

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login",
			strings.NewReader(`{"email":"user1@example.com","password":"wrong"}`)))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestSessionHandler(t *testing.T) {
	t.Run("returns the authenticated user", func(t *testing.T) {
		db := &database.MockLiveRoomRepository{}
		db.On("GetAccountById", mock.Anything, 1).
			Return(database.User{Id: 1, Username: "user1", GemBalance: 40}, nil)

		app, mux := newTestApp(t, db)

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, authedRequest(t, app, http.MethodGet, "/api/auth/session", ""))

		assert.Equal(t, http.StatusOK, w.Code)

		var user types.User
		require.NoError(t, json.NewDecoder(w.Body).Decode(&user))
		assert.Equal(t, "user1", user.Username)
		assert.Equal(t, int64(40), user.GemBalance)
	})

	t.Run("missing cookie", func(t *testing.T) {
		_, mux := newTestApp(t, &database.MockLiveRoomRepository{})

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bad token", func(t *testing.T) {
		_, mux := newTestApp(t, &database.MockLiveRoomRepository{})

		r := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		r.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: "garbage"})

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestLogoutHandler(t *testing.T) {
	app, mux := newTestApp(t, &database.MockLiveRoomRepository{})

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, authedRequest(t, app, http.MethodGet, "/api/auth/logout", ""))

	assert.Equal(t, http.StatusNoContent, w.Code)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value, "expected the cookie to be cleared")
}

func TestPasswordHelpers(t *testing.T) {
	hash, err := hashPassword("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)

	assert.True(t, verifyPassword(hash, "hunter22"))
	assert.False(t, verifyPassword(hash, "hunter23"))
}
