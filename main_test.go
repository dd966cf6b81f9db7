package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chat-relay-service/config"
	"chat-relay-service/database"
	"chat-relay-service/handlers"
	"chat-relay-service/notify"
	"chat-relay-service/providers"
	"chat-relay-service/relay"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := database.NewChatService(db)
	registry := providers.NewRegistry()
	registry.Register("mock", providers.NewMockProvider())

	h := handlers.New(cfg, store, registry,
		relay.New(store, nil, 5),
		notify.NewEmailNotifier(cfg),
		notify.NewSMSNotifier(cfg),
	)
	return setupRouter(cfg, h)
}

func TestPublicEndpoints(t *testing.T) {
	router := testRouter(t, &config.Config{JWTSecret: "secret", RateLimitPerMinute: 100})

	for _, path := range []string{EndPointHealth, EndPointVersion, EndPointMetrics} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		})
	}
}

func TestAPIRequiresToken(t *testing.T) {
	router := testRouter(t, &config.Config{JWTSecret: "secret", RateLimitPerMinute: 100})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, EndPointGetChatList, strings.NewReader(`{"userId":"u1"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIRateLimited(t *testing.T) {
	router := testRouter(t, &config.Config{JWTSecret: "secret", RateLimitPerMinute: 1})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, EndPointDeleteChat, strings.NewReader(`{}`))
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}

func TestChatWebSocketHandshakeToken(t *testing.T) {
	router := testRouter(t, &config.Config{JWTSecret: "secret", RateLimitPerMinute: 100})
	srv := httptest.NewServer(router)
	defer srv.Close()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + EndPointChatWS

	dialer := websocket.Dialer{Subprotocols: []string{"bearer", token}}
	conn, _, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err)
	assert.Equal(t, "bearer", conn.Subprotocol())
	conn.Close()

	conn, _, err = websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	require.NoError(t, err)
	conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
