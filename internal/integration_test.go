package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"court-booking-backend/config"
	"court-booking-backend/internal/api"
	"court-booking-backend/internal/availability"
	"court-booking-backend/internal/booking"
	"court-booking-backend/internal/bookingapi"
	"court-booking-backend/internal/checkout"
	"court-booking-backend/internal/db"
	"court-booking-backend/internal/events"
	"court-booking-backend/internal/notification"
	"court-booking-backend/internal/session"
	"court-booking-backend/internal/slots"
	"court-booking-backend/internal/store"
)

const (
	secret = "integration-secret"
	date   = "2024-05-01"
)

// bookingServer is an in-memory booking REST API. It owns the lists and enforces
// one active hold per slot.
type bookingServer struct {
	mu       sync.Mutex
	venue    booking.Venue
	bookings []booking.ConfirmedBooking
	holds    []booking.PendingHold
	nextID   int
}

func (s *bookingServer) handler() http.Handler {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.GET("/venues/:id", func(c *gin.Context) {
		if c.Param("id") != s.venue.ID {
			c.JSON(http.StatusNotFound, gin.H{"error": "venue not found"})
			return
		}
		c.JSON(http.StatusOK, s.venue)
	})
	r.GET("/venues/:id/bookings", func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		c.JSON(http.StatusOK, append([]booking.ConfirmedBooking{}, s.bookings...))
	})
	r.GET("/venues/:id/pending-holds", func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		c.JSON(http.StatusOK, append([]booking.PendingHold{}, s.holds...))
	})
	r.POST("/holds", func(c *gin.Context) {
		user, err := session.Parse(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "), []byte(secret))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var req booking.CreateHoldRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		start, end, _ := req.Minutes()
		for _, h := range s.holds {
			hs, he, _ := booking.CreateHoldRequest{StartTime: h.StartTime, EndTime: h.EndTime}.Minutes()
			if h.CourtID == req.CourtID && slots.Overlaps(start, end, hs, he) {
				c.JSON(http.StatusConflict, gin.H{"error": "slot already held"})
				return
			}
		}
		s.nextID++
		expires := time.Now().Add(10 * time.Minute)
		hold := booking.PendingHold{
			ID:        fmt.Sprintf("h%d", s.nextID),
			CourtID:   req.CourtID,
			UserID:    user.UserID,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			ExpiresAt: &expires,
		}
		s.holds = append(s.holds, hold)
		c.JSON(http.StatusCreated, booking.Hold{ID: hold.ID, ExpiresAt: hold.ExpiresAt})
	})
	r.POST("/holds/confirm", func(c *gin.Context) { s.finish(c, true) })
	r.POST("/holds/cancel", func(c *gin.Context) { s.finish(c, false) })
	return r
}

func (s *bookingServer) finish(c *gin.Context, confirm bool) {
	var body struct {
		HoldID string `json:"holdId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, h := range s.holds {
		if h.ID != body.HoldID {
			continue
		}
		s.holds = append(s.holds[:i], s.holds[i+1:]...)
		if confirm {
			s.bookings = append(s.bookings, booking.ConfirmedBooking{CourtID: h.CourtID, StartTime: h.StartTime, EndTime: h.EndTime})
		}
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "hold not found"})
}

type recordingSender struct {
	mu       sync.Mutex
	payloads map[string]string
}

func (r *recordingSender) Send(payload []byte, sub *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.payloads == nil {
		r.payloads = make(map[string]string)
	}
	r.payloads[sub.Endpoint] = string(payload)
	return &http.Response{StatusCode: http.StatusCreated, Body: io.NopCloser(strings.NewReader(""))}, nil
}

func (r *recordingSender) get(endpoint string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payloads[endpoint]
	return p, ok
}

type client struct {
	t      *testing.T
	server *httptest.Server
}

func (c client) do(method, path, userID string, body interface{}) (int, []byte) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.server.URL+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: userID}).SignedString([]byte(secret))
		require.NoError(c.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, out
}

type slotsPayload struct {
	Ready bool `json:"ready"`
	Slots []struct {
		StartTime     string `json:"startTime"`
		Status        string `json:"status"`
		PendingHoldID string `json:"pendingHoldId"`
	} `json:"slots"`
}

func (c client) slotStatus(userID, start string) string {
	c.t.Helper()
	code, body := c.do(http.MethodGet, "/api/venues/v1/slots?date="+date+"&court_id=c1", userID, nil)
	require.Equal(c.t, http.StatusOK, code)
	var p slotsPayload
	require.NoError(c.t, json.Unmarshal(body, &p))
	for _, s := range p.Slots {
		if s.StartTime == start {
			return s.Status
		}
	}
	return ""
}

// TestHoldLifecycle drives a hold from creation to cancel and confirm through the
// HTTP API, and checks that every watcher of the venue observes each transition.
func TestHoldLifecycle(t *testing.T) {
	backend := &bookingServer{venue: booking.Venue{
		ID:        "v1",
		Name:      "Central Hall",
		BasePrice: 100000,
		Courts:    []booking.Court{{ID: "c1", Name: "Court 1"}},
	}}
	backendServer := httptest.NewServer(backend.handler())
	defer backendServer.Close()

	testDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	require.NoError(t, db.Migrate(testDB))
	appStore := store.NewGormStore(testDB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := zap.NewNop()
	cfg := &config.Config{}
	cfg.Backend.BaseURL = backendServer.URL
	cfg.Session.JWTSecret = secret
	cfg.ApplyDefaults()
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000

	bookingClient := bookingapi.NewClient(cfg.Backend, log)
	hub := events.NewHub()

	sender := &recordingSender{}
	pool := notification.NewWorkerPool(1, appStore, bookingClient, &webpush.Options{}, log)
	pool.SetSender(sender)
	pool.Start(ctx)

	registry := availability.NewRegistry(ctx, bookingClient, hub, availability.RegistryOptions{
		TopicPrefix: cfg.Realtime.TopicPrefix,
		IdleTTL:     time.Minute,
		OnChange: func(venueID string, prev, next availability.Snapshot) {
			for _, key := range slots.Freed(prev.Bookings, prev.Holds, next.Bookings, next.Holds) {
				pool.Dispatch(store.Slot{VenueID: venueID, Date: next.Date, CourtID: key.CourtID, StartTime: key.StartTime})
			}
		},
	}, log)
	defer registry.Close()

	holds := checkout.NewManager(bookingClient, checkout.ManagerOptions{
		HoldWindow: cfg.Checkout.HoldWindow,
		OnTerminal: api.HoldFinished(appStore, hub, cfg.Realtime.TopicPrefix, log),
	}, log)

	handler := api.NewHandler(api.Deps{
		Store:       appStore,
		Backend:     bookingClient,
		Registry:    registry,
		Holds:       holds,
		Channel:     hub,
		Logger:      log,
		TopicPrefix: cfg.Realtime.TopicPrefix,
	})
	server := httptest.NewServer(api.NewRouter(handler, cfg.Server, cfg.Session))
	defer server.Close()
	c := client{t: t, server: server}

	// --- Step 1: empty grid, user 7 asks to hear about 18:00 ---
	assert.Equal(t, "free", c.slotStatus("7", "18:00"))
	code, _ := c.do(http.MethodPut, "/api/subscriptions", "7", map[string]interface{}{
		"endpoint": "https://push.example/seven",
		"p256dh":   "key",
		"auth":     "auth",
		"watches":  []map[string]string{{"venue_id": "v1", "date": date, "court_id": "c1", "start_time": "18:00"}},
	})
	require.Equal(t, http.StatusCreated, code)

	holdBody := map[string]string{
		"venue_id": "v1", "court_id": "c1", "date": date, "start_time": "18:00", "end_time": "19:00",
	}

	// --- Step 2: user 5 holds 18:00, everyone sees it ---
	code, body := c.do(http.MethodPost, "/api/holds", "5", holdBody)
	require.Equal(t, http.StatusCreated, code, string(body))
	var first struct {
		HoldID string `json:"hold_id"`
	}
	require.NoError(t, json.Unmarshal(body, &first))

	require.Eventually(t, func() bool {
		return c.slotStatus("7", "18:00") == "pending"
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, "own_pending", c.slotStatus("5", "18:00"))

	// User 7 cannot take the held slot.
	code, _ = c.do(http.MethodPost, "/api/holds", "7", holdBody)
	assert.Equal(t, http.StatusConflict, code)

	// --- Step 3: user 5 cancels, the slot frees up and user 7 is told ---
	code, _ = c.do(http.MethodPost, "/api/holds/"+first.HoldID+"/cancel", "5", nil)
	require.Equal(t, http.StatusOK, code)

	require.Eventually(t, func() bool {
		return c.slotStatus("7", "18:00") == "free"
	}, 2*time.Second, 20*time.Millisecond)

	var payload string
	require.Eventually(t, func() bool {
		var ok bool
		payload, ok = sender.get("https://push.example/seven")
		return ok
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, payload, "Court 1 is free at 18:00 on 2024-05-01")

	// --- Step 4: user 7 holds and pays ---
	code, body = c.do(http.MethodPost, "/api/holds", "7", holdBody)
	require.Equal(t, http.StatusCreated, code, string(body))
	var second struct {
		HoldID string `json:"hold_id"`
	}
	require.NoError(t, json.Unmarshal(body, &second))

	code, body = c.do(http.MethodPost, "/api/holds/"+second.HoldID+"/confirm", "7", nil)
	require.Equal(t, http.StatusOK, code, string(body))
	assert.Contains(t, string(body), `"state":"confirmed"`)

	require.Eventually(t, func() bool {
		return c.slotStatus("5", "18:00") == "booked"
	}, 2*time.Second, 20*time.Millisecond)

	var outcomes int64
	require.NoError(t, testDB.Table("hold_outcomes").Count(&outcomes).Error)
	assert.Equal(t, int64(2), outcomes)
}
