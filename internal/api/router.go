package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"court-booking-backend/config"
	"court-booking-backend/internal/mw"
	"court-booking-backend/internal/session"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(handler *Handler, serverCfg config.ServerConfig, sessionCfg config.SessionConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger(handler.Logger))

	limiter := mw.NewIPRateLimiter(rate.Limit(serverCfg.RateLimitPerSec), serverCfg.RateLimitBurst, 10*time.Minute)

	ttl := time.Duration(serverCfg.CacheTTLSeconds) * time.Second
	venues := mw.NewVenueCache(ttl, "venue_id")

	api := r.Group("/api")
	api.Use(mw.RateLimiter(limiter, handler.Logger), session.Middleware(sessionCfg.JWTSecret))
	{
		api.GET("/venues/:venue_id", venues.Handler(), handler.GetVenue)
		api.GET("/venues/:venue_id/slots", handler.GetSlots)

		holds := api.Group("/holds", session.Require())
		holds.POST("", handler.CreateHold)
		holds.GET("/:hold_id", handler.GetHold)
		holds.GET("/:hold_id/stream", handler.StreamHold)
		holds.POST("/:hold_id/confirm", handler.ConfirmHold)
		holds.POST("/:hold_id/cancel", handler.CancelHold)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
