package mw

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// venueEntry is a stored 2xx response of one venue.
type venueEntry struct {
	status      int
	contentType string
	body        []byte
	storedAt    time.Time
}

type captureWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// VenueCache keeps venue detail responses keyed by venue id, so query strings and
// trailing variations of the URL share one entry.
type VenueCache struct {
	store *cache.Cache
	ttl   time.Duration
	param string
}

// NewVenueCache creates a cache reading the venue id from the path parameter param.
func NewVenueCache(ttl time.Duration, param string) *VenueCache {
	return &VenueCache{
		store: cache.New(ttl, 2*ttl),
		ttl:   ttl,
		param: param,
	}
}

// Len returns the number of cached venues.
func (vc *VenueCache) Len() int {
	return vc.store.ItemCount()
}

// Handler serves GET requests from the cache. Responses carry X-Cache: HIT or MISS,
// and hits carry an Age header in seconds.
func (vc *VenueCache) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		venueID := c.Param(vc.param)
		if c.Request.Method != http.MethodGet || venueID == "" {
			c.Next()
			return
		}

		if v, found := vc.store.Get(venueID); found {
			entry := v.(venueEntry)
			c.Header("X-Cache", "HIT")
			c.Header("Age", strconv.Itoa(int(time.Since(entry.storedAt)/time.Second)))
			c.Data(entry.status, entry.contentType, entry.body)
			c.Abort()
			return
		}

		c.Header("X-Cache", "MISS")
		w := &captureWriter{ResponseWriter: c.Writer, body: bytes.NewBuffer(nil)}
		c.Writer = w

		c.Next()

		if status := w.Status(); status >= 200 && status < 300 {
			vc.store.Set(venueID, venueEntry{
				status:      status,
				contentType: w.Header().Get("Content-Type"),
				body:        w.body.Bytes(),
				storedAt:    time.Now(),
			}, vc.ttl)
		}
	}
}
