package cache

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/shc-library/kiosk-agent/internal/models"
	"github.com/shc-library/kiosk-agent/pkg/logger"
	"github.com/shc-library/kiosk-agent/pkg/metrics"
	"go.uber.org/zap"
)

const (
	activityCacheName = "activity"

	// DefaultActivityTTL is how long a toggle stays in the feed when none is configured
	DefaultActivityTTL = 15 * time.Minute
)

// ActivityCache keeps recent successful toggles in memory for the kiosk feed
type ActivityCache struct {
	cache *gocache.Cache
	ttl   time.Duration
}

// NewActivityCache creates an activity cache whose entries expire after ttl
func NewActivityCache(ttl time.Duration) *ActivityCache {
	if ttl <= 0 {
		ttl = DefaultActivityTTL
	}

	c := gocache.New(ttl, ttl/2)
	ac := &ActivityCache{cache: c, ttl: ttl}
	c.OnEvicted(func(string, interface{}) {
		ac.updateSize()
	})
	return ac
}

// Record stores a toggle event. Its signature matches services.ToggleListener.
func (ac *ActivityCache) Record(_ context.Context, event models.ToggleEvent) {
	key := event.AttemptID
	if key == "" {
		key = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}

	ac.cache.Set(key, event, ac.ttl)
	ac.updateSize()

	logger.Debug("Activity recorded",
		zap.String("attempt_id", event.AttemptID),
		zap.String("action", string(event.Action)))
}

// Recent returns up to limit unexpired events, newest first. A non-positive
// limit returns all of them.
func (ac *ActivityCache) Recent(limit int) []models.ToggleEvent {
	items := ac.cache.Items()
	events := make([]models.ToggleEvent, 0, len(items))
	for key, item := range items {
		event, ok := item.Object.(models.ToggleEvent)
		if !ok {
			logger.Error("Invalid activity cache data type", zap.String("key", key))
			ac.cache.Delete(key)
			continue
		}
		events = append(events, event)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].At.After(events[j].At)
	})

	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events
}

// Count returns the number of cached entries, including expired ones not yet swept
func (ac *ActivityCache) Count() int {
	return ac.cache.ItemCount()
}

// Flush drops every entry
func (ac *ActivityCache) Flush() {
	ac.cache.Flush()
	ac.updateSize()
}

func (ac *ActivityCache) updateSize() {
	metrics.CacheSize.WithLabelValues(activityCacheName).Set(float64(ac.cache.ItemCount()))
}
