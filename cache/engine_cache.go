package cache

import (
	"time"

	"github.com/devopsarr/radarr-go/radarr"
	"github.com/devopsarr/sonarr-go/sonarr"
	"github.com/tidyarr/tidyarr/config"
)

// Cache key prefixes.
const (
	RadarrItemsCachePrefix  = "radarr-items-"
	RadarrFormatCachePrefix = "radarr-format-"
	SonarrItemsCachePrefix  = "sonarr-items-"
	SonarrFormatCachePrefix = "sonarr-format-"
)

// EngineCache holds the per-service API response caches. List and naming
// config responses are cached with a TTL so scheduled daemon runs don't hammer
// the services; item snapshots are never cached.
type EngineCache struct {
	RadarrItemsCache  *PrefixedCache[[]radarr.MovieResource]
	RadarrFormatCache *PrefixedCache[string]
	SonarrItemsCache  *PrefixedCache[[]sonarr.SeriesResource]
	SonarrFormatCache *PrefixedCache[string]
}

// NewEngineCache creates the engine caches from the cache configuration.
func NewEngineCache(cfg *config.CacheConfig) *EngineCache {
	ttl := 5 * time.Minute
	if cfg != nil && cfg.TTL > 0 {
		ttl = cfg.TTL
	}
	return &EngineCache{
		RadarrItemsCache:  NewPrefixedCache[[]radarr.MovieResource](newCacheInstanceByType(cfg), RadarrItemsCachePrefix, ttl),
		RadarrFormatCache: NewPrefixedCache[string](newCacheInstanceByType(cfg), RadarrFormatCachePrefix, ttl),
		SonarrItemsCache:  NewPrefixedCache[[]sonarr.SeriesResource](newCacheInstanceByType(cfg), SonarrItemsCachePrefix, ttl),
		SonarrFormatCache: NewPrefixedCache[string](newCacheInstanceByType(cfg), SonarrFormatCachePrefix, ttl),
	}
}
