package geocode

import (
	"context"
	"strings"

	"fieldnav/internal/domain/geo"
	"fieldnav/internal/general/cache"
	"fieldnav/internal/ports"
)

// CachedProvider puts a TTL cache in front of a GeocodingProvider.
// Only successful lookups are cached, so a transient failure is retried next time.
type CachedProvider struct {
	inner   ports.GeocodingProvider
	entries *cache.TTLCache[geo.Coordinate]
}

func NewCachedProvider(inner ports.GeocodingProvider, entries *cache.TTLCache[geo.Coordinate]) *CachedProvider {
	return &CachedProvider{inner: inner, entries: entries}
}

var _ ports.GeocodingProvider = (*CachedProvider)(nil)

func (p *CachedProvider) Geocode(ctx context.Context, address string) (geo.Coordinate, error) {
	return p.entries.GetOrLoad(ctx, normalize(address), func(ctx context.Context) (geo.Coordinate, error) {
		return p.inner.Geocode(ctx, address)
	})
}

// normalize folds case and whitespace so trivially different spellings share an entry.
func normalize(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}
