package datafetcher

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elys-network/curate/internal/logger"
	"github.com/elys-network/curate/internal/types"
)

var protocolLogger = logger.GetForComponent("protocol_retriever")

const PROTOCOLS_ROUTE = "/protocols"

type protocolEntry struct {
	Name     string  `json:"name"`
	Slug     string  `json:"slug"`
	Audits   flexInt `json:"audits"`
	ListedAt flexInt `json:"listedAt"` // unix seconds
}

// flexInt accepts a JSON number, a numeric string or null. The protocols API returns audit counts as strings.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		// Unparseable values count as unknown
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

// ProtocolRetriever pulls protocol profiles, keyed by slug.
type ProtocolRetriever struct {
	client           *apiClient
	baseURL          string
	cache            *Cache
	upgradeAuthority map[string]types.UpgradeAuthority
}

// NewProtocolRetriever creates a retriever. upgradeAuthority fills the profile field the API does not
// provide; protocols missing from it are unknown.
func NewProtocolRetriever(baseURL string, httpClient *http.Client, retryDelay time.Duration, cache *Cache, upgradeAuthority map[string]types.UpgradeAuthority) *ProtocolRetriever {
	return &ProtocolRetriever{
		client:           newAPIClient(httpClient, retryDelay, protocolLogger),
		baseURL:          strings.TrimRight(baseURL, "/"),
		cache:            cache,
		upgradeAuthority: upgradeAuthority,
	}
}

// FetchProtocols returns the profile of every listed protocol, served from the cache when fresh.
func (r *ProtocolRetriever) FetchProtocols(ctx context.Context) (map[string]types.ProtocolProfile, error) {
	if cached, ok := r.cache.Protocols(); ok {
		protocolLogger.Debug().Int("protocolCount", len(cached)).Msg("Serving protocol profiles from cache")
		return cached, nil
	}

	var entries []protocolEntry
	if err := r.client.getJSON(ctx, r.baseURL+PROTOCOLS_ROUTE, &entries); err != nil {
		return nil, fmt.Errorf("protocol fetch failed: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: protocols API returned no entries", ErrAPIResponseInvalid)
	}

	profiles := make(map[string]types.ProtocolProfile, len(entries))
	for _, e := range entries {
		slug := strings.ToLower(strings.TrimSpace(e.Slug))
		if slug == "" {
			continue
		}

		profile := types.ProtocolProfile{
			Slug:             slug,
			Name:             e.Name,
			AuditCount:       int(e.Audits),
			UpgradeAuthority: types.UpgradeAuthorityUnknown,
		}
		if e.ListedAt > 0 {
			profile.ListedAt = time.Unix(int64(e.ListedAt), 0).UTC()
		}
		if a, ok := r.upgradeAuthority[slug]; ok {
			profile.UpgradeAuthority = a
		}
		profiles[slug] = profile
	}

	protocolLogger.Info().
		Int("received", len(entries)).
		Int("profiles", len(profiles)).
		Msg("Protocol retrieval complete")

	r.cache.SetProtocols(profiles)
	return profiles, nil
}
