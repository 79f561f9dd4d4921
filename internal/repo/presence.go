package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/calladmin/calladmin-client/internal/cache"
	"github.com/calladmin/calladmin-client/internal/models"
	"github.com/calladmin/calladmin-client/internal/utils"
)

var (
	// ErrPresencePending means the presence service does not know the identifier yet; retry later.
	ErrPresencePending = errors.New("presence not yet available")
	// ErrPresenceUnavailable means no presence service is configured; callers should not retry.
	ErrPresenceUnavailable = errors.New("presence service unavailable")
)

// PresenceClient looks up display names for tracker identifiers.
type PresenceClient struct {
	baseURL    string
	httpClient *http.Client
	cache      cache.Provider
	ttl        time.Duration
}

// NewPresenceClient constructs a client for the presence service rooted at baseURL.
// An empty baseURL yields a client whose lookups report ErrPresenceUnavailable.
func NewPresenceClient(baseURL string, timeout time.Duration, cacheProvider cache.Provider, ttl time.Duration) *PresenceClient {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	return &PresenceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache: cacheProvider,
		ttl:   ttl,
	}
}

// Lookup returns the presence of id.
func (c *PresenceClient) Lookup(ctx context.Context, id string) (models.Presence, error) {
	if c == nil || c.baseURL == "" {
		return models.Presence{}, ErrPresenceUnavailable
	}

	key := cachePresenceKey(id)
	if data, err := c.cache.Get(ctx, key); err == nil {
		var cached models.Presence
		if err := json.Unmarshal(data, &cached); err == nil && cached.Name != "" {
			return cached, nil
		}
		_ = c.cache.Del(ctx, key)
	}

	presence, err := c.fetch(ctx, id)
	if err != nil {
		return models.Presence{}, err
	}

	if c.ttl > 0 {
		if payload, err := json.Marshal(presence); err == nil {
			_ = c.cache.Set(ctx, key, payload, c.ttl)
		}
	}
	return presence, nil
}

func (c *PresenceClient) fetch(ctx context.Context, id string) (models.Presence, error) {
	endpoint := c.baseURL + "/presence?" + url.Values{"id": {id}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Presence{}, utils.NewAppError("presence.lookup", "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Presence{}, utils.NewAppError("presence.lookup", "request failed", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusAccepted, http.StatusNotFound:
		return models.Presence{}, ErrPresencePending
	default:
		return models.Presence{}, utils.NewAppError("presence.lookup", fmt.Sprintf("presence service returned %s", resp.Status), nil)
	}

	var body struct {
		Name         string `json:"name"`
		Relationship string `json:"relationship"`
		Online       bool   `json:"online"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Presence{}, utils.NewAppError("presence.lookup", "decode response", err)
	}
	if strings.TrimSpace(body.Name) == "" {
		return models.Presence{}, ErrPresencePending
	}

	presence := models.Presence{Name: body.Name, Relationship: models.RelationshipNone, Online: body.Online}
	if strings.EqualFold(body.Relationship, string(models.RelationshipFriend)) {
		presence.Relationship = models.RelationshipFriend
	}
	return presence, nil
}

func cachePresenceKey(id string) string {
	return "presence:" + id
}
