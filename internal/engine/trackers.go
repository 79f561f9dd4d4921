package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/calladmin/calladmin-client/internal/metrics"
	"github.com/calladmin/calladmin-client/internal/models"
	"github.com/calladmin/calladmin-client/internal/parser"
	"github.com/calladmin/calladmin-client/internal/repo"
	"github.com/calladmin/calladmin-client/internal/transport"
)

const (
	defaultResolveInterval = 100 * time.Millisecond
	defaultResolveAttempts = 50
)

// PresenceLookup decorates tracker identifiers with a display name.
type PresenceLookup interface {
	Lookup(ctx context.Context, id string) (models.Presence, error)
}

// Resolver probes the presence service for tracker names on a fixed interval and
// falls back to the raw identifier once its attempts are used up.
type Resolver struct {
	presence PresenceLookup
	interval time.Duration
	attempts int
	logger   *slog.Logger
}

// NewResolver constructs a Resolver. A nil presence lookup resolves every id to itself.
func NewResolver(presence PresenceLookup, interval time.Duration, attempts int, logger *slog.Logger) *Resolver {
	if interval <= 0 {
		interval = defaultResolveInterval
	}
	if attempts <= 0 {
		attempts = defaultResolveAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{presence: presence, interval: interval, attempts: attempts, logger: logger}
}

// Resolve probes id until a name is found, the attempts run out or ctx ends.
func (r *Resolver) Resolve(ctx context.Context, id, actorID string) models.TrackerResolution {
	res := models.TrackerResolution{Identifier: id, Label: id}
	if r.presence == nil {
		return res
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for res.AttemptsMade < r.attempts {
		res.AttemptsMade++
		p, err := r.presence.Lookup(ctx, id)
		if err == nil && p.Name != "" {
			res.Resolved = true
			res.ResolvedName = p.Name
			res.Label = TrackerLabel(id, p, actorID)
			break
		}
		if errors.Is(err, repo.ErrPresenceUnavailable) {
			break
		}
		if err != nil && !errors.Is(err, repo.ErrPresencePending) {
			r.logger.Debug("presence lookup failed", slog.String("tracker", id), slog.Any("error", err))
		}
		if res.AttemptsMade >= r.attempts {
			break
		}

		select {
		case <-ctx.Done():
			return res
		case <-ticker.C:
		}
	}

	metrics.ObserveTrackerResolution(res.Resolved)
	return res
}

// ResolveAll resolves every id concurrently, one probe loop per id, and keeps the input order.
func (r *Resolver) ResolveAll(ctx context.Context, ids []string, actorID string) []models.TrackerResolution {
	out := make([]models.TrackerResolution, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			out[i] = r.Resolve(ctx, id, actorID)
		}(i, id)
	}
	wg.Wait()
	return out
}

// TrackerLabel formats a resolved tracker for display. The local actor is never
// shown with a friend suffix.
func TrackerLabel(id string, p models.Presence, actorID string) string {
	label := p.Name + " - " + id
	if actorID != "" && id == actorID {
		return "Yourself: " + label
	}
	if p.Relationship == models.RelationshipFriend {
		label += " - Friend"
		if p.Online {
			label += " - Online"
		} else {
			label += " - Offline"
		}
	}
	return label
}

// Labels extracts display strings, or the placeholder when there are none.
func Labels(resolutions []models.TrackerResolution) []string {
	if len(resolutions) == 0 {
		return []string{models.NoTrackersLabel}
	}
	labels := make([]string, 0, len(resolutions))
	for _, r := range resolutions {
		labels = append(labels, r.Label)
	}
	return labels
}

// TrackersError is a failed trackers.php refresh. It never feeds escalation.
type TrackersError struct {
	Fetch *models.FetchError
}

func (e *TrackersError) Error() string { return "Couldn't retrieve trackers! " + e.Fetch.Error() }

func (e *TrackersError) Unwrap() error { return e.Fetch }

// DecodeTrackers classifies one trackers.php round trip and returns the tracker ids.
// Unlike notices, an empty body is a failure: the API always answers with a document.
func DecodeTrackers(p *parser.Parser, res transport.Result) ([]string, error) {
	if res.Err != nil {
		return nil, &TrackersError{Fetch: models.NewFetchError(models.ErrorKindTransport, "request failed", res.Err)}
	}
	if strings.TrimSpace(res.Content) == "" {
		return nil, &TrackersError{Fetch: models.NewFetchError(models.ErrorKindTransport, "empty response", nil)}
	}
	parsed := p.ParseTrackers(res.Content)
	switch {
	case parsed.ParseErr != nil:
		return nil, &TrackersError{Fetch: models.NewFetchError(models.ErrorKindParse, "couldn't parse the trackers API", parsed.ParseErr)}
	case parsed.APIError != "":
		return nil, &TrackersError{Fetch: models.NewFetchError(models.ErrorKindAPI, parsed.APIError, nil)}
	}
	return parsed.IDs, nil
}
