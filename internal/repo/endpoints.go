package repo

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/calladmin/calladmin-client/internal/models"
	"github.com/calladmin/calladmin-client/internal/utils"
)

const (
	noticePath   = "/notice.php"
	trackersPath = "/trackers.php"

	// trackersWindow is the activity window, in seconds, used when listing trackers.
	trackersWindow = 20
)

// NoticeQuery carries the inputs of one notice.php request.
type NoticeQuery struct {
	Mode     models.FetchMode
	Interval time.Duration
	MaxCalls int
	// Elapsed is the time since the first run request; incremental only.
	Elapsed time.Duration
	// StoreID is the local actor id; empty for spectators.
	StoreID string
}

// Endpoints builds CallAdmin web API URLs.
type Endpoints struct {
	baseURL string
	key     string
}

// NewEndpoints returns an URL builder rooted at baseURL.
func NewEndpoints(baseURL, key string) Endpoints {
	return Endpoints{baseURL: strings.TrimRight(baseURL, "/"), key: key}
}

// NoticeURL renders the notice.php URL for q.
func (e Endpoints) NoticeURL(q NoticeQuery) string {
	v := url.Values{}
	v.Set("key", e.key)

	if q.Mode == models.FetchModeFirstRun {
		v.Set("from", "0")
		v.Set("from_type", "unixtime")
		v.Set("sort", "desc")
		v.Set("limit", strconv.Itoa(q.MaxCalls))
	} else {
		v.Set("from", strconv.FormatInt(utils.WholeSeconds(2*q.Interval), 10))
		v.Set("from_type", "interval")
		v.Set("sort", "asc")
		v.Set("handled", strconv.FormatInt(utils.WholeSeconds(q.Elapsed), 10))
	}

	if q.StoreID != "" {
		v.Set("store", "1")
		v.Set("steamid", q.StoreID)
	}
	return e.baseURL + noticePath + "?" + v.Encode()
}

// TrackersURL renders the trackers.php URL.
func (e Endpoints) TrackersURL() string {
	v := url.Values{}
	v.Set("from", strconv.Itoa(trackersWindow))
	v.Set("from_type", "interval")
	v.Set("key", e.key)
	return e.baseURL + trackersPath + "?" + v.Encode()
}
