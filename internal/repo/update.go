package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/calladmin/calladmin-client/internal/utils"
)

// ErrInvalidPageContent is returned when the version page is not of the form "{version}".
var ErrInvalidPageContent = errors.New("Invalid Page Content")

// UpdateInfo compares the running version with the published one.
type UpdateInfo struct {
	Current   string
	Latest    string
	Available bool
}

// Message is the user facing summary of the check.
func (u UpdateInfo) Message() string {
	if u.Available {
		return fmt.Sprintf("New version %s is now available!", u.Latest)
	}
	return "Your CallAdmin Client is up to date"
}

// UpdateChecker reads the published client version.
type UpdateChecker struct {
	endpoint   string
	httpClient *http.Client
}

// NewUpdateChecker constructs a checker for the page at endpoint.
func NewUpdateChecker(endpoint string, timeout time.Duration) *UpdateChecker {
	return &UpdateChecker{
		endpoint:   strings.TrimSpace(endpoint),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Check fetches the version page and compares it with current.
func (c *UpdateChecker) Check(ctx context.Context, current string) (UpdateInfo, error) {
	info := UpdateInfo{Current: current}
	if c.endpoint == "" {
		return info, utils.NewAppError("update.check", "update URL not configured", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return info, utils.NewAppError("update.check", "build request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return info, utils.NewAppError("update.check", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return info, utils.NewAppError("update.check", fmt.Sprintf("update page returned %s", resp.Status), nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return info, utils.NewAppError("update.check", "read body", err)
	}

	latest, err := parseVersionPage(string(body))
	if err != nil {
		return info, utils.NewAppError("update.check", "parse version page", err)
	}
	info.Latest = latest
	info.Available = latest != current
	return info, nil
}

func parseVersionPage(body string) (string, error) {
	body = strings.TrimSpace(body)
	if len(body) < 2 || !strings.HasPrefix(body, "{") || !strings.HasSuffix(body, "}") {
		return "", ErrInvalidPageContent
	}
	version := strings.TrimSpace(body[1 : len(body)-1])
	if version == "" {
		return "", ErrInvalidPageContent
	}
	return version, nil
}
