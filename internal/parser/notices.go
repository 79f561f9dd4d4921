package parser

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/calladmin/calladmin-client/internal/models"
)

const (
	noticeContainer  = "CallAdmin"
	trackerContainer = "CallAdmin_Trackers"

	tagError     = "error"
	tagFoundRows = "foundRows"
	tagTrackerID = "trackerID"

	unknownAPIError = "unknown API error"
)

// Field tags every call row must carry.
const (
	fieldCallID       = "callID"
	fieldIP           = "fullIP"
	fieldServerName   = "serverName"
	fieldTargetName   = "targetName"
	fieldTargetID     = "targetID"
	fieldTargetReason = "targetReason"
	fieldClientName   = "clientName"
	fieldClientID     = "clientID"
	fieldReportedAt   = "reportedAt"
	fieldHandled      = "callHandled"
)

var requiredFields = []string{
	fieldCallID, fieldIP, fieldServerName, fieldTargetName, fieldTargetID,
	fieldTargetReason, fieldClientName, fieldClientID, fieldReportedAt, fieldHandled,
}

// NoticeResult is everything one notice.php response yields.
type NoticeResult struct {
	Records        []models.CallRecord
	Dropped        []*RowError
	APIError       string
	ParseErr       *ParseError
	FoundRows      int
	FoundRowsKnown bool
}

// Failed reports whether the response counts as an error cycle.
func (r NoticeResult) Failed() bool {
	return r.ParseErr != nil || r.APIError != ""
}

// RowError explains why a candidate row was not accepted.
type RowError struct {
	Position int
	Missing  []string
	Field    string
	Err      error
}

func (e *RowError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("row %d: missing fields %s", e.Position, strings.Join(e.Missing, ","))
	}
	return fmt.Sprintf("row %d: field %s: %v", e.Position, e.Field, e.Err)
}

// Parser turns raw CallAdmin API documents into typed records.
// It keeps no state between calls; the same input always yields the same output.
type Parser struct {
	logger *slog.Logger
}

// New constructs a Parser.
func New(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// ParseNotices decodes a notice.php response. The row count is only honoured on a first run.
func (p *Parser) ParseNotices(raw string, mode models.FetchMode) NoticeResult {
	var res NoticeResult
	if strings.TrimSpace(raw) == "" {
		return res
	}

	root, perr := parseDocument(raw)
	if perr != nil {
		res.ParseErr = perr
		return res
	}
	box := container(root, noticeContainer)

	if mode == models.FetchModeFirstRun {
		if rows := box.child(tagFoundRows); rows != nil {
			n, err := strconv.Atoi(strings.TrimSpace(rows.value()))
			if err != nil {
				p.logger.Debug("ignoring invalid row count", slog.String("value", rows.value()))
			} else {
				res.FoundRows = n
				res.FoundRowsKnown = true
			}
		}
	}

	for i, child := range box.children {
		switch child.name {
		case tagError:
			res.APIError = errorText(child)
			return res
		case tagFoundRows:
			continue
		}

		record, rowErr := decodeRow(child)
		if rowErr != nil {
			rowErr.Position = i
			res.Dropped = append(res.Dropped, rowErr)
			p.logger.Debug("dropping incomplete call row", slog.Int("position", i), slog.String("reason", rowErr.Error()))
			continue
		}
		res.Records = append(res.Records, record)
	}
	return res
}

func errorText(n *node) string {
	if msg := strings.TrimSpace(n.value()); msg != "" {
		return msg
	}
	return unknownAPIError
}

func decodeRow(row *node) (models.CallRecord, *RowError) {
	var rec models.CallRecord
	seen := make(map[string]bool, len(requiredFields))

	for _, field := range row.children {
		value := field.value()
		if value == "" {
			continue
		}
		switch field.name {
		case fieldCallID:
			rec.CallID = value
		case fieldIP:
			rec.IP = value
		case fieldServerName:
			rec.ServerName = value
		case fieldTargetName:
			rec.TargetName = value
		case fieldTargetID:
			rec.TargetID = value
		case fieldTargetReason:
			rec.TargetReason = value
		case fieldClientName:
			rec.ClientName = value
		case fieldClientID:
			rec.ClientID = value
		case fieldReportedAt:
			ts, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return models.CallRecord{}, &RowError{Field: fieldReportedAt, Err: err}
			}
			rec.ReportedAt = ts
		case fieldHandled:
			v := strings.TrimSpace(value)
			rec.Handled = v == "1" || strings.EqualFold(v, "true")
		default:
			continue
		}
		seen[field.name] = true
	}

	var missing []string
	for _, name := range requiredFields {
		if !seen[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return models.CallRecord{}, &RowError{Missing: missing}
	}
	return rec, nil
}
