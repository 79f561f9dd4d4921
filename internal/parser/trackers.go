package parser

import "strings"

// TrackerResult is everything one trackers.php response yields.
type TrackerResult struct {
	IDs      []string
	APIError string
	ParseErr *ParseError
}

// ParseTrackers extracts tracker identifiers in document order, without duplicates.
func (p *Parser) ParseTrackers(raw string) TrackerResult {
	var res TrackerResult
	if strings.TrimSpace(raw) == "" {
		return res
	}

	root, perr := parseDocument(raw)
	if perr != nil {
		res.ParseErr = perr
		return res
	}

	seen := make(map[string]bool)
	for _, child := range container(root, trackerContainer).children {
		if child.name == tagError {
			res.APIError = errorText(child)
			return res
		}
		for _, field := range child.children {
			if field.name != tagTrackerID {
				continue
			}
			id := strings.TrimSpace(field.value())
			if id == "" {
				p.logger.Debug("skipping tracker row without identifier")
				continue
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			res.IDs = append(res.IDs, id)
		}
	}
	return res
}
