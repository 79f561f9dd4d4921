package models

// Relationship describes how a tracker relates to the local actor.
type Relationship string

const (
	RelationshipNone   Relationship = "none"
	RelationshipFriend Relationship = "friend"
)

// Presence is the decoration returned by the presence service for an identifier.
type Presence struct {
	Name         string       `json:"name"`
	Relationship Relationship `json:"relationship"`
	Online       bool         `json:"online"`
}

// TrackerResolution tracks the name lookup of a single tracker identifier.
type TrackerResolution struct {
	Identifier   string
	AttemptsMade int
	ResolvedName string
	Label        string
	Resolved     bool
}

// NoTrackersLabel is shown when the trackers document lists nobody.
const NoTrackersLabel = "No trackers available"
