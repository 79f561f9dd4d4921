package models

import "time"

// CallRecord is one reported incident as delivered by the CallAdmin web API.
type CallRecord struct {
	CallID       string `json:"callId"`
	IP           string `json:"ip"`
	ServerName   string `json:"serverName"`
	TargetName   string `json:"targetName"`
	TargetID     string `json:"targetId"`
	TargetReason string `json:"targetReason"`
	ClientName   string `json:"clientName"`
	ClientID     string `json:"clientId"`
	ReportedAt   int64  `json:"reportedAt"`
	Handled      bool   `json:"handled"`
}

// SameCall reports whether both records describe the same call. Every field
// except Handled takes part in the comparison.
func (c CallRecord) SameCall(other CallRecord) bool {
	return c.CallID == other.CallID &&
		c.IP == other.IP &&
		c.ServerName == other.ServerName &&
		c.TargetName == other.TargetName &&
		c.TargetID == other.TargetID &&
		c.TargetReason == other.TargetReason &&
		c.ClientName == other.ClientName &&
		c.ClientID == other.ClientID &&
		c.ReportedAt == other.ReportedAt
}

// ReportedTime converts the unix timestamp into a time.Time.
func (c CallRecord) ReportedTime() time.Time {
	return time.Unix(c.ReportedAt, 0)
}

// CallEntry is a record held by the registry together with its UI slot.
type CallEntry struct {
	Position int        `json:"position"`
	Slot     int        `json:"slot"`
	Caption  string     `json:"caption"`
	Title    string     `json:"title"`
	Call     CallRecord `json:"call"`
}
