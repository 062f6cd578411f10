package model

import "time"

// MinuteStatus tracks the lifecycle of a meeting minute.
type MinuteStatus string

const (
	MinuteStatusDraft    MinuteStatus = "draft"
	MinuteStatusAnalyzed MinuteStatus = "analyzed"
	MinuteStatusProposed MinuteStatus = "proposed"
	MinuteStatusClosed   MinuteStatus = "closed"
)

// Minute is a recorded sales meeting minute, the source record every
// proposal run is generated from.
type Minute struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenant_id"`
	CompanyID      string         `json:"company_id,omitempty"`
	CompanyName    string         `json:"company_name"`
	RawText        string         `json:"raw_text"`
	ParsedJSON     map[string]any `json:"parsed_json,omitempty"`
	Industry       string         `json:"industry,omitempty"`
	Area           string         `json:"area,omitempty"`
	MeetingDate    *time.Time     `json:"meeting_date,omitempty"`
	Attendees      []string       `json:"attendees,omitempty"`
	NextActionDate *time.Time     `json:"next_action_date,omitempty"`
	Status         MinuteStatus   `json:"status"`
	CreatedBy      string         `json:"created_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
