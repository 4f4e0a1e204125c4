package content

import "time"

// Status is the lifecycle state of a generation attempt.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Type selects the prompt and post-processing of a generation.
type Type string

const (
	TypeNutrition   Type = "nutrition"
	TypeSupplements Type = "supplements"
	TypeFlexibility Type = "flexibility"
)

// Valid reports whether t is a known content type.
func (t Type) Valid() bool {
	switch t {
	case TypeNutrition, TypeSupplements, TypeFlexibility:
		return true
	}
	return false
}

// Record is one generation attempt keyed by its client minted request id.
// Content is empty while processing, holds the generated text once
// completed and the failure message on error.
type Record struct {
	RequestID   string    `json:"requestId"`
	ContentType Type      `json:"contentType"`
	Status      Status    `json:"status"`
	Content     string    `json:"content,omitempty"`
	UserID      string    `json:"userId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IsTerminal reports whether the record reached completed or error.
func (r *Record) IsTerminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusError
}
