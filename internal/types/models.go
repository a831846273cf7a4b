package types

import "time"

// CallRecord is the persisted unit for one analyzed call. Immutable once stored.
type CallRecord struct {
	ID               string    `json:"_id"`
	AgentID          string    `json:"agent_id,omitempty"`
	AgentName        string    `json:"agent_name"`
	PatientName      string    `json:"patient_name"`
	AgentPhoneNumber string    `json:"agent_phone_number"`
	Bucket           string    `json:"bucket,omitempty"`
	Provider         string    `json:"provider,omitempty"`
	Transcript       string    `json:"transcribe"`
	Turns            []Turn    `json:"turns,omitempty"`
	Analysis         Analysis  `json:"analysis"`
	CreatedAt        time.Time `json:"created_at"`
}

// Summary projects a call record for listings.
func (r CallRecord) Summary() CallSummary {
	s := CallSummary{
		ID:               r.ID,
		AgentName:        r.AgentName,
		PatientName:      r.PatientName,
		AgentPhoneNumber: r.AgentPhoneNumber,
		Bucket:           r.Bucket,
		CreatedAt:        r.CreatedAt,
	}
	if total, ok := r.Analysis.TotalScore(); ok {
		s.TotalScore = &total
	}
	return s
}

type CallSummary struct {
	ID               string    `json:"_id"`
	AgentName        string    `json:"agent_name"`
	PatientName      string    `json:"patient_name"`
	AgentPhoneNumber string    `json:"agent_phone_number"`
	Bucket           string    `json:"bucket,omitempty"`
	TotalScore       *float64  `json:"total_score,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type Agent struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Transcript is provider output. Turns is only set by providers that diarize
// or return timed segments.
type Transcript struct {
	Text     string  `json:"text"`
	Turns    []Turn  `json:"turns,omitempty"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Turn is one speaker-attributed span of the transcript. Times are seconds.
type Turn struct {
	Speaker string  `json:"speaker,omitempty" bson:"speaker,omitempty"`
	Start   float64 `json:"start" bson:"start"`
	End     float64 `json:"end" bson:"end"`
	Text    string  `json:"text" bson:"text"`
}
