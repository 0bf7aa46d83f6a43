package models

import "time"

// Export job statuses
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// SuggestScriptRequest asks for a voiceover script about a subject
type SuggestScriptRequest struct {
	Subject string `json:"subject" binding:"required"`
}

// SuggestScriptResponse returns the generated script
type SuggestScriptResponse struct {
	Script string      `json:"script"`
	Stats  ScriptStats `json:"stats"`
}

// ScriptStats summarizes a script for the editor
type ScriptStats struct {
	Characters       int     `json:"characters"`
	Words            int     `json:"words"`
	Sentences        int     `json:"sentences"`
	EstimatedSeconds float64 `json:"estimated_seconds"`
	SpeechRequests   int     `json:"speech_requests"`
}

// VoiceoverRequest is the input for speech synthesis
type VoiceoverRequest struct {
	Text  string `json:"text" binding:"required"`
	Voice string `json:"voice" binding:"required"`
}

// VoiceoverResponse carries the synthesized narration inline
type VoiceoverResponse struct {
	AudioDataURI    string  `json:"audio_data_uri"`
	MimeType        string  `json:"mime_type"`
	SizeBytes       int     `json:"size_bytes"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// AudioPayload is a synthesized narration
type AudioPayload struct {
	Data     []byte
	MimeType string
	Duration time.Duration
}

// Voice is one entry of the voice catalog
type Voice struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	LanguageCode string `json:"language_code"`
	ProviderName string `json:"provider_name"`
}

// ExportResponse returns the job ID of an accepted export
type ExportResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// StatusResponse returns current export progress
type StatusResponse struct {
	JobID       string  `json:"job_id"`
	SessionID   string  `json:"session_id"`
	Status      string  `json:"status"`
	Progress    int     `json:"progress"`
	CurrentStep string  `json:"current_step"`
	DownloadURL *string `json:"download_url,omitempty"`
	SizeBytes   int64   `json:"size_bytes,omitempty"`
	Trigger     string  `json:"trigger,omitempty"`
	ErrorCode   string  `json:"error_code,omitempty"`
	Error       *string `json:"error,omitempty"`
}

// ExportJob tracks one export from acceptance to download
type ExportJob struct {
	JobID       string
	SessionID   string
	Status      string
	Progress    int
	CurrentStep string
	OutputPath  string
	MimeType    string
	SizeBytes   int64
	Trigger     string
	ErrorCode   string
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PreviewEvent is a playback event of the primary (video) element
type PreviewEvent struct {
	Type     string  `json:"type"`
	Position float64 `json:"position"`
}

// PreviewState is the secondary (narration) state after an event was applied
type PreviewState struct {
	Position  float64 `json:"position"`
	Playing   bool    `json:"playing"`
	Corrected bool    `json:"corrected"`
	Drift     float64 `json:"drift"`
	State     string  `json:"state"`
	Error     string  `json:"error,omitempty"`
}
