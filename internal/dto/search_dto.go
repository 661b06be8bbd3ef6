package dto

type ImagePayload struct {
	Data     string `json:"data" validate:"required"`
	MimeType string `json:"mime_type" validate:"omitempty,oneof=image/png image/jpeg image/webp image/gif image/heic"`
}

type SubmitRequest struct {
	Query     string        `json:"query" validate:"max=4000"`
	Image     *ImagePayload `json:"image"`
	AgentMode string        `json:"agent_mode" validate:"omitempty,oneof=auto deep_research creative"`
	// Wait holds the response until the request settles.
	Wait bool `json:"wait"`
}

type RegenerateRequest struct {
	Wait bool `json:"wait"`
}

type CompleteRequest struct {
	RequestID uint64 `json:"request_id" validate:"required"`
}
