package dto

type ChatMessageRequest struct {
	Text string `json:"text" validate:"max=4000"`
}
