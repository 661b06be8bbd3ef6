package gemini

import "context"

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one entry of a conversation, in order.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// WebResult is the outcome of a grounded or creative generation.
type WebResult struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
	Images  []string `json:"images"`
}

// ImageResult is the outcome of an image analysis.
type ImageResult struct {
	Keywords []string `json:"keywords" validate:"len=5,dive,required,excludesall= \t\n\r"`
	Text     string   `json:"text" validate:"required"`
}

// Image is an inline image attached to a query.
type Image struct {
	Data     []byte
	MimeType string
}

// Conversation is a stateful multi-turn chat. The backend keeps every turn sent through it.
type Conversation interface {
	Send(ctx context.Context, text string) (string, error)
}

// Option allows optional generation parameters.
type Option func(*Options)

type Options struct {
	SystemInstruction string
	Temperature       *float32
	DisableThinking   bool
}

func WithSystemInstruction(instruction string) Option {
	return func(o *Options) {
		o.SystemInstruction = instruction
	}
}

func WithTemperature(temp float32) Option {
	return func(o *Options) {
		o.Temperature = &temp
	}
}

// WithoutThinking sets the thinking budget to zero for low latency replies.
func WithoutThinking() Option {
	return func(o *Options) {
		o.DisableThinking = true
	}
}

func applyOptions(options []Option) Options {
	var o Options
	for _, opt := range options {
		opt(&o)
	}
	return o
}
