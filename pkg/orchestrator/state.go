package orchestrator

import (
	"errors"
	"fmt"

	"silo-be/pkg/animation"
	"silo-be/pkg/gemini"
)

type View string

const (
	ViewHome          View = "home"
	ViewDocs          View = "docs"
	// ViewBrowsing is kept for clients that still name it; web searches open ViewDeepResearch.
	ViewBrowsing      View = "browsing"
	ViewDeepResearch  View = "deep_research"
	ViewResults       View = "results"
	ViewImageAnalysis View = "image_analysis"
	ViewImageResults  View = "image_results"
	ViewCreative      View = "creative"
	ViewChat          View = "chat"
	ViewLive          View = "live"
)

// isAnimation reports whether the view renders its own error and retry control.
func (v View) isAnimation() bool {
	switch v {
	case ViewBrowsing, ViewDeepResearch, ViewImageAnalysis, ViewCreative:
		return true
	}
	return false
}

type AgentMode string

const (
	AgentAuto         AgentMode = "auto"
	AgentDeepResearch AgentMode = "deep_research"
	AgentCreative     AgentMode = "creative"
	AgentLive         AgentMode = "live"
)

func ParseAgentMode(s string) (AgentMode, error) {
	switch m := AgentMode(s); m {
	case AgentAuto, AgentDeepResearch, AgentCreative, AgentLive:
		return m, nil
	case "":
		return AgentAuto, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

const (
	SearchErrorMessage = "Sorry, something went wrong. Please try again."
	ChatErrorMessage   = "Sorry, I encountered an error. Please try again."
)

var (
	ErrBusy              = errors.New("a request is already in progress")
	ErrNoResult          = errors.New("no search result to continue from")
	ErrNoChat            = errors.New("no chat session")
	ErrInvalidMode       = errors.New("invalid agent mode")
	ErrInvalidTransition = errors.New("transition not allowed from current view")
	ErrStaleRequest      = errors.New("request is no longer current")
	ErrClosed            = errors.New("session closed")
)

// Result holds exactly one of its fields.
type Result struct {
	Web   *gemini.WebResult   `json:"web,omitempty"`
	Image *gemini.ImageResult `json:"image,omitempty"`
}

type AnimationState struct {
	Plan animation.Plan `json:"plan"`
	Step string         `json:"step,omitempty"`
}

// Snapshot is a copy of the session state, safe to hand to renderers.
type Snapshot struct {
	Version       uint64          `json:"version"`
	RequestID     uint64          `json:"request_id"`
	View          View            `json:"view"`
	Query         string          `json:"query"`
	HasImage      bool            `json:"has_image"`
	ImageMimeType string          `json:"image_mime_type,omitempty"`
	AgentMode     AgentMode       `json:"agent_mode"`
	Model         string          `json:"model,omitempty"`
	Result        *Result         `json:"result,omitempty"`
	ChatHistory   []gemini.Turn   `json:"chat_history"`
	HasChat       bool            `json:"has_chat"`
	IsLoading     bool            `json:"is_loading"`
	Error         string          `json:"error,omitempty"`
	Animation     *AnimationState `json:"animation,omitempty"`
}

func copyResult(r *Result) *Result {
	if r == nil {
		return nil
	}
	out := &Result{}
	if r.Web != nil {
		web := *r.Web
		web.Sources = append([]gemini.Source{}, r.Web.Sources...)
		web.Images = append([]string{}, r.Web.Images...)
		out.Web = &web
	}
	if r.Image != nil {
		img := *r.Image
		img.Keywords = append([]string{}, r.Image.Keywords...)
		out.Image = &img
	}
	return out
}
