package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"silo-be/pkg/remote"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

var tracer = otel.Tracer("silo-be/gemini")

type Config struct {
	APIKey string
	// BaseURL overrides the API endpoint, mostly for tests.
	BaseURL string
}

// Client wraps the Gemini API. It holds no conversation state of its own.
type Client struct {
	genai    *genai.Client
	validate *validator.Validate
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	c, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Client{
		genai:    c,
		validate: validator.New(),
	}, nil
}

// GeneratePlain runs a single-turn generation without tools.
func (c *Client) GeneratePlain(ctx context.Context, model, prompt string, options ...Option) (string, error) {
	ctx, span := startSpan(ctx, "GeneratePlain", model)
	defer span.End()

	resp, err := c.genai.Models.GenerateContent(ctx, model, genai.Text(prompt), buildConfig(applyOptions(options)))
	if err != nil {
		return "", endWithError(span, classify("generate plain", err))
	}

	text := resp.Text()
	if text == "" {
		return "", endWithError(span, remote.Malformed("generate plain", errors.New("response has no text")))
	}
	return text, nil
}

// GenerateGrounded runs a web-grounded generation and splits the answer into text,
// inline images and cited sources.
func (c *Client) GenerateGrounded(ctx context.Context, model, prompt string) (*WebResult, error) {
	ctx, span := startSpan(ctx, "GenerateGrounded", model)
	defer span.End()

	config := buildConfig(Options{SystemInstruction: SearchAgentInstruction})
	config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}

	resp, err := c.genai.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return nil, endWithError(span, classify("generate grounded", err))
	}

	raw := resp.Text()
	if raw == "" {
		return nil, endWithError(span, remote.Malformed("generate grounded", errors.New("response has no text")))
	}

	text, images := ExtractImages(raw)

	var chunks []*genai.GroundingChunk
	if len(resp.Candidates) > 0 && resp.Candidates[0].GroundingMetadata != nil {
		chunks = resp.Candidates[0].GroundingMetadata.GroundingChunks
	}
	sources := CollectSources(chunks)

	span.SetAttributes(
		attribute.Int("gemini.sources", len(sources)),
		attribute.Int("gemini.images", len(images)),
	)

	return &WebResult{Text: text, Sources: sources, Images: images}, nil
}

// GenerateCreative produces long-form content. The result carries no sources or images.
func (c *Client) GenerateCreative(ctx context.Context, model, prompt string) (*WebResult, error) {
	text, err := c.GeneratePlain(ctx, model, prompt, WithSystemInstruction(CreativeInstruction))
	if err != nil {
		return nil, err
	}
	return &WebResult{Text: text, Sources: []Source{}, Images: []string{}}, nil
}

// GenerateStructured analyzes an image and returns exactly five keywords and a paragraph.
// A response that does not decode into that shape is a malformed failure.
func (c *Client) GenerateStructured(ctx context.Context, model, prompt string, image *Image) (*ImageResult, error) {
	ctx, span := startSpan(ctx, "GenerateStructured", model)
	defer span.End()

	if image == nil || len(image.Data) == 0 {
		return nil, endWithError(span, fmt.Errorf("generate structured: image is required"))
	}

	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(image.Data, image.MimeType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	config := buildConfig(Options{})
	config.ResponseMIMEType = "application/json"
	config.ResponseSchema = imageResultSchema()

	resp, err := c.genai.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, endWithError(span, classify("generate structured", err))
	}

	result, err := c.decodeImageResult(resp.Text())
	if err != nil {
		return nil, endWithError(span, remote.Malformed("generate structured", err))
	}
	return result, nil
}

func (c *Client) decodeImageResult(raw string) (*ImageResult, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var result ImageResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to decode image analysis: %w", err)
	}
	if err := c.validate.Struct(result); err != nil {
		return nil, fmt.Errorf("image analysis does not match schema: %w", err)
	}
	return &result, nil
}

// CreateChatSession opens a stateful conversation seeded with history.
func (c *Client) CreateChatSession(ctx context.Context, model string, history []Turn, options ...Option) (Conversation, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		var role genai.Role = genai.RoleUser
		if turn.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}

	chat, err := c.genai.Chats.Create(ctx, model, buildConfig(applyOptions(options)), contents)
	if err != nil {
		return nil, classify("create chat", err)
	}
	return &chatSession{chat: chat, model: model}, nil
}

type chatSession struct {
	chat  *genai.Chat
	model string
}

func (s *chatSession) Send(ctx context.Context, text string) (string, error) {
	ctx, span := startSpan(ctx, "Chat.Send", s.model)
	defer span.End()

	resp, err := s.chat.SendMessage(ctx, genai.Part{Text: text})
	if err != nil {
		return "", endWithError(span, classify("chat send", err))
	}

	reply := resp.Text()
	if reply == "" {
		return "", endWithError(span, remote.Malformed("chat send", errors.New("response has no text")))
	}
	return reply, nil
}

func buildConfig(o Options) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if o.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(o.SystemInstruction, genai.RoleUser)
	}
	if o.Temperature != nil {
		config.Temperature = o.Temperature
	}
	if o.DisableThinking {
		config.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](0)}
	}
	return config
}

func imageResultSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"keywords": {
				Type:        genai.TypeArray,
				Description: "Exactly 5 single-word keywords describing the image.",
				Items:       &genai.Schema{Type: genai.TypeString},
				MinItems:    genai.Ptr[int64](5),
				MaxItems:    genai.Ptr[int64](5),
			},
			"text": {
				Type:        genai.TypeString,
				Description: "A concise, single-paragraph answer to the user's query about the image.",
			},
		},
		Required: []string{"keywords", "text"},
	}
}

// classify maps an SDK error onto a remote failure kind.
func classify(op string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return remote.Rejected(op, apiErr.Code, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return remote.Rejected(op, apiErrPtr.Code, err)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return remote.Malformed(op, err)
	}
	return remote.Transport(op, err)
}

func startSpan(ctx context.Context, name, model string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "gemini."+name, trace.WithAttributes(attribute.String("gemini.model", model)))
}

func endWithError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
