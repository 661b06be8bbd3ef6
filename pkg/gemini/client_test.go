package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"silo-be/pkg/remote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Path string
	Body map[string]any
}

// fakeAPI answers every generateContent call with the given status and body.
func fakeAPI(t *testing.T, status int, body string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	requests := []capturedRequest{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var decoded map[string]any
		_ = json.Unmarshal(raw, &decoded)

		mu.Lock()
		requests = append(requests, capturedRequest{Path: r.URL.Path, Body: decoded})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), Config{APIKey: "test-key", BaseURL: baseURL})
	require.NoError(t, err)
	return c
}

func candidate(text string, extra string) string {
	textJSON, _ := json.Marshal(text)
	return `{"candidates":[{"content":{"role":"model","parts":[{"text":` + string(textJSON) + `}]}` + extra + `}]}`
}

func TestGenerateGrounded(t *testing.T) {
	answer := "Paris is the capital. ![tower](https://img/1.png) It sits on the Seine. ![river](https://img/2.png)"
	grounding := `,"groundingMetadata":{"groundingChunks":[` +
		`{"web":{"uri":"https://a.example","title":"A"}},` +
		`{"web":{"uri":"","title":"empty"}},` +
		`{"web":{"uri":"https://a.example","title":"A again"}},` +
		`{"web":{"uri":"https://b.example"}}]}`

	srv, requests := fakeAPI(t, http.StatusOK, candidate(answer, grounding))
	c := newTestClient(t, srv.URL)

	res, err := c.GenerateGrounded(context.Background(), "gemini-2.5-flash", "capital of France")
	require.NoError(t, err)

	assert.Equal(t, "Paris is the capital.  It sits on the Seine.", res.Text)
	assert.Equal(t, []string{"https://img/1.png", "https://img/2.png"}, res.Images)
	assert.Equal(t, []Source{
		{URI: "https://a.example", Title: "A"},
		{URI: "https://b.example", Title: "Untitled"},
	}, res.Sources)

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Contains(t, req.Path, "gemini-2.5-flash:generateContent")
	assert.Contains(t, req.Body, "tools")
	assert.Contains(t, req.Body, "systemInstruction")
}

func TestGenerateCreative(t *testing.T) {
	srv, requests := fakeAPI(t, http.StatusOK, candidate("# Resume\n\n**Jane**", ""))
	c := newTestClient(t, srv.URL)

	res, err := c.GenerateCreative(context.Background(), "gemini-2.5-pro", "write a CV")
	require.NoError(t, err)
	assert.Equal(t, "# Resume\n\n**Jane**", res.Text)
	assert.Empty(t, res.Sources)
	assert.Empty(t, res.Images)

	require.Len(t, *requests, 1)
	assert.NotContains(t, (*requests)[0].Body, "tools")
}

func TestGenerateStructured(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantKind remote.Kind
		wantLen  int
	}{
		{
			name:    "five keywords",
			text:    `{"keywords":["dog","grass","sun","park","play"],"text":"A dog playing."}`,
			wantLen: 5,
		},
		{
			name:    "fenced json",
			text:    "```json\n{\"keywords\":[\"a\",\"b\",\"c\",\"d\",\"e\"],\"text\":\"ok\"}\n```",
			wantLen: 5,
		},
		{
			name:     "four keywords",
			text:     `{"keywords":["dog","grass","sun","park"],"text":"A dog."}`,
			wantKind: remote.KindMalformed,
		},
		{
			name:     "multi word keyword",
			text:     `{"keywords":["golden retriever","grass","sun","park","play"],"text":"A dog."}`,
			wantKind: remote.KindMalformed,
		},
		{
			name:     "missing text",
			text:     `{"keywords":["a","b","c","d","e"]}`,
			wantKind: remote.KindMalformed,
		},
		{
			name:     "not json",
			text:     "I think this is a dog.",
			wantKind: remote.KindMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, requests := fakeAPI(t, http.StatusOK, candidate(tt.text, ""))
			c := newTestClient(t, srv.URL)

			res, err := c.GenerateStructured(context.Background(), "gemini-2.5-pro",
				ImageAnalysisPrompt(""), &Image{Data: []byte{0x89, 0x50}, MimeType: "image/png"})

			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, remote.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Len(t, res.Keywords, tt.wantLen)
			assert.NotEmpty(t, res.Text)

			body := (*requests)[0].Body
			config, _ := body["generationConfig"].(map[string]any)
			assert.Equal(t, "application/json", config["responseMimeType"])
		})
	}
}

func TestGenerateStructuredRequiresImage(t *testing.T) {
	srv, requests := fakeAPI(t, http.StatusOK, candidate("{}", ""))
	c := newTestClient(t, srv.URL)

	_, err := c.GenerateStructured(context.Background(), "gemini-2.5-pro", "what", nil)
	assert.Error(t, err)
	assert.Empty(t, *requests)
}

func TestRejectedResponse(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
	c := newTestClient(t, srv.URL)

	_, err := c.GeneratePlain(context.Background(), "gemini-2.5-flash", "hello")
	require.Error(t, err)
	assert.Equal(t, remote.KindRejected, remote.KindOf(err))
}

func TestTransportFailure(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusOK, candidate("unused", ""))
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url)
	_, err := c.GeneratePlain(context.Background(), "gemini-2.5-flash", "hello")
	require.Error(t, err)
	assert.Equal(t, remote.KindTransport, remote.KindOf(err))
}

func TestEmptyAnswerIsMalformed(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusOK, `{"candidates":[]}`)
	c := newTestClient(t, srv.URL)

	_, err := c.GeneratePlain(context.Background(), "gemini-2.5-flash", "hello")
	require.Error(t, err)
	assert.Equal(t, remote.KindMalformed, remote.KindOf(err))
}

func TestChatSessionKeepsHistory(t *testing.T) {
	srv, requests := fakeAPI(t, http.StatusOK, candidate("Lyon is second.", ""))
	c := newTestClient(t, srv.URL)

	chat, err := c.CreateChatSession(context.Background(), "gemini-2.5-pro", []Turn{
		{Role: RoleUser, Content: "capital of France"},
		{Role: RoleModel, Content: "Paris."},
	})
	require.NoError(t, err)

	reply, err := chat.Send(context.Background(), "and the second city?")
	require.NoError(t, err)
	assert.Equal(t, "Lyon is second.", reply)

	_, err = chat.Send(context.Background(), "thanks")
	require.NoError(t, err)

	require.Len(t, *requests, 2)
	first, _ := (*requests)[0].Body["contents"].([]any)
	second, _ := (*requests)[1].Body["contents"].([]any)
	assert.Len(t, first, 3)
	// history, first exchange, new message
	assert.Len(t, second, 5)

	seed, _ := first[1].(map[string]any)
	assert.Equal(t, "model", seed["role"])
}

func TestVoiceOptionsDisableThinking(t *testing.T) {
	srv, requests := fakeAPI(t, http.StatusOK, candidate("Hi there.", ""))
	c := newTestClient(t, srv.URL)

	chat, err := c.CreateChatSession(context.Background(), "gemini-2.5-flash", nil,
		WithSystemInstruction(VoiceInstruction), WithoutThinking())
	require.NoError(t, err)

	_, err = chat.Send(context.Background(), "hello")
	require.NoError(t, err)

	body := (*requests)[0].Body
	config, _ := body["generationConfig"].(map[string]any)
	thinking, _ := config["thinkingConfig"].(map[string]any)
	assert.EqualValues(t, 0, thinking["thinkingBudget"])

	instruction, _ := json.Marshal(body["systemInstruction"])
	assert.True(t, strings.Contains(string(instruction), "Silo Live"))
}
