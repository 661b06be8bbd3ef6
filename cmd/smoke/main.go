package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
)

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type state struct {
	RequestID uint64 `json:"request_id"`
	View      string `json:"view"`
	Model     string `json:"model"`
	IsLoading bool   `json:"is_loading"`
	Error     string `json:"error"`
	Result    *struct {
		Web *struct {
			Text    string `json:"text"`
			Sources []struct {
				URI string `json:"uri"`
			} `json:"sources"`
		} `json:"web"`
	} `json:"result"`
	ChatHistory []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"chat_history"`
}

type smoke struct {
	baseURL string
	token   string
	client  *http.Client
}

// Request helper
func (s *smoke) send(method, path string, body interface{}, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, s.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s: undecodable body %q", resp.Status, raw)
	}
	if !env.Success {
		return fmt.Errorf("%s: %s", resp.Status, env.Message)
	}
	if out != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func must(step string, err error) {
	if err != nil {
		color.Red("[FAIL] %s: %v", step, err)
		os.Exit(1)
	}
	color.Green("[OK] %s", step)
}

func main() {
	baseURL := flag.String("url", "http://localhost:3000/api", "API base URL")
	query := flag.String("query", "What is the tallest building in the world?", "search query")
	flag.Parse()

	s := &smoke{baseURL: *baseURL, client: &http.Client{Timeout: 2 * time.Minute}}
	color.Cyan("🚀 Silo smoke test against %s\n", s.baseURL)

	// 1. Session
	var session struct {
		Token     string `json:"token"`
		SessionID string `json:"session_id"`
		ClientID  string `json:"client_id"`
	}
	must("create session", s.send("POST", "/session/v1", map[string]string{}, &session))
	s.token = session.Token
	fmt.Printf("session=%s client=%s\n", session.SessionID, session.ClientID)

	// 2. Settings
	var settings map[string]interface{}
	must("load settings", s.send("GET", "/settings/v1", nil, &settings))
	must("update settings", s.send("PATCH", "/settings/v1", map[string]string{"inputTheme": "black"}, &settings))
	fmt.Printf("inputTheme=%v\n", settings["inputTheme"])

	// 3. Search
	color.Yellow("\nSearching: %s", *query)
	var st state
	must("submit search", s.send("POST", "/search/v1/submit", map[string]interface{}{
		"query": *query,
		"wait":  true,
	}, &st))
	if st.Error != "" {
		color.Red("[FAIL] search: %s", st.Error)
		os.Exit(1)
	}
	fmt.Printf("view=%s model=%s\n", st.View, st.Model)

	if st.View != "results" {
		must("complete animation", s.send("POST", "/search/v1/complete", map[string]uint64{"request_id": st.RequestID}, &st))
	}
	if st.Result == nil || st.Result.Web == nil {
		color.Red("[FAIL] no web result in view %s", st.View)
		os.Exit(1)
	}
	fmt.Printf("answer (%d chars, %d sources)\n", len(st.Result.Web.Text), len(st.Result.Web.Sources))

	// 4. Chat
	must("start chat", s.send("POST", "/chat/v1/start", nil, &st))
	must("send chat message", s.send("POST", "/chat/v1/message", map[string]string{"text": "Summarise that in one sentence."}, &st))
	if n := len(st.ChatHistory); n > 0 {
		fmt.Printf("%s: %s\n", st.ChatHistory[n-1].Role, st.ChatHistory[n-1].Content)
	}

	// 5. Reset
	must("new search", s.send("POST", "/session/v1/new-search", nil, &st))
	fmt.Printf("view=%s\n", st.View)

	color.Cyan("\n✅ Smoke test passed")
}
