package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vitalhq/medsearch/internal/answer"
	"github.com/vitalhq/medsearch/internal/auth"
	"github.com/vitalhq/medsearch/internal/rag"
)

type scriptedClient struct {
	requests []openai.ChatCompletionRequest
	text     string
	err      error
}

func (c *scriptedClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return openai.ChatCompletionResponse{}, c.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: c.text}},
		},
	}, nil
}

type stubVerifier struct {
	identity auth.Identity
	err      error
}

func (v *stubVerifier) Verify(ctx context.Context, idToken string) (auth.Identity, error) {
	return v.identity, v.err
}

func newServer(client *scriptedClient) *Server {
	return &Server{
		Pipeline: &rag.Pipeline{
			Generator: &answer.Generator{
				Client:       client,
				DefaultModel: "openrouter/auto",
			},
		},
		Models:       []string{"openrouter/auto", "deepseek/deepseek-chat-v3-0324:free"},
		DefaultModel: "openrouter/auto",
		Verifier:     &stubVerifier{identity: auth.Identity{Sub: "10987654321", Email: "dr@example.org", Name: "Dr. Example"}},
		Sessions:     &auth.Sessions{Secret: []byte("test-secret")},
	}
}

func TestRootLiveness(t *testing.T) {
	srv := httptest.NewServer(newServer(&scriptedClient{text: "ok"}).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestModels(t *testing.T) {
	srv := httptest.NewServer(newServer(&scriptedClient{}).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/models")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		Models  []string `json:"models"`
		Default string   `json:"default"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Models) != 2 || body.Default != "openrouter/auto" {
		t.Fatalf("body = %+v", body)
	}
}

func TestAskRequiresQuestion(t *testing.T) {
	srv := httptest.NewServer(newServer(&scriptedClient{}).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/ask", "application/json", strings.NewReader(`{"model":"openrouter/auto"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAskRejectsInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(newServer(&scriptedClient{}).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/ask", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAskDirectMode(t *testing.T) {
	client := &scriptedClient{text: "Drink fluids and rest."}
	srv := httptest.NewServer(newServer(client).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/ask", "application/json",
		strings.NewReader(`{"question":"how to treat a cold","mode":"ai"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Title   string   `json:"title"`
		Answer  string   `json:"answer"`
		Sources []any    `json:"sources"`
		Points  []string `json:"points"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Title != "AI Response" {
		t.Fatalf("title = %q", body.Title)
	}
	if body.Answer != "Drink fluids and rest." {
		t.Fatalf("answer = %q", body.Answer)
	}
}

func TestAskGenerationFailureIs502(t *testing.T) {
	client := &scriptedClient{err: &openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "bad request"}}
	srv := httptest.NewServer(newServer(client).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/ask", "application/json",
		strings.NewReader(`{"question":"q","mode":"ai"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["error"] == "" {
		t.Fatal("expected error body")
	}
}

func TestAskFormWithImage(t *testing.T) {
	client := &scriptedClient{text: "Looks like a rash."}
	srv := httptest.NewServer(newServer(client).Router())
	defer srv.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("question", "what is this"); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteField("mode", "ai"); err != nil {
		t.Fatal(err)
	}
	part, err := mw.CreateFormFile("image", "photo.png")
	if err != nil {
		t.Fatal(err)
	}
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}
	if _, err := part.Write(png); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	resp, err := http.Post(srv.URL+"/ask-form", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(client.requests) != 1 {
		t.Fatalf("generation calls = %d", len(client.requests))
	}
	// The uploaded image must reach the model as a multimodal part.
	msgs := client.requests[0].Messages
	last := msgs[len(msgs)-1]
	found := false
	for _, p := range last.MultiContent {
		if p.Type == openai.ChatMessagePartTypeImageURL {
			found = true
		}
	}
	if !found {
		t.Fatal("no image part in model request")
	}
	// Spooled upload files must not leak.
	leftovers, err := filepath.Glob(filepath.Join(os.TempDir(), "medsearch-upload-*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("leftover upload files: %v", leftovers)
	}
}

func TestAskFormWebModeIgnoresImage(t *testing.T) {
	client := &scriptedClient{text: "From trusted sources."}
	srv := httptest.NewServer(newServer(client).Router())
	defer srv.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("question", "what is this"); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteField("mode", "search"); err != nil {
		t.Fatal(err)
	}
	part, err := mw.CreateFormFile("image", "photo.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	resp, err := http.Post(srv.URL+"/ask-form", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	// The attachment must not silently flip the query out of web mode.
	if body.Title != "Search Results for 'what is this'" {
		t.Fatalf("title = %q", body.Title)
	}
	if len(client.requests) != 1 {
		t.Fatalf("generation calls = %d", len(client.requests))
	}
	for _, m := range client.requests[0].Messages {
		for _, p := range m.MultiContent {
			if p.Type == openai.ChatMessagePartTypeImageURL {
				t.Fatal("image part attached in web mode")
			}
		}
	}
}

func TestAskFormRequiresQuestion(t *testing.T) {
	srv := httptest.NewServer(newServer(&scriptedClient{}).Router())
	defer srv.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("mode", "ai")
	mw.Close()

	resp, err := http.Post(srv.URL+"/ask-form", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAuthVerifySuccess(t *testing.T) {
	srv := httptest.NewServer(newServer(&scriptedClient{}).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/auth/verify", "application/json",
		strings.NewReader(`{"id_token":"google-token"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Token string            `json:"token"`
		User  map[string]string `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Token == "" {
		t.Fatal("no session token")
	}
	if body.User["email"] != "dr@example.org" || body.User["sub"] != "10987654321" {
		t.Fatalf("user = %v", body.User)
	}

	sessions := &auth.Sessions{Secret: []byte("test-secret")}
	claims, err := sessions.Parse(body.Token)
	if err != nil {
		t.Fatalf("issued token does not parse: %v", err)
	}
	if claims.Email != "dr@example.org" {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.Subject != "10987654321" {
		t.Fatalf("Subject = %q, want the verified sub", claims.Subject)
	}
}

func TestAuthVerifyBearerHeader(t *testing.T) {
	srv := httptest.NewServer(newServer(&scriptedClient{}).Router())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/auth/verify", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer google-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestAuthVerifyMissingToken(t *testing.T) {
	srv := httptest.NewServer(newServer(&scriptedClient{}).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/auth/verify", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["error"] != "missing token" {
		t.Fatalf("error = %q", body["error"])
	}
}

func TestAuthVerifyInvalidToken(t *testing.T) {
	s := newServer(&scriptedClient{})
	s.Verifier = &stubVerifier{err: auth.ErrInvalidToken}
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/auth/verify", "application/json",
		strings.NewReader(`{"id_token":"bad"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["error"] != "invalid token" {
		t.Fatalf("error = %q", body["error"])
	}
}
