package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
)

// Local stand-in for an OpenAI-compatible chat endpoint. Lets the server and
// its pipeline run end to end without an OpenRouter key: point LLM_BASE_URL
// at this process.

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func main() {
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}

	models := []string{
		"moonshotai/kimi-vl-a3b-thinking:free",
		"openrouter/auto",
		"qwen/qwen2.5-vl-32b-instruct:free",
		"deepseek/deepseek-chat-v3-0324:free",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		data := make([]map[string]any, 0, len(models))
		for _, m := range models {
			data = append(data, map[string]any{"id": m, "object": "model"})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		question := ""
		hasContext := false
		for _, m := range req.Messages {
			if m.Role == "user" {
				question = m.Content
			}
			if strings.Contains(m.Content, "Context:") {
				hasContext = true
			}
		}
		if idx := strings.Index(question, "\n\nContext:"); idx >= 0 {
			question = question[:idx]
		}
		question = strings.TrimPrefix(strings.TrimSpace(question), "Question: ")

		mode := "general knowledge"
		if hasContext {
			mode = "the retrieved sources"
		}
		content := fmt.Sprintf(
			"Based on %s, here is a brief overview for: %s\n- Consult a healthcare professional for a diagnosis.\n- This stub answer is for local development only.\n- Configure a real model endpoint for production use.",
			mode, question)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": req.Model,
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	})

	log.Printf("llm-stub listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}
