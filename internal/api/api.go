package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/vitalhq/medsearch/internal/auth"
	"github.com/vitalhq/medsearch/internal/rag"
)

// maxUploadBytes bounds multipart form bodies, image included.
const maxUploadBytes = 16 << 20

// Server holds the wired dependencies behind the HTTP surface. Handlers stay
// thin: decode, delegate, encode.
type Server struct {
	Pipeline       *rag.Pipeline
	Models         []string
	DefaultModel   string
	Verifier       auth.Verifier
	Sessions       *auth.Sessions
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// Router assembles the chi router with the full middleware chain.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/models", s.handleModels)
	r.Post("/ask", s.handleAsk)
	r.Post("/ask-form", s.handleAskForm)
	r.Post("/auth/verify", s.handleAuthVerify)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.Logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "medsearch",
		"status":  "ok",
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models":  s.Models,
		"default": s.DefaultModel,
	})
}

type askRequest struct {
	Question  string `json:"question"`
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	// Pointer so temperature 0 survives the trip; absent means default.
	Temperature *float32 `json:"temperature"`
	Mode        string   `json:"mode"`
	UseRAG      bool     `json:"use_rag"`
	MaxResults  int      `json:"max_results"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	s.answer(w, r, rag.Query{
		Question:     req.Question,
		Mode:         req.Mode,
		Model:        req.Model,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		UseKnowledge: req.UseRAG,
		MaxPages:     req.MaxResults,
	})
}

func (s *Server) handleAskForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	question := r.FormValue("question")
	if question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	q := rag.Query{
		Question: question,
		Mode:     r.FormValue("mode"),
		Model:    r.FormValue("model"),
	}

	// Vision input only applies in direct mode; web retrieval ignores any
	// attached image rather than silently switching modes.
	if q.Mode == rag.ModeDirect {
		if file, _, err := r.FormFile("image"); err == nil {
			defer file.Close()
			image, err := spoolUpload(file)
			if err != nil {
				s.Logger.Warn().Err(err).Msg("reading uploaded image")
				writeError(w, http.StatusBadRequest, "could not read image")
				return
			}
			q.Image = image
		}
	}

	s.answer(w, r, q)
}

// spoolUpload stages the upload in a temp file before handing bytes to the
// generator. The file is removed before returning on every path.
func spoolUpload(file io.Reader) ([]byte, error) {
	tmp, err := os.CreateTemp("", "medsearch-upload-*")
	if err != nil {
		return nil, err
	}
	name := tmp.Name()
	defer os.Remove(name)
	if _, err := io.Copy(tmp, io.LimitReader(file, maxUploadBytes)); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	return os.ReadFile(name)
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request, q rag.Query) {
	result, err := s.Pipeline.Answer(r.Context(), q)
	if err != nil {
		s.Logger.Error().Err(err).Str("question", q.Question).Msg("answer generation failed")
		writeError(w, http.StatusBadGateway, "answer generation failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type verifyRequest struct {
	IDToken string `json:"id_token"`
}

func (s *Server) handleAuthVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if r.Body != nil {
		// Body is optional; the token may arrive as a Bearer header instead.
		_ = json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req)
	}
	idToken := req.IDToken
	if idToken == "" {
		if header, err := auth.FromRequest(r); err == nil {
			idToken = header
		}
	}
	if idToken == "" {
		writeError(w, http.StatusUnauthorized, "missing token")
		return
	}

	identity, err := s.Verifier.Verify(r.Context(), idToken)
	if err != nil {
		reason := "invalid token"
		if errors.Is(err, auth.ErrMissingToken) {
			reason = "missing token"
		}
		s.Logger.Warn().Err(err).Msg("token verification failed")
		writeError(w, http.StatusUnauthorized, reason)
		return
	}

	session, err := s.Sessions.Issue(identity)
	if err != nil {
		s.Logger.Error().Err(err).Msg("issuing session token")
		writeError(w, http.StatusInternalServerError, "could not issue session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": session,
		"user": map[string]string{
			"sub":   identity.Sub,
			"email": identity.Email,
			"name":  identity.Name,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
