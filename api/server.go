// Package api exposes the voice agent over HTTP: one request-response cycle
// per turn, with a separate start-call operation that returns the greeting.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/policypal-ai/voicegraph/audio"
	"github.com/policypal-ai/voicegraph/call"
	"github.com/policypal-ai/voicegraph/knowledge"
)

const maxAudioUpload = 16 << 20

// Server serves the per-turn HTTP surface over a conversation engine. It
// tracks live sessions by id; terminated sessions stay registered so their
// transcripts remain inspectable until process exit.
type Server struct {
	engine *call.Engine
	store  *audio.Store
	index  *knowledge.Index

	mu       sync.RWMutex
	sessions map[string]*call.Session
}

// NewServer creates a Server. store serves synthesized audio by file name;
// index is only consulted for health reporting and may be nil.
func NewServer(engine *call.Engine, store *audio.Store, index *knowledge.Index) *Server {
	return &Server{
		engine:   engine,
		store:    store,
		index:    index,
		sessions: make(map[string]*call.Session),
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(api chi.Router) {
		api.Post("/start-call", s.handleStartCall)
		api.Post("/process-audio", s.handleProcessAudio)
		api.Post("/text-query", s.handleTextQuery)
		api.Get("/audio/{filename}", s.handleAudio)
	})

	return r
}

func (s *Server) handleStartCall(w http.ResponseWriter, r *http.Request) {
	session, opening, err := s.engine.Start(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	resp := map[string]any{
		"session_id":    session.ID(),
		"greeting_text": opening.Text,
	}
	if opening.Degraded {
		resp["greeting_audio_url"] = nil
		resp["warning"] = "TTS failed, text-only greeting"
	} else {
		resp["greeting_audio_url"] = audioURL(opening.AudioRef)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProcessAudio(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("audio")
	if err != nil {
		respondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	wav, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read audio")
		return
	}

	session := s.lookupOrCreate(r.FormValue("session_id"))
	outcome, err := s.engine.ProcessAudio(r.Context(), session, wav)
	if err != nil {
		respondError(w, turnErrorStatus(err), err.Error())
		return
	}

	resp := map[string]any{
		"session_id":     session.ID(),
		"user_text":      outcome.Turn.Transcript,
		"agent_response": outcome.Turn.Reply,
		"sources_found":  outcome.SourcesFound,
		"ended":          outcome.Ended,
	}
	if outcome.TTSDegraded {
		resp["audio_url"] = nil
		resp["warning"] = "TTS failed, text-only response"
	} else {
		resp["audio_url"] = audioURL(outcome.Turn.AgentAudioRef)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTextQuery(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text      string `json:"text"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		respondError(w, http.StatusBadRequest, "text query cannot be empty")
		return
	}

	session := s.lookupOrCreate(payload.SessionID)
	outcome, err := s.engine.ProcessText(r.Context(), session, payload.Text)
	if err != nil {
		respondError(w, turnErrorStatus(err), err.Error())
		return
	}

	resp := map[string]any{
		"session_id":     session.ID(),
		"user_text":      outcome.Turn.Transcript,
		"agent_response": outcome.Turn.Reply,
		"sources_found":  outcome.SourcesFound,
		"ended":          outcome.Ended,
	}
	if ref := outcome.Turn.AgentAudioRef; ref != "" && !outcome.TTSDegraded {
		resp["audio_url"] = audioURL(ref)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	data, err := s.store.Read(filename)
	if err != nil {
		respondError(w, http.StatusNotFound, "audio file not found")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", "inline; filename="+filename)
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	docs := 0
	if s.index != nil {
		docs = s.index.Count()
	}

	s.mu.RLock()
	active := len(s.sessions)
	s.mu.RUnlock()

	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"components": map[string]any{
			"database": map[string]any{
				"documents": docs,
			},
			"sessions": map[string]any{
				"tracked": active,
			},
		},
	})
}

// lookupOrCreate returns the registered session for id, or a fresh session
// when id is empty or unknown, so one-shot turns work without start-call.
func (s *Server) lookupOrCreate(id string) *call.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if session, ok := s.sessions[id]; ok {
			return session
		}
	}
	session := call.NewSession(callMaxTurnsUnbounded)
	s.sessions[session.ID()] = session
	return session
}

// One-shot web sessions have no capture loop, so the turn ceiling only
// matters for explicitly started calls. A large cap keeps ad-hoc sessions
// usable without the max-turns end firing.
const callMaxTurnsUnbounded = 1 << 20

func audioURL(ref string) string {
	if ref == "" {
		return ""
	}
	return "/api/audio/" + filepath.Base(ref)
}

func turnErrorStatus(err error) int {
	if errors.Is(err, call.ErrSessionTerminated) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
