package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"copbot/internal/chat"
	"copbot/internal/translate"

	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"golang.org/x/text/language"
)

//go:embed templates/*
var templatesFS embed.FS

const (
	sessionCookie  = "copbot_session"
	languageCookie = "lang"
)

// Server serves the chat page and the JSON chat API.
type Server struct {
	chat     *chat.Service
	sessions *chat.Sessions
	tmpl     *template.Template
	md       goldmark.Markdown
	matcher  language.Matcher
	addr     string
}

func New(svc *chat.Service, sessions *chat.Sessions, addr string) (*Server, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Server{
		chat:     svc,
		sessions: sessions,
		tmpl:     tmpl,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		matcher: language.NewMatcher(translate.Supported),
		addr:    addr,
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /language", s.handleLanguage)
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("POST /api/chat", s.handleAPIChat)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return loggingMiddleware(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Server shutdown")
		}
	}()

	log.Info().Str("addr", s.addr).Msg("Web UI listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type languageOption struct {
	Code   string
	Name   string
	Active bool
}

type viewMessage struct {
	Role string
	HTML template.HTML
}

type pageData struct {
	Lang          string
	LanguageLabel string
	Languages     []languageOption
	Text          chat.UIText
	Messages      []viewMessage
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	s.chat.EnsureWelcome(sess)

	lang := sess.Language()
	code, _ := translate.Code(lang)
	data := pageData{
		Lang:          code,
		LanguageLabel: chat.LanguageLabel,
		Text:          chat.Text(lang),
	}
	for _, tag := range translate.Supported {
		c, _ := translate.Code(tag)
		data.Languages = append(data.Languages, languageOption{Code: c, Name: chat.Text(tag).Name, Active: c == code})
	}
	for _, m := range sess.Messages() {
		data.Messages = append(data.Messages, viewMessage{Role: m.Role, HTML: s.render(m.Content)})
	}

	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, "index.html", data); err != nil {
		log.Error().Err(err).Msg("Rendering page")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleLanguage(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	var tag language.Tag
	if v := r.PostFormValue("lang"); v != "" {
		if tag, err = translate.Parse(v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	} else if code, _ := translate.Code(sess.Language()); code == "ta" {
		tag = language.English
	} else {
		tag = language.Tamil
	}

	sess.SetLanguage(tag)
	http.SetCookie(w, &http.Cookie{Name: languageCookie, Value: tag.String(), Path: "/", MaxAge: 365 * 24 * 3600, SameSite: http.SameSiteLaxMode})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	s.chat.EnsureWelcome(sess)

	if action := r.PostFormValue("action"); action != "" {
		idx, err := strconv.Atoi(action)
		if err == nil {
			_, err = s.chat.QuickAction(r.Context(), sess, idx)
		}
		if err != nil {
			http.Error(w, "unknown action", http.StatusBadRequest)
			return
		}
	} else if prompt := strings.TrimSpace(r.PostFormValue("prompt")); prompt != "" {
		s.chat.Ask(r.Context(), sess, prompt)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Language  string `json:"language"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
	Language  string `json:"language"`
}

func (s *Server) handleAPIChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSONError(w, http.StatusBadRequest, "message is required")
		return
	}

	lang := language.English
	if req.Language != "" {
		tag, err := translate.Parse(req.Language)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		lang = tag
	}

	sess, err := s.sessions.Get(req.SessionID, lang)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	if req.Language != "" {
		sess.SetLanguage(lang)
	}

	reply := s.chat.Ask(r.Context(), sess, strings.TrimSpace(req.Message))
	code, _ := translate.Code(sess.Language())
	writeJSON(w, http.StatusOK, chatResponse{SessionID: sess.ID, Answer: reply.Content, Language: code})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// session returns the caller's session, issuing a cookie for new ones.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*chat.Session, error) {
	var id string
	if c, err := r.Cookie(sessionCookie); err == nil {
		id = c.Value
	}
	sess, err := s.sessions.Get(id, s.requestLanguage(r))
	if err != nil {
		return nil, err
	}
	if sess.ID != id {
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: sess.ID, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	}
	return sess, nil
}

// requestLanguage prefers the lang cookie, then Accept-Language.
func (s *Server) requestLanguage(r *http.Request) language.Tag {
	if c, err := r.Cookie(languageCookie); err == nil {
		if tag, err := translate.Parse(c.Value); err == nil {
			return tag
		}
	}
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, _ := s.matcher.Match(tags...)
	return translate.Supported[idx]
}

// render converts markdown to HTML. Raw HTML in the input is dropped.
func (s *Server) render(content string) template.HTML {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(content), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(content))
	}
	return template.HTML(buf.String())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Writing response")
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
