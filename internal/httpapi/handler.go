// Package httpapi implements the HTTP query surface: REST-style handlers that translate requests
// into mail repository broker commands and an SSE endpoint that streams lifecycle events.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nwaters/catchmail/internal/mail"
	"github.com/nwaters/catchmail/internal/sse"
	"github.com/nwaters/catchmail/internal/store"
	"github.com/nwaters/catchmail/lalog"
)

// summary is the JSON shape returned for each entry of GET /mails.
type summary struct {
	ID      string   `json:"id"`
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Date    string   `json:"date"`
	Size    int      `json:"size"`
}

func toSummary(m *mail.Mail) summary {
	return summary{
		ID:      m.ID.String(),
		From:    m.From,
		To:      m.To,
		Subject: m.Subject,
		Date:    m.Date.Format(time.RFC3339),
		Size:    m.Size,
	}
}

// detail is the JSON shape returned by GET /mail/:id. Headers and Raw are two representations of
// the same header array — humanised and raw-as-received respectively. Header humanisation (RFC
// 2047 decoding) is an external collaborator out of scope for this module (spec.md §1), so both
// fields currently carry the same raw header projection.
type detail struct {
	Headers []string `json:"headers"`
	Raw     []string `json:"raw"`
	Data    string   `json:"data"`
}

// source is the JSON shape returned by GET /mail/:id/source.
type source struct {
	Headers string `json:"headers"`
	Content string `json:"content"`
}

// Server wires the broker and SSE bus to the route table in §6.2.
type Server struct {
	Broker *store.Broker
	Bus    *sse.Bus

	logger lalog.Logger
}

// NewServer constructs a Server bound to broker and bus.
func NewServer(broker *store.Broker, bus *sse.Bus) *Server {
	return &Server{Broker: broker, Bus: bus, logger: lalog.Logger{ComponentName: "httpapi.Server"}}
}

// Routes registers every handler in §6.2 onto mux, plus /metrics. The query routes are wrapped with
// request-duration instrumentation; /sse and /metrics are not.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/mails", RecordPrometheusStats("/mails", s.handleMails))
	mux.HandleFunc("/mail/", RecordPrometheusStats("/mail/", s.handleMailSubpaths))
	mux.HandleFunc("/remove/all", RecordPrometheusStats("/remove/all", s.handleRemoveAll))
	mux.HandleFunc("/remove/", RecordPrometheusStats("/remove/", s.handleRemove))
	mux.HandleFunc("/sse", s.handleSSE)
	mux.Handle("/metrics", promhttp.Handler())
}

// noCache marks a response as never to be cached by an intermediary, matching the behaviour a
// development tool like this one needs: every response reflects the repository's current state.
func noCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}

func (s *Server) handleMails(w http.ResponseWriter, r *http.Request) {
	noCache(w)
	mails, err := s.Broker.GetAll(r.Context())
	if err != nil {
		s.logger.MaybeMinorError(err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	summaries := make([]summary, 0, len(mails))
	for _, m := range mails {
		summaries = append(summaries, toSummary(m))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

// handleMailSubpaths dispatches /mail/:id, /mail/:id/text, /mail/:id/html, and /mail/:id/source.
func (s *Server) handleMailSubpaths(w http.ResponseWriter, r *http.Request) {
	rest := r.URL.Path[len("/mail/"):]
	idPart, suffix := splitFirstSegment(rest)

	id, err := mail.ParseID(idPart)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	m, err := s.Broker.Get(r.Context(), id)
	if err != nil {
		s.logger.MaybeMinorError(err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if m == nil {
		http.NotFound(w, r)
		return
	}

	noCache(w)
	switch suffix {
	case "":
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(detail{Headers: m.Headers, Raw: m.Headers, Data: m.Body})
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(m.Body))
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(htmlPart(m)))
	case "source":
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(source{Headers: joinCRLF(m.Headers), Content: m.Body})
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleRemoveAll(w http.ResponseWriter, r *http.Request) {
	removed, err := s.Broker.RemoveAll(r.Context())
	if err != nil {
		s.logger.MaybeMinorError(err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	for _, id := range removed {
		s.Bus.PublishDelMail(r.Context(), id)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK: " + strconv.Itoa(len(removed))))
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	idPart := r.URL.Path[len("/remove/"):]
	id, err := mail.ParseID(idPart)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	removedID, err := s.Broker.Remove(r.Context(), id)
	if err != nil {
		s.logger.MaybeMinorError(err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if removedID == nil {
		http.NotFound(w, r)
		return
	}
	s.Bus.PublishDelMail(r.Context(), *removedID)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK: 1"))
}

func splitFirstSegment(path string) (head, rest string) {
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			return path[:i], path[i+1:]
		}
	}
	return path, ""
}

func joinCRLF(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\r\n"
		}
		out += l
	}
	return out
}

// htmlPart returns the body when the message's first Content-Type header names text/html, and an
// empty string otherwise. It is a best-effort header check over the already-split body, not a
// multipart decoder: an HTML part inside a multipart message is not found.
func htmlPart(m *mail.Mail) string {
	const prefix = "content-type:"
	for _, h := range m.Headers {
		if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
			continue
		}
		if strings.Contains(strings.ToLower(h), "text/html") {
			return m.Body
		}
		return ""
	}
	return ""
}
