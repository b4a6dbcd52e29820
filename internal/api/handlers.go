package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jalliet/UM-GemiFish/internal/models"
)

const indexPage = `<h1>Health Service WhatsApp Bot</h1>
<p>A health assistance service that collects patient information and receives images via WhatsApp.</p>
<h3>Features:</h3>
<ul>
    <li>Initial triage questionnaire for new users</li>
    <li>Image storage for health-related photos</li>
    <li>Message history tracking per patient</li>
    <li>Health-focused conversation handling</li>
</ul>
<p>Send a message to your configured WhatsApp number to get started!</p>
`

// messageHandler is the Twilio webhook: one form-encoded inbound event in,
// one TwiML reply out. Routing failures still produce a TwiML reply so the
// contact is never left without an answer.
func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.messageHandler: malformed form", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	event := models.InboundEvent{
		From:             r.FormValue("From"),
		Body:             r.FormValue("Body"),
		MediaURL:         r.FormValue("MediaUrl0"),
		MediaContentType: r.FormValue("MediaContentType0"),
	}
	if event.From == "" {
		slog.Warn("Server.messageHandler: missing sender")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	slog.Info("inbound message", "from", event.From, "body_length", len(event.Body), "has_media", event.HasMedia())

	reply, err := s.router.Handle(r.Context(), event)
	if err != nil {
		slog.Error("Server.messageHandler: routing failed", "from", event.From, "error", err)
		writeTwiML(w, "Sorry, something went wrong on our side. Please try again later.")
		return
	}
	writeTwiML(w, reply)
}

// sendRequest is the body of POST /send.
type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// sendHandler pushes an outbound message through the configured messaging
// service, for operator-initiated notifications.
func (s *Server) sendHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "invalid JSON body"})
		return
	}
	if req.To == "" || req.Body == "" {
		writeJSONResponse(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "to and body are required"})
		return
	}
	if err := s.messenger.SendMessage(r.Context(), req.To, req.Body); err != nil {
		slog.Error("Server.sendHandler: send failed", "to", req.To, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": "failed to send message"})
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "sent"})
}

// scheduleRequest is the body of POST /schedule.
type scheduleRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
	Cron string `json:"cron"`
}

// scheduleHandler registers a recurring outbound message, e.g. a periodic
// checkup reminder.
func (s *Server) scheduleHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.sched == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": "scheduler not configured"})
		return
	}
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "invalid JSON body"})
		return
	}
	if req.To == "" || req.Body == "" || req.Cron == "" {
		writeJSONResponse(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "to, body and cron are required"})
		return
	}
	to, body := req.To, req.Body
	err := s.sched.AddJob(req.Cron, func() {
		if err := s.messenger.SendMessage(context.Background(), to, body); err != nil {
			slog.Error("scheduled send failed", "to", to, "error", err)
		}
	})
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "invalid cron expression"})
		return
	}
	slog.Info("scheduled recurring message", "to", to, "cron", req.Cron)
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "scheduled"})
}

// healthHandler reports service health, with the contact count as a storage
// liveness indicator.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	statusCode := http.StatusOK
	if summaries, err := s.store.List(); err != nil {
		slog.Warn("Health check: failed to list contacts", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to fetch contact metrics"
		statusCode = http.StatusServiceUnavailable
	} else {
		healthData["contacts"] = len(summaries)
	}
	writeJSONResponse(w, statusCode, healthData)
}

// indexHandler serves a short page confirming the service is up.
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(indexPage)); err != nil {
		slog.Error("Server.indexHandler: failed to write response", "error", err)
	}
}
