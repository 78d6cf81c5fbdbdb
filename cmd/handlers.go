package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/retell-relay/internal/relay"
	"github.com/sells-group/retell-relay/pkg/salesforce"
)

const (
	requestIDHeader = "X-Request-Id"
	timestampLayout = "2006-01-02T15:04:05.000Z"
	maxWebhookBytes = 1 << 20
	fieldSampleSize = 15
)

// relayService is the part of relay.Service the HTTP layer uses.
type relayService interface {
	Process(ctx context.Context, payload map[string]any) (*relay.Result, error)
	CheckConnection(ctx context.Context) (*relay.ConnectionReport, error)
	AvailableFields(ctx context.Context) (*relay.FieldsReport, error)
}

// requestID assigns every request an id, echoes it in X-Request-Id and puts
// a logger carrying it into the request context.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		log := zap.L().With(zap.String("request_id", id))
		next.ServeHTTP(w, r.WithContext(relay.WithLogger(r.Context(), log)))
	})
}

type handlers struct {
	svc relayService
	now func() time.Time
}

func (h *handlers) timestamp() string {
	return h.now().UTC().Format(timestampLayout)
}

func (h *handlers) banner(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "OK",
		"message": "Retell to Salesforce webhook relay",
		"endpoints": []string{
			"POST /retell-webhook",
			"GET /health",
			"GET /test-sf-connection",
			"GET /check-available-fields",
		},
	})
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type webhookResponse struct {
	Success       bool    `json:"success"`
	Message       string  `json:"message"`
	SalesforceID  string  `json:"salesforceId"`
	LeadStatus    string  `json:"leadStatus"`
	OriginalInput *string `json:"originalInput"`
	Mapping       string  `json:"mapping"`
	Timestamp     string  `json:"timestamp"`
}

func (h *handlers) webhook(w http.ResponseWriter, r *http.Request) {
	log := relay.Logger(r.Context())
	log.Info("received retell webhook", zap.String("remote_addr", r.RemoteAddr))

	if h.svc == nil {
		h.fail(w, http.StatusServiceUnavailable, "relay not configured")
		return
	}

	var payload map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil || payload == nil {
		log.Warn("webhook body is not a JSON object", zap.Error(err))
		h.fail(w, http.StatusBadRequest, "invalid request body: expected a JSON object")
		return
	}

	res, err := h.svc.Process(r.Context(), payload)
	if err != nil {
		status := errorStatus(err)
		if status >= http.StatusInternalServerError {
			log.Error("webhook processing failed", zap.Error(err))
			h.fail(w, status, "internal server error")
			return
		}
		log.Warn("webhook rejected", zap.Int("status", status), zap.Error(err))
		h.fail(w, status, publicMessage(err))
		return
	}

	original := res.Lead.ExistingOrNew
	in := ""
	if original != nil {
		in = *original
	}
	writeJSON(w, http.StatusOK, webhookResponse{
		Success:       true,
		Message:       "Data processed and pushed to Salesforce successfully",
		SalesforceID:  res.LeadID,
		LeadStatus:    res.Mapped.Status,
		OriginalInput: original,
		Mapping:       `"` + in + `" → "` + res.Mapped.Status + `"`,
		Timestamp:     h.timestamp(),
	})
}

func (h *handlers) testConnection(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		h.fail(w, http.StatusServiceUnavailable, "relay not configured")
		return
	}
	rep, err := h.svc.CheckConnection(r.Context())
	if err != nil {
		relay.Logger(r.Context()).Warn("salesforce connection test failed", zap.Error(err))
		h.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "Salesforce connection successful",
		"instanceUrl": rep.InstanceURL,
		"leadsSeen":   rep.LeadsSeen,
		"timestamp":   h.timestamp(),
	})
}

func (h *handlers) availableFields(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		h.fail(w, http.StatusServiceUnavailable, "relay not configured")
		return
	}
	rep, err := h.svc.AvailableFields(r.Context())
	if err != nil {
		relay.Logger(r.Context()).Warn("describe lead failed", zap.Error(err))
		h.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	sample := rep.CustomFields
	if len(sample) > fieldSampleSize {
		sample = sample[:fieldSampleSize]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"available_lead_statuses": nonNil(rep.Picklists.Statuses),
		"damage_types":            nonNil(rep.Picklists.DamageTypes),
		"damage_amounts":          nonNil(rep.Picklists.DamageAmounts),
		"custom_fields_count":     len(rep.CustomFields),
		"custom_fields_sample":    nonNil(sample),
	})
}

func (h *handlers) fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"success":   false,
		"error":     msg,
		"timestamp": h.timestamp(),
	})
}

// errorStatus maps pipeline errors to HTTP status codes. Anything the caller
// or the CRM rejected is a 400; unexpected failures are a 500.
func errorStatus(err error) int {
	var (
		exErr   *relay.ExtractionError
		valErr  *relay.ValidationError
		subErr  *relay.SubmissionError
		authErr *salesforce.AuthError
	)
	switch {
	case errors.As(err, &exErr), errors.As(err, &valErr), errors.As(err, &subErr), errors.As(err, &authErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage strips the package prefix from err for API responses.
func publicMessage(err error) string {
	return strings.TrimPrefix(err.Error(), "relay: ")
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
