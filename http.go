package intake

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/interactive-solutions/go-intake/internal"
	"github.com/pkg/errors"
)

const maxBodyBytes = 64 << 10

var acknowledgements = map[JobKind]string{
	JobCallback: "Callback request queued successfully. You will be contacted soon.",
	JobProject:  "Project request queued successfully. We will review your submission.",
}

type HttpHandler struct {
	app *application
}

// Router wires every route of the intake API behind the CORS policy.
func (h *HttpHandler) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/callback", h.Submit(JobCallback)).Methods(http.MethodPost)
	r.HandleFunc("/project", h.Submit(JobProject)).Methods(http.MethodPost)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(h.NotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(h.NotFound)

	return handlers.CORS(
		handlers.AllowedOrigins(h.app.allowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(r)
}

func (h *HttpHandler) Submit(kind JobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := h.app.logger.WithField("kind", kind)

		key := h.identity(r)

		allowed, err := h.app.limiters[kind].Allow(r.Context(), key)
		if err != nil {
			logger.WithField("caller", key).WithError(err).Error("rate limiter failed, letting request through")
			allowed = true
		}

		if !allowed {
			logger.WithField("caller", key).Warn("rate limit exceeded")
			h.respond(w, http.StatusTooManyRequests, internal.Response{
				Status:  internal.StatusError,
				Message: fmt.Sprintf("Too many %s requests, please try again later.", kind),
			})
			return
		}

		var raw map[string]interface{}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&raw); err != nil || raw == nil {
			h.respond(w, http.StatusBadRequest, internal.Response{
				Status:  internal.StatusError,
				Message: "Invalid request body: a JSON object is expected",
			})
			return
		}

		job, _, err := h.app.Submit(r.Context(), kind, raw)
		if err != nil {
			if verrs, ok := errors.Cause(err).(ValidationErrors); ok {
				h.respond(w, http.StatusBadRequest, validationResponse(verrs))
				return
			}

			logger.WithError(err).Error("failed to queue submission")
			h.respond(w, http.StatusInternalServerError, internal.Response{
				Status:  internal.StatusError,
				Message: fmt.Sprintf("Failed to queue %s request", kind),
			})
			return
		}

		h.respond(w, http.StatusAccepted, internal.Response{
			Status:  internal.StatusQueued,
			Message: acknowledgements[kind],
			JobId:   job.Id,
		})
	}
}

func (h *HttpHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, internal.Response{
		Status:  internal.StatusSuccess,
		Message: "Server is running",
	})
}

func (h *HttpHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.app.logger.
		WithField("method", r.Method).
		WithField("url", r.URL.String()).
		Info("unmatched route")

	h.respond(w, http.StatusNotFound, internal.Response{
		Status:  internal.StatusError,
		Message: "Route not found",
	})
}

// identity names the caller a rate limit is counted against.
func (h *HttpHandler) identity(r *http.Request) string {
	if h.app.trustProxy {
		hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
		if last := strings.TrimSpace(hops[len(hops)-1]); last != "" {
			return last
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

func (h *HttpHandler) respond(w http.ResponseWriter, status int, payload internal.Response) {
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Failed to convert to json", 500)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func validationResponse(verrs ValidationErrors) internal.Response {
	fields := make([]internal.FieldError, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, internal.FieldError{Field: e.Field, Message: e.Message})
	}

	return internal.Response{
		Status:  internal.StatusError,
		Message: verrs[0].Message,
		Errors:  fields,
	}
}
