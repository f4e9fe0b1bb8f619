package http

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"linkgate/pkg/gateway"
	"linkgate/pkg/identity"
	"linkgate/pkg/logging"
	"linkgate/pkg/middleware"
	"linkgate/pkg/session"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Resolver interface {
	Resolve(ctx context.Context, req gateway.Request) gateway.Outcome
}

type Handler struct {
	gateway  Resolver
	sessions *session.Manager
	logger   *logging.Logger
}

func NewHandler(gw Resolver, sessions *session.Manager, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{gateway: gw, sessions: sessions, logger: logger}
}

type identifyRequest struct {
	Credential string `json:"credential"`
	Channel    string `json:"channel"`
	Kind       string `json:"kind"`
	Declined   bool   `json:"declined"`
}

type promptResponse struct {
	State  gateway.State   `json:"state"`
	Prompt *gateway.Prompt `json:"prompt"`
}

type errorResponse struct {
	State     gateway.State `json:"state"`
	Error     string        `json:"error"`
	Retryable bool          `json:"retryable"`
}

func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	req, ok := h.baseRequest(w, r)
	if !ok {
		return
	}
	h.writeOutcome(w, r, h.gateway.Resolve(r.Context(), req))
}

func (h *Handler) Identify(w http.ResponseWriter, r *http.Request) {
	body, err := decodeIdentify(r)
	if err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	req, ok := h.baseRequest(w, r)
	if !ok {
		return
	}
	req.Declined = body.Declined

	if body.Credential != "" {
		channel, err := identity.ParseChannel(body.Channel)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		kind, err := identity.ParseTokenKind(body.Kind)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.Credential = &identity.Credential{Channel: channel, Kind: kind, Token: body.Credential}
	}

	h.writeOutcome(w, r, h.gateway.Resolve(r.Context(), req))
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) baseRequest(w http.ResponseWriter, r *http.Request) (gateway.Request, bool) {
	key, err := h.sessions.Key(w, r)
	if err != nil {
		h.logger.Error(r.Context(), "session key unavailable", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return gateway.Request{}, false
	}
	return gateway.Request{
		Slug:       chi.URLParam(r, "slug"),
		SessionKey: key,
		UserAgent:  r.UserAgent(),
		Referer:    r.Referer(),
	}, true
}

func (h *Handler) writeOutcome(w http.ResponseWriter, r *http.Request, out gateway.Outcome) {
	switch out.State {
	case gateway.StateReleased:
		http.Redirect(w, r, out.RedirectTo, http.StatusFound)
	case gateway.StateAwaitIdentity:
		writeJSON(w, http.StatusOK, promptResponse{State: out.State, Prompt: out.Prompt})
	case gateway.StateInactive:
		http.Error(w, "gone", http.StatusGone)
	case gateway.StateIdentityRejected:
		resp := errorResponse{State: out.State, Error: "identity not accepted"}
		var idErr *gateway.IdentityError
		if errors.As(out.Err, &idErr) {
			resp.Retryable = idErr.Retryable
			if errors.Is(idErr, gateway.ErrPassiveNotAccepted) {
				resp.Error = idErr.Err.Error()
			}
		}
		writeJSON(w, http.StatusUnauthorized, resp)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func decodeIdentify(r *http.Request) (identifyRequest, error) {
	var body identifyRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(r.Body).Decode(&body)
		return body, err
	}

	if err := r.ParseForm(); err != nil {
		return body, err
	}
	body.Credential = r.PostFormValue("credential")
	body.Channel = r.PostFormValue("channel")
	body.Kind = r.PostFormValue("kind")
	if v := r.PostFormValue("declined"); v != "" {
		declined, err := strconv.ParseBool(v)
		if err != nil {
			return body, err
		}
		body.Declined = declined
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// SetupRoutes mounts the visitor routes plus health and metrics. gatherer may
// be nil, in which case /metrics is not exposed.
func SetupRoutes(r *chi.Mux, handler *Handler, gatherer prometheus.Gatherer) {
	r.Use(chimw.Recoverer)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.AccessLog(handler.logger))

	r.Get("/health", handler.HealthCheck)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/r/{slug}", handler.Redirect)
	r.Post("/r/{slug}/identify", handler.Identify)
}
