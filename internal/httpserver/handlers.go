package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/resumeforge/internal/admission"
	"github.com/wisbric/resumeforge/internal/credential"
	"github.com/wisbric/resumeforge/internal/jobstore"
)

// JobStore is the slice of jobstore.Store the HTTP surface drives.
type JobStore interface {
	Enqueue(ctx context.Context, principalID, payloadRef string) (jobstore.Job, error)
	Get(ctx context.Context, jobID uuid.UUID) (jobstore.Job, error)
	Cancel(ctx context.Context, jobID uuid.UUID) error
}

// Admitter is the slice of admission.Controller the HTTP surface uses to
// gate writes before they reach the job store.
type Admitter interface {
	Admit(ctx context.Context, principalID string, class admission.EndpointClass, apiKind string) (admission.Decision, error)
}

// Authenticator validates a bearer credential into a principal ID.
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (string, error)
}

// API holds the dependencies behind the four external operations this
// service exposes: Submit, Status, Cancel, Authenticate.
type API struct {
	jobs    JobStore
	admit   Admitter
	auth    Authenticator
	apiKind string
}

type contextKeyPrincipal struct{}

// NewAPI builds an API. apiKind identifies the LLM call class charged
// against the daily quota for Submit (e.g. "extraction").
func NewAPI(jobs JobStore, admit Admitter, auth Authenticator, apiKind string) *API {
	return &API{jobs: jobs, admit: admit, auth: auth, apiKind: apiKind}
}

// RequireAuth validates the bearer credential on every request and
// stores the resolved principal ID in the request context. Failures are
// fail-closed per the error-handling design: unauthenticated, revoked,
// and session_expired all return 401 with a fixed, non-leaking reason.
func (a *API) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			RespondError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer credential")
			return
		}

		principalID, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			RespondError(w, http.StatusUnauthorized, authErrorCode(err), "credential rejected")
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyPrincipal{}, principalID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func authErrorCode(err error) string {
	switch {
	case errors.Is(err, credential.ErrRevoked):
		return "revoked"
	case errors.Is(err, credential.ErrSessionExpired):
		return "session_expired"
	default:
		return "unauthenticated"
	}
}

func principalFromContext(ctx context.Context) string {
	v, _ := ctx.Value(contextKeyPrincipal{}).(string)
	return v
}

// submitRequest is the body of a Submit call.
type submitRequest struct {
	PayloadRef string `json:"payload_ref" validate:"required"`
}

// submitResponse mirrors the spec's Submit contract.
type submitResponse struct {
	JobID                string `json:"job_id"`
	Position             int    `json:"position"`
	EstimatedWaitSeconds int    `json:"estimated_wait_seconds"`
}

// HandleSubmit implements Submit(principal-id, payload-ref) → (job-id, position, estimated-wait-seconds).
func (a *API) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principalID := principalFromContext(ctx)

	var req submitRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	decision, err := a.admit.Admit(ctx, principalID, admission.ClassLLM, a.apiKind)
	if err != nil {
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "temporarily unavailable, please retry")
		return
	}
	if !decision.Allowed {
		respondDenial(w, decision.Reason)
		return
	}

	job, err := a.jobs.Enqueue(ctx, principalID, req.PayloadRef)
	if err != nil {
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "temporarily unavailable, please retry")
		return
	}

	Respond(w, http.StatusAccepted, submitResponse{
		JobID:                job.ID.String(),
		Position:             job.Position,
		EstimatedWaitSeconds: job.EstimatedWaitSeconds,
	})
}

// jobResponse is the JSON shape returned by Status.
type jobResponse struct {
	JobID                string   `json:"job_id"`
	Status               string   `json:"status"`
	Position             int      `json:"position"`
	EstimatedWaitSeconds int      `json:"estimated_wait_seconds"`
	Result               any      `json:"result,omitempty"`
	ErrorKind            string   `json:"error_kind,omitempty"`
	ErrorMessage         string   `json:"error_message,omitempty"`
	ProcessingSeconds    *float64 `json:"processing_seconds,omitempty"`
}

func jobToResponse(job jobstore.Job) jobResponse {
	resp := jobResponse{
		JobID:                job.ID.String(),
		Status:               string(job.Status),
		Position:             job.Position,
		EstimatedWaitSeconds: job.EstimatedWaitSeconds,
		ErrorKind:            job.ErrorKind,
		ErrorMessage:         job.ErrorMessage,
		ProcessingSeconds:    job.ProcessingSeconds,
	}
	if len(job.Result) > 0 {
		resp.Result = job.Result
	}
	return resp
}

// HandleStatus implements Status(job-id) → Job.
func (a *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", "invalid job id")
		return
	}

	if _, err := a.admit.Admit(ctx, principalFromContext(ctx), admission.ClassDefault, ""); err != nil {
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "temporarily unavailable, please retry")
		return
	}

	job, err := a.jobs.Get(ctx, jobID)
	if errors.Is(err, jobstore.ErrNotFound) {
		RespondError(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if err != nil {
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "temporarily unavailable, please retry")
		return
	}
	if job.PrincipalID != principalFromContext(ctx) {
		RespondError(w, http.StatusNotFound, "not_found", "job not found")
		return
	}

	Respond(w, http.StatusOK, jobToResponse(job))
}

// HandleCancel implements Cancel(job-id, principal-id) → outcome.
func (a *API) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principalID := principalFromContext(ctx)

	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", "invalid job id")
		return
	}

	job, err := a.jobs.Get(ctx, jobID)
	if errors.Is(err, jobstore.ErrNotFound) {
		RespondError(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if err != nil {
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "temporarily unavailable, please retry")
		return
	}
	if job.PrincipalID != principalID {
		RespondError(w, http.StatusNotFound, "not_found", "job not found")
		return
	}

	if err := a.jobs.Cancel(ctx, jobID); err != nil {
		if errors.Is(err, jobstore.ErrNotQueued) {
			RespondError(w, http.StatusConflict, "not_cancellable", "job is no longer cancellable")
			return
		}
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "temporarily unavailable, please retry")
		return
	}

	Respond(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// authenticateRequest is the body of a standalone Authenticate call,
// used by clients that want to validate a credential before using it
// elsewhere (the same check also runs as RequireAuth middleware).
type authenticateRequest struct {
	Credential string `json:"credential" validate:"required"`
}

// HandleAuthenticate implements Authenticate(credential) → principal-id | rejected.
func (a *API) HandleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	principalID, err := a.auth.Authenticate(r.Context(), req.Credential)
	if err != nil {
		RespondError(w, http.StatusUnauthorized, authErrorCode(err), "credential rejected")
		return
	}

	Respond(w, http.StatusOK, map[string]string{"principal_id": principalID})
}

func respondDenial(w http.ResponseWriter, reason admission.DenialReason) {
	switch reason {
	case admission.DeniedPressure:
		RespondErrorWithRetry(w, http.StatusServiceUnavailable, "memory_pressure", "the service is under load, please retry shortly", 120)
	case admission.DeniedWindow:
		RespondError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, please slow down")
	case admission.DeniedDailyQuota:
		RespondError(w, http.StatusTooManyRequests, "quota_exhausted", "daily request quota exhausted, please try again tomorrow")
	default:
		RespondError(w, http.StatusForbidden, "denied", "request denied")
	}
}
