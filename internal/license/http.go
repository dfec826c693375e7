// Copyright (c) 2026 Venlock. All rights reserved.

package license

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/venlock/venlock/internal/platform/middleware"
	requestutil "github.com/venlock/venlock/internal/platform/request"
	"github.com/venlock/venlock/internal/platform/respond"
	"github.com/venlock/venlock/internal/platform/sec"
	"github.com/venlock/venlock/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements the licensing HTTP endpoints.
//
// # Scope
//
// Two distinct audiences share this handler. Desktop clients call the public
// activation surface, where the license key itself is the credential. Admins
// manage the license lifecycle behind the role middleware.
type Handler struct {
	licenseService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{licenseService: service}
}

// Routes returns a [chi.Router] with the /licenses endpoint tree.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Client surface: possession of the key is the credential.
	router.Post("/activate", handler.activate)
	router.Post("/validate", handler.validate)
	router.Post("/deactivate", handler.deactivate)
	router.Post("/heartbeat", handler.heartbeat)

	// Admin surface
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(sec.RoleAdmin))
		r.Get("/", handler.list)
		r.Post("/", handler.create)
		r.Post("/bulk-revoke", handler.bulkRevoke)
		r.Get("/{id}", handler.get)
		r.Get("/{id}/activations", handler.activations)
		r.Patch("/{id}", handler.renew)
		r.Post("/{id}/revoke", handler.revoke)
		r.Delete("/{id}", handler.remove)
	})

	return router
}

// # Request Payloads

type createRequest struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`

	// MaxActivations defaults to 1 when omitted; explicit 0 means unlimited.
	MaxActivations *int `json:"max_activations"`
}

type renewRequest struct {
	ExpiresAt time.Time `json:"expires_at"`
}

type bulkRevokeRequest struct {
	IDs []string `json:"ids"`
}

type clientRequest struct {
	LicenseKey  string  `json:"license_key"`
	Fingerprint string  `json:"fingerprint"`
	Hostname    *string `json:"hostname"`
}

// decodeClientRequest parses and validates the shared client payload.
func decodeClientRequest(request *http.Request) (*clientRequest, error) {
	var input clientRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		return nil, validate.ErrInvalidJSON
	}

	validator := &validate.Validator{}
	validator.Required(FieldLicenseKey, input.LicenseKey).
		LicenseKey(FieldLicenseKey, input.LicenseKey).
		Required(FieldFingerprint, input.Fingerprint).
		Fingerprint(FieldFingerprint, input.Fingerprint)

	if err := validator.Err(); err != nil {
		return nil, err
	}

	return &input, nil
}

// activateInput folds the payload and the observed client address.
func activateInput(request *http.Request, input *clientRequest) ActivateInput {
	ip := middleware.RealIP(request)

	var ipAddress *string
	if ip != "" {
		ipAddress = &ip
	}

	return ActivateInput{
		Key:         input.LicenseKey,
		Fingerprint: input.Fingerprint,
		Hostname:    input.Hostname,
		IPAddress:   ipAddress,
	}
}

// # Client Handlers

/*
Activate binds the calling machine to a license.

POST /api/v1/licenses/activate

Request:
  - Body: clientRequest (LicenseKey, Fingerprint, Hostname?)

Response:
  - 200: Activation: The live seat (new or refreshed)
  - 400: ErrConflict: Revoked or expired license
  - 400: ErrActivationLimit: All seats taken
  - 404: ErrNotFound: Unknown key
*/
func (handler *Handler) activate(writer http.ResponseWriter, request *http.Request) {
	input, err := decodeClientRequest(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	activation, err := handler.licenseService.Activate(request.Context(), activateInput(request, input))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, activation)
}

/*
Validate answers whether the calling machine is entitled to run.

POST /api/v1/licenses/validate

Response:
  - 200: Verdict: Valid flag with status and reason
  - 404: ErrNotFound: Unknown key
*/
func (handler *Handler) validate(writer http.ResponseWriter, request *http.Request) {
	input, err := decodeClientRequest(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	verdict, err := handler.licenseService.Validate(request.Context(), input.LicenseKey, input.Fingerprint)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, verdict)
}

/*
Deactivate releases the calling machine's seat. Safe to call blindly.

POST /api/v1/licenses/deactivate

Response:
  - 200: Seat released (or no seat existed)
  - 404: ErrNotFound: Unknown key
*/
func (handler *Handler) deactivate(writer http.ResponseWriter, request *http.Request) {
	input, err := decodeClientRequest(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.licenseService.Deactivate(request.Context(), input.LicenseKey, input.Fingerprint); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OKMessage(writer, "License deactivated", nil)
}

/*
Heartbeat refreshes the calling machine's seat liveness.

POST /api/v1/licenses/heartbeat

Response:
  - 200: Seat refreshed
  - 400: ErrConflict: Revoked or expired license
  - 404: ErrNotFound: Unknown key or no seat for this machine
*/
func (handler *Handler) heartbeat(writer http.ResponseWriter, request *http.Request) {
	input, err := decodeClientRequest(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.licenseService.Heartbeat(request.Context(), activateInput(request, input)); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OKMessage(writer, "Heartbeat recorded", nil)
}

// # Admin Handlers

/*
Create issues a new license.

POST /api/v1/licenses

Request:
  - Body: createRequest (UserID, ExpiresAt, MaxActivations?)

Response:
  - 201: License: The issued license including its key
  - 400: ErrValidation: Past expiry or negative cap
  - 409: ErrConflict: Single-active policy violation
*/
func (handler *Handler) create(writer http.ResponseWriter, request *http.Request) {
	var input createRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldUserID, input.UserID).
		UUID(FieldUserID, input.UserID).
		Custom(FieldExpiresAt, input.ExpiresAt.IsZero(), "This field is required")

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	maxActivations := 1
	if input.MaxActivations != nil {
		maxActivations = *input.MaxActivations
	}

	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	license, err := handler.licenseService.Create(request.Context(), claims.UserID(), CreateInput{
		UserID:         input.UserID,
		ExpiresAt:      input.ExpiresAt,
		MaxActivations: maxActivations,
	})

	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, license)
}

/*
List returns a page of licenses across all users.

GET /api/v1/licenses?limit=&offset=

Response:
  - 200: []License
*/
func (handler *Handler) list(writer http.ResponseWriter, request *http.Request) {
	limit := requestutil.QueryInt(request, "limit", 50)
	offset := requestutil.QueryInt(request, "offset", 0)

	licenses, err := handler.licenseService.List(request.Context(), limit, offset)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, licenses)
}

/*
Get returns one license by ID.

GET /api/v1/licenses/{id}

Response:
  - 200: License
  - 404: ErrNotFound
*/
func (handler *Handler) get(writer http.ResponseWriter, request *http.Request) {
	id, err := licenseIDParam(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	license, err := handler.licenseService.Get(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, license)
}

/*
Activations returns the activation history of a license.

GET /api/v1/licenses/{id}/activations

Response:
  - 200: []Activation
  - 404: ErrNotFound
*/
func (handler *Handler) activations(writer http.ResponseWriter, request *http.Request) {
	id, err := licenseIDParam(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	activations, err := handler.licenseService.Activations(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, activations)
}

/*
Renew extends a license to a new expiry.

PATCH /api/v1/licenses/{id}

Request:
  - Body: renewRequest (ExpiresAt)

Response:
  - 200: License: The renewed license
  - 400: ErrValidation: Expiry not in the future
  - 409: ErrConflict: License is revoked
*/
func (handler *Handler) renew(writer http.ResponseWriter, request *http.Request) {
	id, err := licenseIDParam(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input renewRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	license, err := handler.licenseService.Renew(request.Context(), claims.UserID(), id, input.ExpiresAt)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, license)
}

/*
Revoke permanently disables a license.

POST /api/v1/licenses/{id}/revoke

Response:
  - 200: License: The revoked license
  - 409: ErrConflict: Already revoked
*/
func (handler *Handler) revoke(writer http.ResponseWriter, request *http.Request) {
	id, err := licenseIDParam(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	license, err := handler.licenseService.Revoke(request.Context(), claims.UserID(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, license)
}

/*
BulkRevoke revokes a batch of licenses in one call.

POST /api/v1/licenses/bulk-revoke

Request:
  - Body: bulkRevokeRequest (IDs)

Response:
  - 200: Count of licenses actually revoked
*/
func (handler *Handler) bulkRevoke(writer http.ResponseWriter, request *http.Request) {
	var input bulkRevokeRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	revoked, err := handler.licenseService.BulkRevoke(request.Context(), claims.UserID(), input.IDs)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{"revoked": revoked})
}

/*
Remove deletes a license and its activation history.

DELETE /api/v1/licenses/{id}

Response:
  - 204: Deleted
  - 404: ErrNotFound
*/
func (handler *Handler) remove(writer http.ResponseWriter, request *http.Request) {
	id, err := licenseIDParam(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.licenseService.Delete(request.Context(), claims.UserID(), id); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
UserLicenses returns every license owned by one user. Mounted on the admin
user tree as GET /users/{id}/licenses.

Response:
  - 200: []License
*/
func (handler *Handler) UserLicenses(writer http.ResponseWriter, request *http.Request) {
	userID := requestutil.Param(request, "id")

	validator := &validate.Validator{}
	if err := validator.Required(FieldUserID, userID).UUID(FieldUserID, userID).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	licenses, err := handler.licenseService.ListByUser(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, licenses)
}

// licenseIDParam extracts and validates the {id} route parameter.
func licenseIDParam(request *http.Request) (string, error) {
	id := requestutil.Param(request, "id")

	validator := &validate.Validator{}
	if err := validator.Required("id", id).UUID("id", id).Err(); err != nil {
		return "", err
	}

	return id, nil
}
