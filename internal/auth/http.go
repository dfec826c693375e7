// Copyright (c) 2026 Venlock. All rights reserved.

package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/venlock/venlock/internal/platform/apperr"
	"github.com/venlock/venlock/internal/platform/constants"
	"github.com/venlock/venlock/internal/platform/middleware"
	requestutil "github.com/venlock/venlock/internal/platform/request"
	"github.com/venlock/venlock/internal/platform/respond"
	"github.com/venlock/venlock/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements authentication-related HTTP endpoints.
//
// # Scope
//
// This handler manages everything related to the account lifecycle entry
// points: registration, login, token rotation, recovery flows, and the
// caller's own profile. Administrative user management is exposed separately
// via [Handler.AdminRoutes].
type Handler struct {
	authService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{authService: service}
}

// Routes returns a [chi.Router] with the /auth endpoint tree.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/register", handler.register)
	router.Post("/login", handler.login)
	router.Post("/refresh", handler.refresh)
	router.Post("/verify-email", handler.verifyEmail)
	router.Post("/resend-verification", handler.resendVerification)
	router.Post("/forgot-password", handler.forgotPassword)
	router.Post("/reset-password", handler.resetPassword)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/logout", handler.logout)
		r.Post("/logout-all", handler.logoutAll)
		r.Post("/change-password", handler.changePassword)
		r.Get("/me", handler.me)
		r.Put("/profile", handler.updateProfile)
		r.Get("/notifications", handler.notifications)
		r.Put("/notifications", handler.updateNotifications)
	})

	return router
}

// AdminRoutes returns the user-administration endpoint tree. The caller is
// responsible for wrapping it in the admin-role middleware.
func (handler *Handler) AdminRoutes() chi.Router {
	router := chi.NewRouter()
	router.Get("/", handler.listUsers)
	router.Post("/{id}/block", handler.blockUser)
	router.Post("/{id}/unblock", handler.unblockUser)
	return router
}

// # Cookie Management

// setAuthCookies attaches both token cookies with their scoped paths.
//
// The refresh cookie is restricted to the /auth subtree so the long-lived
// token never rides along on ordinary API calls.
func setAuthCookies(writer http.ResponseWriter, pair *TokenPair) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.AccessTokenCookieName,
		Value:    pair.AccessToken,
		Path:     constants.AccessTokenCookiePath,
		Expires:  pair.AccessTokenExpiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    pair.RefreshToken,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  pair.RefreshTokenExpiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearAuthCookies expires both token cookies. Exported for the session guard,
// which clears credentials when it rejects a revoked session.
func ClearAuthCookies(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.AccessTokenCookieName,
		Value:    "",
		Path:     constants.AccessTokenCookiePath,
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// refreshCookieValue returns the refresh token cookie value, or "".
func refreshCookieValue(request *http.Request) string {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)
	if err != nil || cookie == nil {
		return ""
	}
	return cookie.Value
}

// # Request Payloads

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type profileRequest struct {
	FullName string `json:"full_name"`
}

// # Handlers

/*
Register handles the creation of a new user account.

POST /api/v1/auth/register

Description: Validates input against the password policy, checks for identity
conflicts, and enrolls the account in the Unverified state.

Request:
  - Body: registerRequest (Username, Email, Password, FullName)

Response:
  - 201: User: Created account profile
  - 400: ErrInvalidJSON: Bad input or validation failure
  - 409: ErrConflict: Username or Email already exists
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldUsername, input.Username).
		MinLen(FieldUsername, input.Username, 3).
		MaxLen(FieldUsername, input.Username, 50).
		Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password).
		Password(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.authService.Register(request.Context(), RegisterInput{
		Username: input.Username,
		Email:    input.Email,
		Password: input.Password,
		FullName: input.FullName,
	})

	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, user)
}

/*
Login authenticates a user and establishes a session.

POST /api/v1/auth/login

Description: Verifies credentials and attaches both token cookies. The body
carries only the access-token expiry; the tokens themselves travel solely in
HTTP-only cookies.

Request:
  - Body: loginRequest (Username, Password)

Response:
  - 200: Expiry metadata + Set-Cookie for both tokens
  - 400: ErrInvalidCredentials: Unknown user or wrong password
  - 403: ErrAccountBlocked: Suspended account
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldUsername, input.Username)
	validator.Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.Login(request.Context(), LoginInput{
		Username:             input.Username,
		Password:             input.Password,
		UserAgent:            request.UserAgent(),
		IPAddress:            getClientIP(request),
		ExistingRefreshToken: refreshCookieValue(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setAuthCookies(writer, session.Tokens)

	respond.OKMessage(writer, "Login successful", map[string]any{
		"accessTokenExpires": session.Tokens.AccessTokenExpiresAt,
	})
}

/*
Refresh rotates the session behind the refresh cookie.

POST /api/v1/auth/refresh

Description: Exchanges a valid refresh cookie for a fresh token pair. A
failed rotation clears both cookies so a stale browser state cannot loop.

Response:
  - 200: Expiry metadata + rotated cookies
  - 401: ErrTokenNotFound | ErrTokenRevoked | ErrTokenExpired
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	refreshToken := refreshCookieValue(request)
	if refreshToken == "" {
		respond.Error(writer, request, apperr.Unauthorized("Missing refresh token in cookies"))
		return
	}

	session, err := handler.authService.Refresh(request.Context(), refreshToken)
	if err != nil {
		ClearAuthCookies(writer)
		respond.Error(writer, request, err)
		return
	}

	setAuthCookies(writer, session.Tokens)

	respond.OKMessage(writer, "Token refreshed", map[string]any{
		"accessTokenExpires": session.Tokens.AccessTokenExpiresAt,
	})
}

/*
Logout terminates the current user session.

POST /api/v1/auth/logout

Description: Revokes the session behind the refresh cookie (if any) and
clears both cookies. Always succeeds.

Response:
  - 200: Success: Session terminated
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	if refreshToken := refreshCookieValue(request); refreshToken != "" {
		_ = handler.authService.Logout(request.Context(), refreshToken)
	}

	ClearAuthCookies(writer)
	respond.OKMessage(writer, "Logged out", nil)
}

/*
LogoutAll terminates every session of the caller.

POST /api/v1/auth/logout-all

Response:
  - 200: Count of revoked sessions
  - 401: ErrUnauthorized
*/
func (handler *Handler) logoutAll(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	revoked, err := handler.authService.LogoutAll(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	ClearAuthCookies(writer)
	respond.OKMessage(writer, "All sessions terminated", map[string]any{
		"sessions_revoked": revoked,
	})
}

/*
ChangePassword updates the authenticated user's password.

POST /api/v1/auth/change-password

Description: Verifies the current password, applies the new one, and revokes
every session. The cookies are cleared; the caller must log in again.

Request:
  - Body: changePasswordRequest (CurrentPassword, NewPassword)

Response:
  - 200: Success: Password changed
  - 400: ErrInvalidCredentials | validation failure
  - 401: ErrUnauthorized
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldCurrentPassword, input.CurrentPassword).
		Required(FieldNewPassword, input.NewPassword).
		Password(FieldNewPassword, input.NewPassword)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ChangePassword(request.Context(), userID, input.CurrentPassword, input.NewPassword); err != nil {
		respond.Error(writer, request, err)
		return
	}

	ClearAuthCookies(writer)
	respond.OKMessage(writer, "Password changed successfully", nil)
}

/*
VerifyEmail confirms a user's email ownership.

POST /api/v1/auth/verify-email

Request:
  - Body: tokenRequest (Token)

Response:
  - 200: Success: Email verified
  - 400: Missing token
  - 404: Unknown or expired token
  - 409: Already verified
*/
func (handler *Handler) verifyEmail(writer http.ResponseWriter, request *http.Request) {
	var input tokenRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.Token == "" {
		respond.Error(writer, request, validate.RequiredError(FieldToken, "is required"))
		return
	}

	if err := handler.authService.VerifyEmail(request.Context(), input.Token); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OKMessage(writer, "Email verified successfully", nil)
}

/*
ResendVerification issues a fresh verification email.

POST /api/v1/auth/resend-verification

Description: The outward response is identical whether or not the address
exists, so the endpoint cannot be used to enumerate accounts.

Request:
  - Body: emailRequest (Email)

Response:
  - 200: Generic acknowledgement
*/
func (handler *Handler) resendVerification(writer http.ResponseWriter, request *http.Request) {
	var input emailRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).Email(FieldEmail, input.Email)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// Swallow NotFound and Conflict: the response shape never reveals
	// whether the address is registered.
	if err := handler.authService.ResendVerification(request.Context(), input.Email); err != nil {
		if !apperr.IsCode(err, "NOT_FOUND") && !apperr.IsCode(err, "CONFLICT") {
			respond.Error(writer, request, err)
			return
		}
	}

	respond.OKMessage(writer, "If this email is registered, a verification link has been sent.", nil)
}

/*
ForgotPassword initiates the password recovery flow.

POST /api/v1/auth/forgot-password

Description: Same enumeration-proof contract as ResendVerification.

Request:
  - Body: emailRequest (Email)

Response:
  - 200: Generic acknowledgement
*/
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var input emailRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).Email(FieldEmail, input.Email)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ForgotPassword(request.Context(), input.Email); err != nil {
		if !apperr.IsCode(err, "NOT_FOUND") {
			respond.Error(writer, request, err)
			return
		}
	}

	respond.OKMessage(writer, "If this email is registered, a reset link has been sent.", nil)
}

/*
ResetPassword completes the password recovery flow.

POST /api/v1/auth/reset-password

Request:
  - Body: resetPasswordRequest (Token, Password)

Response:
  - 200: Success: Password updated
  - 400: Weak password or validation failure
  - 404: Unknown or expired token
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldToken, input.Token).
		Required(FieldPassword, input.Password).
		Password(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ResetPassword(request.Context(), input.Token, input.Password); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OKMessage(writer, "Password updated successfully", nil)
}

/*
Me returns the caller's own account record.

GET /api/v1/auth/me

Response:
  - 200: User
  - 401: ErrUnauthorized
*/
func (handler *Handler) me(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.authService.GetProfile(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

/*
UpdateProfile persists changes to the caller's profile fields.

PUT /api/v1/auth/profile

Request:
  - Body: profileRequest (FullName)

Response:
  - 200: User: Updated record
  - 401: ErrUnauthorized
*/
func (handler *Handler) updateProfile(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input profileRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.MaxLen(FieldFullName, input.FullName, 120)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.authService.UpdateProfile(request.Context(), userID, ProfileInput{
		FullName: input.FullName,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

/*
Notifications returns the caller's notification preferences.

GET /api/v1/auth/notifications
*/
func (handler *Handler) notifications(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.authService.GetProfile(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user.Notifications)
}

/*
UpdateNotifications replaces the caller's notification preferences.

PUT /api/v1/auth/notifications
*/
func (handler *Handler) updateNotifications(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var preferences NotificationPreferences
	if err := requestutil.DecodeJSON(request, &preferences); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	user, err := handler.authService.UpdateNotifications(request.Context(), userID, preferences)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user.Notifications)
}

// # Admin Handlers

/*
ListUsers returns a page of accounts.

GET /api/v1/users?limit=&offset=
*/
func (handler *Handler) listUsers(writer http.ResponseWriter, request *http.Request) {
	limit := requestutil.QueryInt(request, "limit", 50)
	offset := requestutil.QueryInt(request, "offset", 0)

	users, total, err := handler.authService.ListUsers(request.Context(), limit, offset)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		"users": users,
		"total": total,
	})
}

/*
BlockUser suspends an account and revokes its sessions.

POST /api/v1/users/{id}/block
*/
func (handler *Handler) blockUser(writer http.ResponseWriter, request *http.Request) {
	actorID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	targetID := requestutil.Param(request, "id")
	validator := &validate.Validator{}
	validator.UUID("id", targetID)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if actorID == targetID {
		respond.Error(writer, request, apperr.Forbidden("Administrators cannot block themselves"))
		return
	}

	if err := handler.authService.BlockUser(request.Context(), actorID, targetID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OKMessage(writer, "User blocked", nil)
}

/*
UnblockUser lifts an account suspension.

POST /api/v1/users/{id}/unblock
*/
func (handler *Handler) unblockUser(writer http.ResponseWriter, request *http.Request) {
	actorID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	targetID := requestutil.Param(request, "id")
	validator := &validate.Validator{}
	validator.UUID("id", targetID)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.UnblockUser(request.Context(), actorID, targetID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OKMessage(writer, "User unblocked", nil)
}

// getClientIP extracts the real client address behind proxy environments.
func getClientIP(request *http.Request) string {
	ip := request.Header.Get(constants.HeaderXRealIP)
	if ip == "" {
		ip = request.Header.Get(constants.HeaderXForwardedFor)
	}
	if ip == "" {
		ip = request.RemoteAddr
	}
	return ip
}
