package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"teenbudget.org/internal/auth"
	"teenbudget.org/internal/obs"
)

type signupRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email            string `json:"email"`
	VerificationCode string `json:"verificationCode"`
}

type signInRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type passwordResetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type signInResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

type validationResponse struct {
	Valid bool `json:"valid"`
}

const (
	msgCodeSent      = "A verification code has been sent to your email."
	msgAccountReady  = "Your account has been created."
	msgSignedIn      = "Signed in successfully."
	msgResetSent     = "A password reset link has been sent to your email."
	msgPasswordReset = "Your password has been reset."
)

// errorMessages are the user-facing texts per error kind.
var errorMessages = map[string]string{
	"duplicate_account":        "An account with this email already exists.",
	"no_pending_signup":        "No verification code was found for this email.",
	"code_expired":             "The verification code has expired.",
	"code_mismatch":            "Invalid verification code.",
	"account_creation_failed":  "The account could not be created.",
	"unknown_account":          "No user exists with this email address.",
	"bad_credentials":          "The password is incorrect.",
	"invalid_or_expired_token": "Invalid or expired token",
	"account_not_found":        "No user exists with this email address.",
	"notification_failure":     "We could not send the email. Please try again.",
	"missing_token":            "Token not provided",
	"invalid_token":            "Invalid token",
	"store_error":              "Database query error",
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req signupRequest
	if !a.decode(w, r, &req) {
		return
	}
	err := a.auth.RequestSignup(r.Context(), auth.SignupRequest{
		Email:     req.Email,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Password:  req.Password,
	})
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msgCodeSent})
}

func (a *API) handleResend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req emailRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.auth.ResendCode(r.Context(), req.Email); err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msgCodeSent})
}

func (a *API) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req verifyRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.auth.VerifySignup(r.Context(), req.Email, req.VerificationCode); err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msgAccountReady})
}

func (a *API) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req signInRequest
	if !a.decode(w, r, &req) {
		return
	}
	sess, err := a.auth.SignIn(r.Context(), req.Email, req.Password, req.RememberMe)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, signInResponse{Message: msgSignedIn, Token: sess.Token})
}

func (a *API) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req emailRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msgResetSent})
}

func (a *API) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req passwordResetRequest
	if !a.decode(w, r, &req) {
		return
	}
	err := a.auth.CompletePasswordReset(r.Context(), req.Token, req.NewPassword)
	if errors.Is(err, auth.ErrAccountNotFound) {
		// The reset form reports every failure as a bad request.
		writeErrorKind(w, r, http.StatusBadRequest, errorMessages["account_not_found"], "account_not_found")
		return
	}
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msgPasswordReset})
}

func (a *API) handleTokenValidation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req tokenRequest
	// A body that cannot be read carries no valid token.
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusOK, validationResponse{Valid: false})
		return
	}
	writeJSON(w, http.StatusOK, validationResponse{Valid: a.auth.ValidateToken(req.Token)})
}

func (a *API) handleUserData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer realm="teenbudget"`)
		if errors.Is(err, errMissingBearer) {
			writeAuthError(w, r, auth.ErrMissingToken)
		} else {
			writeAuthError(w, r, auth.ErrInvalidToken)
		}
		return
	}
	profile, err := a.auth.FetchProfile(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrMissingToken) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="teenbudget", error="invalid_token"`)
		}
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeBody(r, dst); err != nil {
		writeErrorKind(w, r, http.StatusBadRequest, err.Error(), "validation_error")
		return false
	}
	return true
}

// authStatus maps an auth error to its HTTP status.
func authStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrNotificationFailure), errors.Is(err, auth.ErrStore):
		return http.StatusInternalServerError
	case errors.Is(err, auth.ErrValidation),
		errors.Is(err, auth.ErrDuplicateAccount),
		errors.Is(err, auth.ErrNoPendingSignup),
		errors.Is(err, auth.ErrCodeExpired),
		errors.Is(err, auth.ErrCodeMismatch),
		errors.Is(err, auth.ErrAccountCreationFailed),
		errors.Is(err, auth.ErrUnknownAccount),
		errors.Is(err, auth.ErrBadCredentials),
		errors.Is(err, auth.ErrInvalidOrExpiredToken):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	kind := auth.Kind(err)
	code := authStatus(err)
	msg, ok := errorMessages[kind]
	switch {
	case kind == "validation_error":
		msg = strings.TrimPrefix(err.Error(), "auth: ")
	case !ok:
		msg = "internal error"
	}
	if code >= http.StatusInternalServerError {
		obs.Error("auth_request_failed", err, map[string]any{
			"path": r.URL.Path,
			"kind": kind,
		})
	}
	writeErrorKind(w, r, code, msg, kind)
}
