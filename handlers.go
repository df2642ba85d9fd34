package authservice

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// AuthHandlers exposes AccountService over HTTP.
type AuthHandlers struct {
	Accounts *AccountService
	Cookies  CookieConfig
	Logger   *zap.Logger

	// EchoTokens also returns tokens in JSON bodies for non-browser clients.
	EchoTokens bool

	// ExposeErrors includes the cause of internal errors in responses.
	ExposeErrors bool
}

func (h *AuthHandlers) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *AuthHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	authErr := AsAuthError(err)
	if authErr.Kind == KindInternal || authErr.Kind == KindDelivery {
		h.logger().Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, authErr, h.ExposeErrors)
}

func (h *AuthHandlers) sessionPayload(session *Session) map[string]any {
	payload := map[string]any{
		"accountId": session.Account.ID,
		"role":      session.Account.Role,
	}
	if h.EchoTokens {
		payload["accessToken"] = session.Tokens.Access.Value
	}
	return payload
}

// HandleSignup registers a local account.
func (h *AuthHandlers) HandleSignup(w http.ResponseWriter, r *http.Request) {
	h.signup(w, r, false)
}

// HandleSignupAsMentor registers a local account with the mentor role.
func (h *AuthHandlers) HandleSignupAsMentor(w http.ResponseWriter, r *http.Request) {
	h.signup(w, r, true)
}

func (h *AuthHandlers) signup(w http.ResponseWriter, r *http.Request, mentor bool) {
	var req SignupRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	register := h.Accounts.Register
	if mentor {
		register = h.Accounts.RegisterAsMentor
	}
	session, err := register(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Cookies.SetSessionCookies(w, session.Tokens)
	writeSuccess(w, http.StatusCreated, "Your account has been created successfully", h.sessionPayload(session))
}

func (h *AuthHandlers) HandleSignin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	session, err := h.Accounts.Authenticate(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Cookies.SetSessionCookies(w, session.Tokens)
	writeSuccess(w, http.StatusOK, "Logged in successfully", h.sessionPayload(session))
}

// HandleSignout clears the session cookies. Tokens are stateless, so a copy
// held elsewhere stays usable until it expires.
func (h *AuthHandlers) HandleSignout(w http.ResponseWriter, r *http.Request) {
	h.Cookies.ClearSessionCookies(w)
	writeSuccess(w, http.StatusOK, "Logged out successfully", nil)
}

func (h *AuthHandlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(RefreshTokenCookie)
	if err != nil || c.Value == "" {
		h.fail(w, r, NewAuthError(KindInvalidToken, "Refresh token not found", ""))
		return
	}
	account, access, err := h.Accounts.Refresh(r.Context(), c.Value)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Cookies.SetAccessCookie(w, access)
	payload := map[string]any{"accountId": account.ID}
	if h.EchoTokens {
		payload["accessToken"] = access.Value
	}
	writeSuccess(w, http.StatusOK, "Access token refreshed", payload)
}

func (h *AuthHandlers) HandleSendVerificationCode(w http.ResponseWriter, r *http.Request) {
	var req SendCodeRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Accounts.SendVerificationCode(r.Context(), req); err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Code sent to your email", nil)
}

func (h *AuthHandlers) HandleVerifyVerificationCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.Accounts.VerifyVerificationCode(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Code verified successfully", map[string]any{"verified": account.Verified})
}

func (h *AuthHandlers) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		h.fail(w, r, NewAuthError(KindUnauthorized, "Unauthorized", ""))
		return
	}
	var req ChangePasswordRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Accounts.ChangePassword(r.Context(), claims.AccountID, req); err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password updated successfully", nil)
}

func (h *AuthHandlers) HandleChangeRole(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		h.fail(w, r, NewAuthError(KindUnauthorized, "Unauthorized", ""))
		return
	}
	var req ChangeRoleRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	session, err := h.Accounts.ChangeRole(r.Context(), claims.AccountID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Cookies.SetSessionCookies(w, session.Tokens)
	writeSuccess(w, http.StatusOK, "Role updated successfully", h.sessionPayload(session))
}

func (h *AuthHandlers) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req SendCodeRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Accounts.SendForgotPasswordCode(r.Context(), req); err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Code sent to your email", nil)
}

func (h *AuthHandlers) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Accounts.ResetPassword(r.Context(), req); err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password reset was successfully!", nil)
}

func (h *AuthHandlers) HandleCheckAuth(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		h.fail(w, r, NewAuthError(KindUnauthorized, "Unauthorized", ""))
		return
	}
	account, err := h.Accounts.CurrentAccount(r.Context(), claims.AccountID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Authenticated", map[string]any{"user": account.Summary()})
}

// decodeRequest fills dst from a JSON body or, for form posts, from the form
// values keyed by the same names as the JSON tags.
// maxBodyBytes caps JSON and multipart request bodies.
const maxBodyBytes = 1 << 20

func decodeRequest(r *http.Request, dst any) error {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data") {
		var err error
		if strings.HasPrefix(contentType, "multipart/form-data") {
			err = r.ParseMultipartForm(maxBodyBytes)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			return NewAuthError(KindValidation, "Error parsing form", "")
		}
		values := make(map[string]string, len(r.Form))
		for key := range r.Form {
			values[key] = r.Form.Get(key)
		}
		raw, err := json.Marshal(values)
		if err != nil {
			return WrapAuthError(KindInternal, "Internal server error", "", err)
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return NewAuthError(KindValidation, "Invalid form body", "")
		}
		return nil
	}

	if r.Body == nil || r.Body == http.NoBody {
		return NewAuthError(KindValidation, "Invalid post body", "")
	}
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return NewAuthError(KindValidation, "Invalid post body", "")
	}
	return nil
}
