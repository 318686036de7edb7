package httpapi

import (
	"net/http"
	"time"

	"github.com/Iradukunda-Fils/microservices-demo/internal/apierr"
	"github.com/Iradukunda-Fils/microservices-demo/internal/audit"
	"github.com/Iradukunda-Fils/microservices-demo/internal/idp"
	"github.com/Iradukunda-Fils/microservices-demo/internal/keys"
	"github.com/Iradukunda-Fils/microservices-demo/internal/obs"
	"github.com/Iradukunda-Fils/microservices-demo/internal/token"
)

// IdPAPI is the Identity Provider's HTTP layer.
type IdPAPI struct {
	mux     *http.ServeMux
	svc     *idp.Service
	keys    *keys.Manager
	auth    *authenticator
	probe   ReadyProbe
	version string
}

// NewIdPAPI wires the IdP routes.
func NewIdPAPI(svc *idp.Service, km *keys.Manager, verifier *token.Verifier, probe ReadyProbe, version string) *IdPAPI {
	a := &IdPAPI{
		mux:     http.NewServeMux(),
		svc:     svc,
		keys:    km,
		probe:   probe,
		version: version,
	}
	a.auth = newAuthenticator(verifier,
		"/v1/auth/register",
		"/v1/auth/token",
		"/v1/auth/token/refresh",
		"/v1/auth/2fa/verify-login",
		"/auth/public-key",
		"/auth/public-keys",
		"/healthz", "/readyz", "/metrics",
	)
	// Access tokens presented to the IdP itself are additionally pinned to
	// the account's current token version.
	a.auth.versionCheck = svc.CheckTokenVersion

	a.mux.HandleFunc("/healthz", healthzHandler("idp", version))
	a.mux.HandleFunc("/readyz", readyzHandler(probe))
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/auth/public-key", a.handlePublicKey)
	a.mux.HandleFunc("/auth/public-keys", a.handlePublicKeys)

	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/token", a.handleToken)
	a.mux.HandleFunc("/v1/auth/token/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/password", a.handleChangePassword)
	a.mux.HandleFunc("/v1/users/me", a.handleMe)

	a.mux.HandleFunc("/v1/auth/2fa/setup", a.handleTwoFactorSetup)
	a.mux.HandleFunc("/v1/auth/2fa/verify", a.handleTwoFactorConfirm)
	a.mux.HandleFunc("/v1/auth/2fa/verify-login", a.handleTwoFactorLogin)
	a.mux.HandleFunc("/v1/auth/2fa/status", a.handleTwoFactorStatus)
	a.mux.HandleFunc("/v1/auth/2fa/disable", a.handleTwoFactorDisable)
	a.mux.HandleFunc("/v1/auth/2fa/recovery-codes/regenerate", a.handleRecoveryRegenerate)
	a.mux.HandleFunc("/v1/auth/2fa/recovery-codes/download", a.handleRecoveryDownload)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return a
}

// Handler returns the composed HTTP handler.
func (a *IdPAPI) Handler() http.Handler {
	return Chain(a.auth.wrap(a.mux))
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *IdPAPI) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, apierr.KindInputInvalid, err.Error())
		return
	}
	projection, err := a.svc.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{"username": projection.Username})
	writeJSON(w, http.StatusCreated, map[string]any{"user": projection})
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Access           string         `json:"access"`
	Refresh          string         `json:"refresh"`
	AccessExpiresAt  time.Time      `json:"access_expires_at"`
	RefreshExpiresAt time.Time      `json:"refresh_expires_at"`
	User             idp.Projection `json:"user"`
}

func loginResponse(res idp.LoginResult) any {
	if res.Requires2FA {
		return map[string]any{"requires_2fa": true, "username": res.Username}
	}
	return tokenResponse{
		Access:           res.Pair.Access,
		Refresh:          res.Pair.Refresh,
		AccessExpiresAt:  res.Pair.AccessExpiresAt,
		RefreshExpiresAt: res.Pair.RefreshExpiresAt,
		User:             res.Account,
	}
}

func (a *IdPAPI) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, apierr.KindInputInvalid, err.Error())
		return
	}
	res, err := a.svc.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{"username": req.Username})
		handleServiceError(w, r, err)
		return
	}
	if res.Requires2FA {
		_ = audit.LogEvent(r.Context(), "auth.login.second_factor_required", map[string]any{"username": res.Username})
	} else {
		_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{"username": res.Username})
	}
	writeJSON(w, http.StatusOK, loginResponse(res))
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func (a *IdPAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, apierr.KindInputInvalid, err.Error())
		return
	}
	pair, err := a.svc.Refresh(r.Context(), req.Refresh)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.refresh", nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"access":             pair.Access,
		"refresh":            pair.Refresh,
		"access_expires_at":  pair.AccessExpiresAt,
		"refresh_expires_at": pair.RefreshExpiresAt,
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (a *IdPAPI) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, apierr.KindInputInvalid, err.Error())
		return
	}
	if err := a.svc.ChangePassword(r.Context(), caller.Subject, req.CurrentPassword, req.NewPassword); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password.changed", nil)
	writeJSON(w, http.StatusOK, map[string]any{"message": "password changed; previously issued tokens are no longer valid"})
}

func (a *IdPAPI) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	projection, err := a.svc.Me(r.Context(), caller.Subject)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projection)
}

func (a *IdPAPI) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	pemStr, err := a.keys.PublicPEM()
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_, kid := a.keys.Active()
	w.Header().Set("Cache-Control", "public, max-age=86400")
	writeJSON(w, http.StatusOK, map[string]any{
		"public_key": pemStr,
		"algorithm":  "RS256",
		"key_id":     kid,
	})
}

func (a *IdPAPI) handlePublicKeys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	published, err := a.keys.Published()
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(published))
	for _, pk := range published {
		out = append(out, map[string]any{
			"public_key": pk.PEM,
			"algorithm":  "RS256",
			"key_id":     pk.Kid,
		})
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	writeJSON(w, http.StatusOK, map[string]any{"keys": out})
}

// Second factor ------------------------------------------------------------

func (a *IdPAPI) handleTwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	setup, err := a.svc.SetupTwoFactor(r.Context(), caller.Subject)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.2fa.setup_started", nil)
	writeJSON(w, http.StatusOK, setup)
}

type twoFactorConfirmRequest struct {
	Code      string `json:"code"`
	DeviceRef string `json:"device_ref,omitempty"`
}

func (a *IdPAPI) handleTwoFactorConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req twoFactorConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, apierr.KindInputInvalid, err.Error())
		return
	}
	if err := a.svc.ConfirmTwoFactor(r.Context(), caller.Subject, req.Code); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.2fa.enabled", map[string]any{"device_ref": req.DeviceRef})
	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

type twoFactorLoginRequest struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

func (a *IdPAPI) handleTwoFactorLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req twoFactorLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, apierr.KindInputInvalid, err.Error())
		return
	}
	res, err := a.svc.VerifyLogin(r.Context(), req.Username, req.Code)
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.login.second_factor_failed", map[string]any{"username": req.Username})
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{"username": res.Username, "second_factor": true})
	writeJSON(w, http.StatusOK, loginResponse(res))
}

func (a *IdPAPI) handleTwoFactorStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	status, err := a.svc.StatusTwoFactor(r.Context(), caller.Subject)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type passwordConfirmRequest struct {
	Password string `json:"password"`
}

func (a *IdPAPI) handleTwoFactorDisable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req passwordConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, apierr.KindInputInvalid, err.Error())
		return
	}
	if err := a.svc.DisableTwoFactor(r.Context(), caller.Subject, req.Password); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.2fa.disabled", nil)
	writeJSON(w, http.StatusOK, map[string]any{"message": "second factor disabled"})
}

func (a *IdPAPI) handleRecoveryRegenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req passwordConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, apierr.KindInputInvalid, err.Error())
		return
	}
	codes, err := a.svc.RegenerateRecoveryCodes(r.Context(), caller.Subject, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.2fa.recovery_codes_regenerated", nil)
	writeJSON(w, http.StatusOK, map[string]any{"recovery_codes": codes})
}

type recoveryDownloadRequest struct {
	Codes []string `json:"codes"`
}

func (a *IdPAPI) handleRecoveryDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req recoveryDownloadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, apierr.KindInputInvalid, err.Error())
		return
	}
	artifact, err := a.svc.DownloadRecoveryCodes(caller.Username, req.Codes)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}
