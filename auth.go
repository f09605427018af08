package siteapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// googleUserinfoURL is the profile endpoint queried after the code exchange.
const googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// googleProfile is the subset of the userinfo response we consume.
type googleProfile struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (a *App) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.Config.GoogleClientID,
		ClientSecret: a.Config.GoogleClientSecret,
		RedirectURL:  a.Config.GoogleCallbackURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.profile",
			"https://www.googleapis.com/auth/userinfo.email",
		},
		Endpoint: google.Endpoint,
	}
}

// handleLogin redirects the user agent to Google's authorization endpoint.
// Unconfigured credentials fail fast with 503 instead of a broken redirect.
func (a *App) handleLogin(c echo.Context) error {
	if !a.Config.OAuthConfigured() {
		return JSONError(c, http.StatusServiceUnavailable, "OAuth not configured",
			"Google OAuth credentials are not configured. Please set up your environment.")
	}
	if !a.loginLimiter.Allow(c.RealIP()) {
		return JSONError(c, http.StatusTooManyRequests, "Too many login attempts")
	}
	state := uuid.NewString()
	sess, err := session.Get(SessionName, c)
	if err != nil {
		return err
	}
	sess.Values[sessionKeyOAuthState] = state
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return err
	}
	url := a.oauthConfig().AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
	return c.Redirect(http.StatusFound, url)
}

// handleCallback exchanges the authorization code, applies the allow-list
// check, and establishes the session. Denied or failed logins redirect to
// the frontend failure route; no principal is created.
func (a *App) handleCallback(c echo.Context) error {
	if !a.Config.OAuthConfigured() {
		return c.Redirect(http.StatusFound, a.Config.FrontendURL+"/?auth=not_configured")
	}
	if c.QueryParam("error") != "" {
		return a.redirectAuthFailed(c)
	}

	sess, err := session.Get(SessionName, c)
	if err != nil {
		return err
	}
	wantState, _ := sess.Values[sessionKeyOAuthState].(string)
	delete(sess.Values, sessionKeyOAuthState)
	if wantState == "" || c.QueryParam("state") != wantState {
		a.Logger.Warn("oauth state mismatch", zap.String("ip", c.RealIP()))
		return a.redirectAuthFailed(c)
	}

	code := c.QueryParam("code")
	if code == "" {
		return a.redirectAuthFailed(c)
	}
	profile, err := a.fetchProfile(c, code)
	if err != nil {
		a.Logger.Error("oauth exchange failed", zap.Error(err))
		return a.redirectAuthFailed(c)
	}

	// Strategy-level allow-list check: a non-authorized email never gets a
	// session. The gate re-checks independently on every admin request.
	if profile.Email == "" || !a.Config.IsAdminEmail(profile.Email) {
		a.Logger.Warn("login denied: email not allow-listed",
			zap.String("email", profile.Email))
		return a.redirectAuthFailed(c)
	}

	principal := &Principal{
		ID:          profile.ID,
		DisplayName: profile.Name,
		Emails:      []ValueRef{{Value: profile.Email}},
	}
	if profile.Picture != "" {
		principal.Photos = []ValueRef{{Value: profile.Picture}}
	}
	sess.Values[sessionKeyPrincipal] = principal
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, a.Config.FrontendURL+"/admin")
}

func (a *App) fetchProfile(c echo.Context, code string) (*googleProfile, error) {
	ctx := c.Request().Context()
	conf := a.oauthConfig()
	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	resp, err := conf.Client(ctx, token).Get(googleUserinfoURL)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("userinfo status %d: %s", resp.StatusCode, body)
	}
	var profile googleProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	return &profile, nil
}

// statusResponse is the /auth/status payload.
type statusResponse struct {
	Authenticated bool        `json:"authenticated"`
	User          *statusUser `json:"user"`
	IsAdmin       bool        `json:"isAdmin"`
}

type statusUser struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"displayName"`
	Email       string     `json:"email"`
	Photos      []ValueRef `json:"photos"`
}

// handleStatus reports the session state and, when authenticated, touches
// the session to extend its lifetime.
func (a *App) handleStatus(c echo.Context) error {
	p, ok := CurrentPrincipal(c)
	if !ok {
		return c.JSON(http.StatusOK, statusResponse{})
	}
	a.touchSession(c)
	return c.JSON(http.StatusOK, statusResponse{
		Authenticated: true,
		User: &statusUser{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Email:       p.PrimaryEmail(),
			Photos:      p.Photos,
		},
		IsAdmin: a.Config.IsAdminEmail(p.PrimaryEmail()),
	})
}

// handleRefresh extends the session lifetime. Runs behind RequireAuthenticated.
func (a *App) handleRefresh(c echo.Context) error {
	a.touchSession(c)
	return c.JSON(http.StatusOK, map[string]string{
		"message":   "Session refreshed",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleLogout destroys the session and sends the user home.
func (a *App) handleLogout(c echo.Context) error {
	sess, err := session.Get(SessionName, c)
	if err == nil {
		sess.Options.MaxAge = -1
		if err := sess.Save(c.Request(), c.Response()); err != nil {
			return JSONError(c, http.StatusInternalServerError, "Error during logout")
		}
	}
	return c.Redirect(http.StatusFound, a.Config.FrontendURL+"/")
}

// handleAuthFailure is the failure route the provider flow lands on.
func (a *App) handleAuthFailure(c echo.Context) error {
	return a.redirectAuthFailed(c)
}

func (a *App) redirectAuthFailed(c echo.Context) error {
	return c.Redirect(http.StatusFound, a.Config.FrontendURL+"/?auth=failed")
}

// touchSession slides the session's server-side expiry without rewriting
// its data or the cookie. Called only from explicit status/refresh paths.
func (a *App) touchSession(c echo.Context) {
	sess, err := session.Get(SessionName, c)
	if err != nil || sess.IsNew || sess.ID == "" {
		return
	}
	if err := a.Sessions.Touch(sess.ID); err != nil {
		a.Logger.Warn("session touch failed", zap.Error(err))
	}
}
