package controllers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/franciscosanchezn/gin-oauth2-server/internal/accesslog"
	"github.com/franciscosanchezn/gin-oauth2-server/internal/auth"
	"github.com/franciscosanchezn/gin-oauth2-server/internal/middleware"
	"github.com/franciscosanchezn/gin-oauth2-server/internal/models"
	"github.com/gin-gonic/gin"
	oauth2errors "github.com/go-oauth2/oauth2/v4/errors"
	"github.com/sirupsen/logrus"
)

const (
	authorizeEndpoint = "/oauth2/authorize"
	tokenEndpoint     = "/oauth2/token"
)

// authorizeParams are carried from the consent form back to /oauth2/authorize.
var authorizeParams = []string{
	"client_id", "response_type", "redirect_uri", "scope", "state",
	"code_challenge", "code_challenge_method",
}

type OAuthController struct {
	server   *auth.OAuthService
	sink     accesslog.Sink
	loginURL string
	logger   logrus.FieldLogger
}

func NewOAuthController(server *auth.OAuthService, sink accesslog.Sink, loginURL string, logger logrus.FieldLogger) *OAuthController {
	if loginURL == "" {
		loginURL = "/login"
	}
	return &OAuthController{server: server, sink: sink, loginURL: loginURL, logger: logger}
}

// Authorize godoc
// @Summary OAuth2 authorization endpoint
// @Description Validates an authorization request, asks the logged-in user for consent and redirects back with a code
// @Tags OAuth2
// @Accept x-www-form-urlencoded
// @Produce html
// @Param client_id query string true "Client ID"
// @Param response_type query string true "Must be code"
// @Param redirect_uri query string true "Registered redirect URI"
// @Param scope query string false "Space-separated scopes"
// @Param state query string false "Opaque state echoed back"
// @Param code_challenge query string false "PKCE challenge"
// @Param code_challenge_method query string false "plain or S256"
// @Param authorize formData string false "yes to approve, anything else denies"
// @Success 200 {string} string "Consent page"
// @Success 302 {string} string "Redirect to the client or to the login page"
// @Failure 400 {string} string "Error page"
// @Router /oauth2/authorize [get]
// @Router /oauth2/authorize [post]
func (oc *OAuthController) Authorize(c *gin.Context) {
	start := time.Now()
	if err := c.Request.ParseForm(); err != nil {
		oc.renderAuthorizeError(c, start, auth.AuthorizationRequest{}, auth.InvalidRequest("malformed request"))
		return
	}
	form := c.Request.Form

	req := auth.AuthorizationRequest{
		ClientID:            form.Get("client_id"),
		ResponseType:        form.Get("response_type"),
		RedirectURI:         form.Get("redirect_uri"),
		Scopes:              auth.ParseScope(form.Get("scope")),
		State:               form.Get("state"),
		CodeChallenge:       form.Get("code_challenge"),
		CodeChallengeMethod: form.Get("code_challenge_method"),
	}

	outcome, err := oc.server.ValidateAuthorizationRequest(c.Request.Context(), req)
	if err != nil {
		oc.renderAuthorizeError(c, start, req, err)
		return
	}

	userID := c.GetString(middleware.SessionUserKey)
	if userID == "" {
		oc.record(c, authorizeEndpoint, accesslog.OutcomeLoginRequired, start, req.ClientID, "")
		c.Redirect(http.StatusFound, oc.loginRedirect(form))
		return
	}

	if c.Request.Method != http.MethodPost {
		oc.record(c, authorizeEndpoint, accesslog.OutcomeConsentShown, start, req.ClientID, userID)
		c.HTML(http.StatusOK, consentTemplate, gin.H{
			"ClientName":          clientDisplayName(outcome.Client),
			"ClientID":            outcome.Client.ID,
			"ResponseType":        outcome.ResponseType,
			"RedirectURI":         outcome.RedirectURI,
			"Scopes":              outcome.Scopes,
			"Scope":               auth.FormatScope(outcome.Scopes),
			"State":               outcome.State,
			"CodeChallenge":       outcome.CodeChallenge,
			"CodeChallengeMethod": outcome.CodeChallengeMethod,
		})
		return
	}

	if form.Get("authorize") != "yes" {
		denied := auth.AccessDenied("the resource owner denied the request")
		denied.RedirectSafe = true
		oc.renderAuthorizeError(c, start, req, denied)
		return
	}

	code, err := oc.server.IssueCode(c.Request.Context(), outcome, auth.Principal{ID: userID})
	if err != nil {
		oc.renderAuthorizeError(c, start, req, err)
		return
	}

	params := url.Values{}
	params.Set("code", code.Code)
	if outcome.State != "" {
		params.Set("state", outcome.State)
	}
	target, err := appendQuery(outcome.RedirectURI, params)
	if err != nil {
		oc.renderAuthorizeError(c, start, req, auth.ServerError(err))
		return
	}

	oc.record(c, authorizeEndpoint, accesslog.OutcomeCodeIssued, start, req.ClientID, userID)
	c.Redirect(http.StatusFound, target)
}

// Token godoc
// @Summary OAuth2 token endpoint
// @Description Exchanges an authorization code or client credentials for a Bearer access token
// @Tags OAuth2
// @Accept x-www-form-urlencoded
// @Produce json
// @Param grant_type formData string true "authorization_code or client_credentials"
// @Param code formData string false "Authorization code"
// @Param redirect_uri formData string false "Redirect URI used at /oauth2/authorize"
// @Param code_verifier formData string false "PKCE verifier"
// @Param client_id formData string false "Client ID (or HTTP Basic)"
// @Param client_secret formData string false "Client secret (or HTTP Basic)"
// @Param scope formData string false "Space-separated scopes (client_credentials)"
// @Success 200 {object} models.TokenResponse
// @Failure 400 {object} models.OAuth2Error
// @Failure 401 {object} models.OAuth2Error
// @Failure 500 {object} models.OAuth2Error
// @Router /oauth2/token [post]
func (oc *OAuthController) Token(c *gin.Context) {
	start := time.Now()
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")

	authorization := c.GetHeader("Authorization")
	if err := c.Request.ParseForm(); err != nil {
		oc.renderTokenError(c, start, "", false, auth.InvalidRequest("malformed form body"))
		return
	}
	form := c.Request.PostForm

	clientID, basic := form.Get("client_id"), false
	if creds, err := auth.ExtractClientCredentials(form, authorization); err == nil {
		clientID, basic = creds.ClientID, creds.FromBasicAuth
	}

	token, err := oc.server.Token(c.Request.Context(), auth.TokenRequest{
		GrantType:           form.Get("grant_type"),
		Form:                form,
		AuthorizationHeader: authorization,
	})
	if err != nil {
		oc.renderTokenError(c, start, clientID, basic, err)
		return
	}

	oc.record(c, tokenEndpoint, accesslog.OutcomeSuccess, start, clientID, token.Principal.ID)
	c.JSON(http.StatusOK, models.TokenResponse{
		AccessToken: token.Value,
		TokenType:   token.TokenType,
		ExpiresIn:   token.ExpiresIn(time.Now()),
		Scope:       auth.FormatScope(token.Scopes),
	})
}

// renderTokenError answers with the JSON error body. A 401 after HTTP Basic
// client authentication carries a Basic challenge.
func (oc *OAuthController) renderTokenError(c *gin.Context, start time.Time, clientID string, basic bool, err error) {
	oauthErr := oc.logError(c, tokenEndpoint, clientID, err)
	oc.record(c, tokenEndpoint, oauthErr.Identifier(), start, clientID, "")

	status := oauthErr.StatusCode()
	if status == http.StatusUnauthorized && basic {
		c.Header("WWW-Authenticate", `Basic realm="oauth2"`)
	}
	c.JSON(status, models.NewOAuth2Error(oauthErr.Identifier(), oauthErr.Description))
}

// renderAuthorizeError redirects to the client when its redirect URI was
// validated, otherwise shows the error page.
func (oc *OAuthController) renderAuthorizeError(c *gin.Context, start time.Time, req auth.AuthorizationRequest, err error) {
	oauthErr := oc.logError(c, authorizeEndpoint, req.ClientID, err)
	oc.record(c, authorizeEndpoint, oauthErr.Identifier(), start, req.ClientID, c.GetString(middleware.SessionUserKey))

	if oauthErr.RedirectSafe && req.RedirectURI != "" {
		params := url.Values{}
		params.Set("error", oauthErr.Identifier())
		if oauthErr.Description != "" {
			params.Set("error_description", oauthErr.Description)
		}
		if req.State != "" {
			params.Set("state", req.State)
		}
		if target, err := appendQuery(req.RedirectURI, params); err == nil {
			c.Redirect(http.StatusFound, target)
			return
		}
	}

	c.HTML(oauthErr.StatusCode(), errorTemplate, gin.H{
		"Error":       oauthErr.Identifier(),
		"Description": oauthErr.Description,
	})
}

// logError converts err into the OAuth2 taxonomy and logs server_error causes.
func (oc *OAuthController) logError(c *gin.Context, endpoint, clientID string, err error) *auth.Error {
	oauthErr := auth.AsError(err)
	if oauthErr.Code == oauth2errors.ErrServerError {
		cause := oauthErr.Cause()
		if cause == nil {
			cause = err
		}
		oc.logger.WithFields(logrus.Fields{
			"endpoint":  endpoint,
			"client_id": clientID,
		}).WithError(cause).Error("OAuth2 request failed")
	}
	return oauthErr
}

func (oc *OAuthController) record(c *gin.Context, endpoint, outcome string, start time.Time, clientID, userID string) {
	if oc.sink == nil {
		return
	}
	oc.sink.Record(accesslog.Entry{
		Endpoint:   endpoint,
		Outcome:    outcome,
		Duration:   time.Since(start),
		ClientID:   clientID,
		UserID:     userID,
		RemoteAddr: c.ClientIP(),
		Time:       start,
	})
}

// loginRedirect sends the user to the login page with a GET URL that
// replays the authorization request afterwards.
func (oc *OAuthController) loginRedirect(form url.Values) string {
	params := url.Values{}
	for _, key := range authorizeParams {
		if value := form.Get(key); value != "" {
			params.Set(key, value)
		}
	}
	back := authorizeEndpoint + "?" + params.Encode()

	separator := "?"
	if strings.Contains(oc.loginURL, "?") {
		separator = "&"
	}
	return oc.loginURL + separator + url.Values{"redirect": {back}}.Encode()
}

func appendQuery(rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	query := u.Query()
	for key, values := range params {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func clientDisplayName(client *auth.Client) string {
	if client.Name != "" {
		return client.Name
	}
	return client.ID
}
