package controllers

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/franciscosanchezn/gin-oauth2-server/internal/accesslog"
	"github.com/franciscosanchezn/gin-oauth2-server/internal/auth"
	"github.com/franciscosanchezn/gin-oauth2-server/internal/database"
	"github.com/franciscosanchezn/gin-oauth2-server/internal/middleware"
	"github.com/franciscosanchezn/gin-oauth2-server/internal/models"
	"github.com/franciscosanchezn/gin-oauth2-server/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testJWTSecret     = "test-jwt-secret-key-32-characters"
	testSessionSecret = "test-session-secret"
	testRedirectURI   = "https://app.example.com/callback"
	testPassword      = "password123"
)

var testDBCounter atomic.Int64

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingSink struct {
	mu      sync.Mutex
	entries []accesslog.Entry
}

func (s *recordingSink) Record(entry accesslog.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

// entry returns the first recorded entry with outcome.
func (s *recordingSink) entry(outcome string) (accesslog.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Outcome == outcome {
			return e, true
		}
	}
	return accesslog.Entry{}, false
}

func (s *recordingSink) outcomes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Outcome)
	}
	return out
}

// testServer is the HTTP surface of the authorization server over an
// in-memory database, with an admin user owning one confidential client.
type testServer struct {
	router       *gin.Engine
	db           *gorm.DB
	sink         *recordingSink
	admin        *models.User
	clientID     string
	clientSecret string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dsn := fmt.Sprintf("file:controllerstest%d?mode=memory&cache=shared", testDBCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	log, _ := test.NewNullLogger()
	userService := services.NewUserService(db)
	clientService := services.NewClientService(db)

	admin := &models.User{Email: "admin@example.com", Name: "Admin", Role: "admin", Password: testPassword}
	require.NoError(t, admin.HashPassword())
	require.NoError(t, userService.CreateUser(admin))

	client, secret, err := clientService.CreateClient(services.CreateClientInput{
		Name:         "Test App",
		UserID:       admin.ID,
		Confidential: true,
		RedirectURIs: []string{testRedirectURI},
		GrantTypes:   []string{"authorization_code", "client_credentials"},
		Scopes:       []string{"read", "write"},
		PKCEMethods:  []string{"S256"},
	})
	require.NoError(t, err)

	sink := &recordingSink{}
	oauthController := NewOAuthController(auth.NewGormOAuthService(db, testJWTSecret, userService), sink, "/login", log)
	authController := NewAuthController(userService, testSessionSecret, log)
	clientController := NewClientController(clientService, log)

	router := gin.New()
	router.SetHTMLTemplate(Templates())

	authorize := router.Group("/oauth2/authorize", middleware.SessionAuth([]byte(testSessionSecret)))
	authorize.GET("", oauthController.Authorize)
	authorize.POST("", oauthController.Authorize)
	router.POST("/oauth2/token", oauthController.Token)

	router.GET("/login", authController.LoginPage)
	router.POST("/login", authController.Login)
	router.POST("/api/v1/auth/register", authController.Register)

	clients := router.Group("/api/v1/protected/clients",
		middleware.OAuth2Auth([]byte(testJWTSecret)), middleware.RequireRole("admin"))
	read, write := middleware.RequireScope("read"), middleware.RequireScope("write")
	clients.POST("", write, clientController.CreateClient)
	clients.GET("", read, clientController.ListClients)
	clients.DELETE("/:id", write, clientController.DeleteClient)
	clients.POST("/:id/disable", write, clientController.DisableClient)
	clients.POST("/:id/enable", write, clientController.EnableClient)
	clients.POST("/:id/rotate-secret", write, clientController.RotateClientSecret)

	return &testServer{
		router:       router,
		db:           db,
		sink:         sink,
		admin:        admin,
		clientID:     client.ID,
		clientSecret: secret,
	}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) sessionCookie(t *testing.T, userID uint) *http.Cookie {
	t.Helper()
	token, err := middleware.NewSessionToken([]byte(testSessionSecret), strconv.FormatUint(uint64(userID), 10), time.Hour)
	require.NoError(t, err)
	return &http.Cookie{Name: middleware.SessionCookieName, Value: token}
}

func (s *testServer) authorizeParams(state, challenge string) url.Values {
	params := url.Values{
		"client_id":     {s.clientID},
		"response_type": {"code"},
		"redirect_uri":  {testRedirectURI},
		"scope":         {"read"},
	}
	if state != "" {
		params.Set("state", state)
	}
	if challenge != "" {
		params.Set("code_challenge", challenge)
		params.Set("code_challenge_method", "S256")
	}
	return params
}

func formRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func basicAuth(id, secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(url.QueryEscape(id)+":"+url.QueryEscape(secret)))
}

// approve runs the consent POST and returns the redirect location.
func (s *testServer) approve(t *testing.T, params url.Values) *url.URL {
	t.Helper()
	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	form.Set("authorize", "yes")
	req := formRequest(http.MethodPost, "/oauth2/authorize", form)
	req.AddCookie(s.sessionCookie(t, s.admin.ID))

	w := s.do(req)
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	return location
}

// clientCredentialsToken returns an admin token carrying the read and write scopes.
func (s *testServer) clientCredentialsToken(t *testing.T) string {
	t.Helper()
	return s.scopedToken(t, "read write")
}

func (s *testServer) scopedToken(t *testing.T, scope string) string {
	t.Helper()
	req := formRequest(http.MethodPost, "/oauth2/token", url.Values{"grant_type": {"client_credentials"}, "scope": {scope}})
	req.Header.Set("Authorization", basicAuth(s.clientID, s.clientSecret))
	w := s.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body models.TokenResponse
	require.NoError(t, jsonDecode(w, &body))
	return body.AccessToken
}
