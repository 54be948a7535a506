package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/franciscosanchezn/gin-oauth2-server/docs" // Import generated docs
	"github.com/franciscosanchezn/gin-oauth2-server/internal/accesslog"
	"github.com/franciscosanchezn/gin-oauth2-server/internal/auth"
	"github.com/franciscosanchezn/gin-oauth2-server/internal/config"
	"github.com/franciscosanchezn/gin-oauth2-server/internal/controllers"
	"github.com/franciscosanchezn/gin-oauth2-server/internal/database"
	"github.com/franciscosanchezn/gin-oauth2-server/internal/middleware"
	"github.com/franciscosanchezn/gin-oauth2-server/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

const (
	accessLogBuffer      = 1024
	limiterCleanupPeriod = 5 * time.Minute
	shutdownTimeout      = 10 * time.Second

	scopeRead  = "read"
	scopeWrite = "write"
)

type application struct {
	oauthController  *controllers.OAuthController
	authController   *controllers.AuthController
	clientController *controllers.ClientController
	rateLimiter      *middleware.IPRateLimiter
	accessLog        accesslog.Sink
	configuration    *config.Config
}

// @title OAuth2 Authorization Server
// @version 1.0
// @description Authorization code (with PKCE) and client credentials grants
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and an access token from /oauth2/token.
func main() {
	// Load environment variables
	loadDotenvFile()

	// Initialize logger
	setUpLogger()

	// Load configuration
	configuration := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	db := setupDatabase(configuration)

	// Access log sinks
	sink := setupAccessLog(ctx, db)

	// Authorization server core
	userService := services.NewUserService(db)
	oauthService := setupOAuthService(ctx, configuration, db, userService)

	app := &application{
		oauthController:  controllers.NewOAuthController(oauthService, sink, configuration.LoginURL, log.StandardLogger()),
		authController:   controllers.NewAuthController(userService, configuration.SessionSecret, log.StandardLogger()),
		clientController: controllers.NewClientController(services.NewClientService(db), log.StandardLogger()),
		rateLimiter:      middleware.NewIPRateLimiter(configuration.TokenRateLimit, configuration.TokenRateBurst, log.StandardLogger()),
		accessLog:        sink,
		configuration:    configuration,
	}
	go app.rateLimiter.RunCleanup(limiterCleanupPeriod, ctx.Done())

	// Initialize Gin router
	router := app.setupRouter()

	// Start the server
	server := &http.Server{
		Addr:    fmt.Sprintf("%v:%d", configuration.Host, configuration.Port),
		Handler: router,
	}
	go func() {
		log.Infof("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
	if async, ok := sink.(*accesslog.AsyncSink); ok {
		async.Wait()
	}
}

// checkPanicErr checks if an error occurred and panics if it did
func checkPanicErr(err error) {
	if err != nil {
		panic(err)
	}
}

// loadDotenvFile loads environment variables from a .env file
// If the file is not found, it will log a warning and use system environment variables
func loadDotenvFile() {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found, using system environment variables")
	}
}

// setUpLogger initializes the logger with a JSON formatter and sets the log level based on the environment
// LOG_LEVEL, when set, overrides the environment default
func setUpLogger() {
	log.SetFormatter(&log.JSONFormatter{})
	environment := config.GetEnvWithDefault("APP_ENV", "development")
	switch environment {
	case "development":
		log.SetLevel(log.DebugLevel)
	case "production":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
	if level, err := log.ParseLevel(config.GetEnvWithDefault("LOG_LEVEL", "")); err == nil {
		log.SetLevel(level)
	}
}

// loadConfig loads the application configuration from environment variables
// It returns a Config struct or panics if there is an error
func loadConfig() *config.Config {
	conf, err := config.LoadConfig()
	checkPanicErr(err)
	log.Infof("Configuration loaded: %s", conf.String())
	return conf
}

// setupDatabase connects with retries and migrates the schema
func setupDatabase(conf *config.Config) *gorm.DB {
	db, err := database.InitDatabase(conf.Database())
	checkPanicErr(err)
	checkPanicErr(database.Migrate(db))
	return db
}

// setupAccessLog fans access log entries out to logrus, the database and
// Prometheus through a non-blocking buffer
func setupAccessLog(ctx context.Context, db *gorm.DB) accesslog.Sink {
	promSink, err := accesslog.NewPrometheusSink(prometheus.DefaultRegisterer)
	checkPanicErr(err)

	logger := log.StandardLogger()
	async := accesslog.NewAsyncSink(accesslog.MultiSink{
		accesslog.LogrusSink{Logger: logger},
		accesslog.NewGormSink(db, logger),
		promSink,
	}, accessLogBuffer, logger)
	go async.Run(ctx)
	return async
}

// setupOAuthService selects the code store and starts the expired code sweeper
func setupOAuthService(ctx context.Context, conf *config.Config, db *gorm.DB, roles auth.RoleLookup) *auth.OAuthService {
	var codes auth.CodeStore = auth.NewGormCodeStore(db)
	if conf.CodeStore == config.CodeStoreRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     conf.RedisAddr,
			Password: conf.RedisPassword,
			DB:       conf.RedisDB,
		})
		checkPanicErr(client.Ping(ctx).Err())
		log.WithField("redis_addr", conf.RedisAddr).Info("Using Redis authorization code store")
		codes = auth.NewRedisCodeStore(client, auth.DefaultRedisKeyPrefix)
	}

	service := auth.NewOAuthService(auth.Options{
		ClientStore:         auth.NewGormClientStore(db),
		CodeStore:           codes,
		Issuer:              auth.NewJWTTokenIssuer(auth.NewJWTAccessGenerate([]byte(conf.JWTSecret), jwt.SigningMethodHS512, roles)),
		RedirectPolicy:      auth.RedirectPolicy(conf.RedirectPolicy),
		CodeTTL:             conf.CodeTTL,
		AccessTokenLifetime: conf.AccessTokenLifetime,
	})

	if conf.CodeSweepInterval > 0 {
		go service.Ledger().Sweep(ctx, conf.CodeSweepInterval, log.WithField("component", "code_sweeper"))
	}
	return service
}

// setupRouter initializes the Gin router and sets up the routes
// It returns the configured router
func (app *application) setupRouter() *gin.Engine {
	router := gin.Default()
	router.SetHTMLTemplate(controllers.Templates())

	app.setupRoutes(router)

	return router
}

// setupRoutes defines the routes for the Gin router
func (app *application) setupRoutes(router *gin.Engine) {
	// Health check endpoint
	router.GET("/health", healthCheckHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	sessionSecret := []byte(app.configuration.SessionSecret)

	// OAuth2 endpoints
	oauth := router.Group("/oauth2")
	{
		authorize := oauth.Group("/authorize", middleware.SessionAuth(sessionSecret))
		authorize.GET("", app.oauthController.Authorize)
		authorize.POST("", app.oauthController.Authorize)

		oauth.POST("/token", middleware.RateLimit(app.rateLimiter, app.accessLog), app.oauthController.Token)
	}

	// Resource owner login
	router.GET("/login", app.authController.LoginPage)
	router.POST("/login", app.authController.Login)

	v1 := router.Group("/api/v1")
	{
		authApi := v1.Group("/auth")
		{
			authApi.POST("/register", app.authController.Register)
		}

		// Protected routes (requires an access token from /oauth2/token)
		protectedApi := v1.Group("/protected")
		protectedApi.Use(middleware.OAuth2Auth([]byte(app.configuration.JWTSecret)))
		{
			// Reads need the "read" scope, changes need "write"
			clientsApi := protectedApi.Group("/clients")
			clientsApi.Use(middleware.RequireRole("admin"))
			{
				read := middleware.RequireScope(scopeRead)
				write := middleware.RequireScope(scopeWrite)
				clientsApi.POST("", write, app.clientController.CreateClient)
				clientsApi.GET("", read, app.clientController.ListClients)
				clientsApi.DELETE("/:id", write, app.clientController.DeleteClient)
				clientsApi.POST("/:id/disable", write, app.clientController.DisableClient)
				clientsApi.POST("/:id/enable", write, app.clientController.EnableClient)
				clientsApi.POST("/:id/rotate-secret", write, app.clientController.RotateClientSecret)
			}
		}
	}

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// healthCheckHandler handles the health check endpoint
// @Summary Health check
// @Description Check if the service is running
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "gin-oauth2-server",
	})
}
