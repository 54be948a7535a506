package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/franciscosanchezn/gin-oauth2-server/internal/middleware"
	"github.com/franciscosanchezn/gin-oauth2-server/internal/models"
	"github.com/franciscosanchezn/gin-oauth2-server/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type AuthController struct {
	userService     services.UserService
	sessionSecret   []byte
	sessionLifetime time.Duration
	logger          logrus.FieldLogger
}

func NewAuthController(userService services.UserService, sessionSecret string, logger logrus.FieldLogger) *AuthController {
	return &AuthController{
		userService:     userService,
		sessionSecret:   []byte(sessionSecret),
		sessionLifetime: middleware.DefaultSessionLifetime,
		logger:          logger,
	}
}

// Register godoc
// @Summary Register a user
// @Description Create a resource owner account that can sign in and approve authorization requests
// @Tags Auth
// @Accept json
// @Produce json
// @Param user body object{email=string,password=string,name=string} true "User details"
// @Success 201 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/auth/register [post]
func (ac *AuthController) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6"`
		Name     string `json:"name"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := &models.User{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     "user",
	}

	if err := user.HashPassword(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "password_hashing_failed"})
		return
	}

	if err := ac.userService.CreateUser(user); err != nil {
		if errors.Is(err, services.ErrUserExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "user_already_exists"})
			return
		}
		ac.logger.WithError(err).Error("Failed to create user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user_creation_failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "user_created", "id": user.ID})
}

// LoginPage godoc
// @Summary Login page
// @Tags Auth
// @Produce html
// @Param redirect query string false "Local URL to continue to after login"
// @Success 200 {string} string "Login form"
// @Router /login [get]
func (ac *AuthController) LoginPage(c *gin.Context) {
	c.HTML(http.StatusOK, loginTemplate, gin.H{
		"Redirect": safeRedirect(c.Query("redirect")),
	})
}

// Login godoc
// @Summary Sign in
// @Description Verifies email and password and sets the session cookie used by /oauth2/authorize
// @Tags Auth
// @Accept x-www-form-urlencoded
// @Produce html
// @Param email formData string true "Email"
// @Param password formData string true "Password"
// @Param redirect formData string false "Local URL to continue to"
// @Success 302 {string} string "Redirect to the continuation URL"
// @Failure 401 {string} string "Login form with an error"
// @Router /login [post]
func (ac *AuthController) Login(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")
	redirect := safeRedirect(c.PostForm("redirect"))

	user, err := ac.userService.GetUserByEmail(email)
	if err != nil || !user.CheckPassword(password) {
		ac.logger.WithField("email", email).Info("Login rejected")
		c.HTML(http.StatusUnauthorized, loginTemplate, gin.H{
			"Error":    "Invalid email or password",
			"Email":    email,
			"Redirect": redirect,
		})
		return
	}

	if err := middleware.SetSessionCookie(c, ac.sessionSecret, strconv.FormatUint(uint64(user.ID), 10), ac.sessionLifetime); err != nil {
		ac.logger.WithError(err).Error("Failed to sign session")
		c.HTML(http.StatusInternalServerError, errorTemplate, gin.H{
			"Error":       "server_error",
			"Description": "Could not create a session",
		})
		return
	}

	c.Redirect(http.StatusFound, redirect)
}

// safeRedirect only allows local paths so the login form cannot be used as an open redirect.
func safeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}
