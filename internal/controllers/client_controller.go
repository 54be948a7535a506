package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/franciscosanchezn/gin-oauth2-server/internal/middleware"
	"github.com/franciscosanchezn/gin-oauth2-server/internal/models"
	"github.com/franciscosanchezn/gin-oauth2-server/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type ClientController struct {
	clientService services.ClientService
	logger        logrus.FieldLogger
}

func NewClientController(clientService services.ClientService, logger logrus.FieldLogger) *ClientController {
	return &ClientController{clientService: clientService, logger: logger}
}

type createClientRequest struct {
	Name         string   `json:"name" binding:"required"`
	Confidential *bool    `json:"confidential"`
	RedirectURIs []string `json:"redirect_uris"`
	GrantTypes   []string `json:"grant_types" binding:"required"`
	// Scopes omitted or null leaves the client unrestricted
	Scopes               *[]string `json:"scopes"`
	PKCEMethods          []string  `json:"pkce_methods"`
	AccessTokenLifetime  int       `json:"access_token_lifetime" binding:"min=0"`
	RefreshTokenLifetime int       `json:"refresh_token_lifetime" binding:"min=0"`
}

type clientResponse struct {
	ClientID             string   `json:"client_id"`
	ClientSecret         string   `json:"client_secret,omitempty"`
	Name                 string   `json:"name"`
	Confidential         bool     `json:"confidential"`
	Enabled              bool     `json:"enabled"`
	RedirectURIs         []string `json:"redirect_uris"`
	GrantTypes           []string `json:"grant_types"`
	Scopes               []string `json:"scopes"`
	PKCEMethods          []string `json:"pkce_methods"`
	AccessTokenLifetime  int      `json:"access_token_lifetime"`
	RefreshTokenLifetime int      `json:"refresh_token_lifetime"`
}

func newClientResponse(client *models.OAuthClient) clientResponse {
	resp := clientResponse{
		ClientID:             client.ID,
		Name:                 client.Name,
		Confidential:         client.Confidential,
		Enabled:              client.Enabled,
		RedirectURIs:         strings.Fields(client.RedirectURIs),
		GrantTypes:           strings.Fields(client.GrantTypes),
		PKCEMethods:          strings.Fields(client.PKCEMethods),
		AccessTokenLifetime:  client.AccessTokenLifetime,
		RefreshTokenLifetime: client.RefreshTokenLifetime,
	}
	if client.Scopes != nil {
		resp.Scopes = strings.Fields(*client.Scopes)
	}
	return resp
}

// CreateClient godoc
// @Summary Create OAuth2 client
// @Description Register a new OAuth2 client. The secret of a confidential client is returned only once.
// @Tags OAuth2 Clients
// @Accept json
// @Produce json
// @Param client body createClientRequest true "Client details"
// @Success 201 {object} clientResponse "Client created with client_id and client_secret"
// @Failure 400 {object} models.APIError "Invalid request"
// @Failure 500 {object} models.APIError "Client creation failed"
// @Security BearerAuth
// @Router /api/v1/protected/clients [post]
func (cc *ClientController) CreateClient(c *gin.Context) {
	var req createClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrValidationFailed, err.Error()))
		return
	}

	input := services.CreateClientInput{
		Name:                 req.Name,
		UserID:               c.GetUint(middleware.UserIDKey),
		Confidential:         req.Confidential == nil || *req.Confidential,
		RedirectURIs:         req.RedirectURIs,
		GrantTypes:           req.GrantTypes,
		PKCEMethods:          req.PKCEMethods,
		AccessTokenLifetime:  req.AccessTokenLifetime,
		RefreshTokenLifetime: req.RefreshTokenLifetime,
	}
	if req.Scopes != nil {
		input.Scopes = append([]string{}, (*req.Scopes)...)
	}

	client, secret, err := cc.clientService.CreateClient(input)
	if err != nil {
		cc.respondWithServiceError(c, err, "client_creation_failed")
		return
	}

	resp := newClientResponse(client)
	resp.ClientSecret = secret
	c.JSON(http.StatusCreated, resp)
}

// ListClients godoc
// @Summary List OAuth2 clients
// @Description Get all OAuth2 clients owned by the authenticated user
// @Tags OAuth2 Clients
// @Accept json
// @Produce json
// @Success 200 {array} clientResponse "List of clients"
// @Failure 500 {object} models.APIError "Failed to retrieve clients"
// @Security BearerAuth
// @Router /api/v1/protected/clients [get]
func (cc *ClientController) ListClients(c *gin.Context) {
	userID := c.GetUint(middleware.UserIDKey)
	clients, err := cc.clientService.GetClientsByUserID(userID)
	if err != nil {
		cc.logger.WithError(err).Error("Failed to list clients")
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "failed_to_retrieve_clients"))
		return
	}

	resp := make([]clientResponse, 0, len(clients))
	for i := range clients {
		resp = append(resp, newClientResponse(&clients[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// DeleteClient godoc
// @Summary Delete OAuth2 client
// @Description Delete an OAuth2 client owned by the authenticated user
// @Tags OAuth2 Clients
// @Produce json
// @Param id path string true "Client ID"
// @Success 204 "Client deleted successfully"
// @Failure 404 {object} models.APIError "Client not found"
// @Security BearerAuth
// @Router /api/v1/protected/clients/{id} [delete]
func (cc *ClientController) DeleteClient(c *gin.Context) {
	if err := cc.clientService.DeleteClient(c.Param("id"), c.GetUint(middleware.UserIDKey)); err != nil {
		cc.respondWithServiceError(c, err, "client_deletion_failed")
		return
	}
	c.Status(http.StatusNoContent)
}

// DisableClient godoc
// @Summary Disable OAuth2 client
// @Description A disabled client is rejected at both endpoints until re-enabled
// @Tags OAuth2 Clients
// @Produce json
// @Param id path string true "Client ID"
// @Success 204 "Client disabled"
// @Failure 404 {object} models.APIError "Client not found"
// @Security BearerAuth
// @Router /api/v1/protected/clients/{id}/disable [post]
func (cc *ClientController) DisableClient(c *gin.Context) {
	cc.setEnabled(c, false)
}

// EnableClient godoc
// @Summary Enable OAuth2 client
// @Tags OAuth2 Clients
// @Produce json
// @Param id path string true "Client ID"
// @Success 204 "Client enabled"
// @Failure 404 {object} models.APIError "Client not found"
// @Security BearerAuth
// @Router /api/v1/protected/clients/{id}/enable [post]
func (cc *ClientController) EnableClient(c *gin.Context) {
	cc.setEnabled(c, true)
}

func (cc *ClientController) setEnabled(c *gin.Context, enabled bool) {
	if err := cc.clientService.SetEnabled(c.Param("id"), c.GetUint(middleware.UserIDKey), enabled); err != nil {
		cc.respondWithServiceError(c, err, "client_update_failed")
		return
	}
	c.Status(http.StatusNoContent)
}

// RotateClientSecret godoc
// @Summary Rotate client secret
// @Description Issue a new secret for a confidential client. The old secret stops working immediately.
// @Tags OAuth2 Clients
// @Produce json
// @Param id path string true "Client ID"
// @Success 200 {object} map[string]string "client_id and the new client_secret"
// @Failure 400 {object} models.APIError "Client is public"
// @Failure 404 {object} models.APIError "Client not found"
// @Security BearerAuth
// @Router /api/v1/protected/clients/{id}/rotate-secret [post]
func (cc *ClientController) RotateClientSecret(c *gin.Context) {
	clientID := c.Param("id")
	secret, err := cc.clientService.RotateSecret(clientID, c.GetUint(middleware.UserIDKey))
	if err != nil {
		cc.respondWithServiceError(c, err, "secret_rotation_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"client_id":     clientID,
		"client_secret": secret,
	})
}

func (cc *ClientController) respondWithServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrClientNotFound):
		c.JSON(http.StatusNotFound, models.NewAPIError(models.ErrClientNotFound, "client_not_found"))
	case errors.Is(err, services.ErrInvalidClientData):
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrClientInvalid, err.Error()))
	default:
		cc.logger.WithError(err).Error("Client administration failed")
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, fallback))
	}
}
