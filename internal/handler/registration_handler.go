package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aifraenkel/artist-finance-manager-sub002/internal/service"
)

// AuthFlow is the part of service.AuthFlowService the public endpoints call.
type AuthFlow interface {
	CreateRegistration(ctx context.Context, input service.CreateRegistrationInput) (*service.LinkRequestResult, error)
	CreateSignInRequest(ctx context.Context, input service.CreateSignInInput) (*service.LinkRequestResult, error)
	CompleteVerification(ctx context.Context, token, ipAddress string) (*service.VerificationResult, error)
	ExchangeSignInCredential(ctx context.Context, credential string) (*service.SignedInIdentity, error)
}

// RegistrationHandler обрабатывает публичные запросы регистрации и входа по ссылке
type RegistrationHandler struct {
	flow AuthFlow
}

func NewRegistrationHandler(flow AuthFlow) *RegistrationHandler {
	return &RegistrationHandler{flow: flow}
}

type createRegistrationRequest struct {
	Email       string `json:"email" binding:"required"`
	Name        string `json:"name" binding:"required"`
	ContinueURL string `json:"continueUrl" binding:"required"`
}

type createSignInRequest struct {
	Email       string `json:"email" binding:"required"`
	ContinueURL string `json:"continueUrl" binding:"required"`
}

type verifyTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type exchangeCredentialRequest struct {
	Credential string `json:"credential" binding:"required"`
}

// CreateRegistration обрабатывает POST /createRegistration
func (h *RegistrationHandler) CreateRegistration(c *gin.Context) {
	var req createRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid request data: email, name and continueUrl are required")
		return
	}

	res, err := h.flow.CreateRegistration(c.Request.Context(), service.CreateRegistrationInput{
		Email:       req.Email,
		Name:        req.Name,
		ContinueURL: req.ContinueURL,
	})
	if err != nil {
		respondServiceError(c, "CreateRegistration", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Verification email sent",
		"expiresAt": res.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// CreateSignInRequest обрабатывает POST /createSignInRequest
func (h *RegistrationHandler) CreateSignInRequest(c *gin.Context) {
	var req createSignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid request data: email and continueUrl are required")
		return
	}

	res, err := h.flow.CreateSignInRequest(c.Request.Context(), service.CreateSignInInput{
		Email:       req.Email,
		ContinueURL: req.ContinueURL,
	})
	if err != nil {
		respondServiceError(c, "CreateSignInRequest", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Sign-in email sent",
		"expiresAt": res.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// VerifyRegistrationToken обрабатывает POST /verifyRegistrationToken
func (h *RegistrationHandler) VerifyRegistrationToken(c *gin.Context) {
	var req verifyTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid request data: token is required")
		return
	}

	res, err := h.flow.CompleteVerification(c.Request.Context(), req.Token, c.ClientIP())
	if err != nil {
		respondServiceError(c, "VerifyRegistrationToken", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"email":       res.Email,
		"name":        res.Name,
		"signInLink":  res.SignInLink,
		"continueUrl": res.ContinueURL,
	})
}

// ExchangeSignInCredential обрабатывает POST /exchangeSignInCredential
func (h *RegistrationHandler) ExchangeSignInCredential(c *gin.Context) {
	var req exchangeCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid request data: credential is required")
		return
	}

	res, err := h.flow.ExchangeSignInCredential(c.Request.Context(), req.Credential)
	if err != nil {
		respondServiceError(c, "ExchangeSignInCredential", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"uid":     res.UID,
		"email":   res.Email,
		"name":    res.DisplayName,
	})
}
