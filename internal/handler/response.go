package handler

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/aifraenkel/artist-finance-manager-sub002/internal/pkg/errors"
	"github.com/aifraenkel/artist-finance-manager-sub002/internal/service"
)

// Стабильные коды ошибок API
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeUserExists          = "USER_EXISTS"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeTokenAlreadyUsed    = "TOKEN_ALREADY_USED"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeRegistrationPending = "REGISTRATION_PENDING"
	CodeDuplicateRequest    = "DUPLICATE_REQUEST"
	CodeInvalidCredential   = "INVALID_CREDENTIAL"
	CodeCredentialUsed      = "CREDENTIAL_ALREADY_USED"
	CodeEmailDelivery       = "EMAIL_DELIVERY_FAILED"
	CodeInternal            = "INTERNAL_ERROR"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// Порядок важен: первый совпавший sentinel определяет ответ
var errorMappings = []errorMapping{
	{service.ErrUserExists, http.StatusConflict, CodeUserExists, "An account with this email already exists"},
	{service.ErrUserNotFound, http.StatusNotFound, CodeUserNotFound, "No account found for this email"},
	{service.ErrInvalidToken, http.StatusNotFound, CodeInvalidToken, "Invalid or unknown registration link"},
	{service.ErrTokenAlreadyUsed, http.StatusConflict, CodeTokenAlreadyUsed, "This link has already been used"},
	{service.ErrTokenExpired, http.StatusGone, CodeTokenExpired, "This link has expired, please request a new one"},
	{service.ErrRegistrationPending, http.StatusConflict, CodeRegistrationPending, "A registration link was already issued for this email"},
	{service.ErrDuplicateRequest, http.StatusTooManyRequests, CodeDuplicateRequest, "A link was just sent, please check your inbox"},
	{service.ErrInvalidCredential, http.StatusUnauthorized, CodeInvalidCredential, "Invalid or expired sign-in credential"},
	{service.ErrCredentialUsed, http.StatusConflict, CodeCredentialUsed, "This sign-in credential has already been used"},
	{service.ErrEmailDelivery, http.StatusBadGateway, CodeEmailDelivery, "Failed to send email, please try again"},
}

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   code,
		"message": message,
	})
}

// respondServiceError переводит ошибку сервиса в HTTP ответ
func respondServiceError(c *gin.Context, op string, err error) {
	if errors.Is(err, apperrors.ErrValidation) {
		respondError(c, http.StatusBadRequest, CodeInvalidRequest, validationMessage(err))
		return
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			respondError(c, m.status, m.code, m.message)
			return
		}
	}

	log.Printf("[Handler] %s failed: %v", op, err)
	respondError(c, http.StatusInternalServerError, CodeInternal, "Internal server error")
}

func validationMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), apperrors.ErrValidation.Error()+": ")
	if msg == "" {
		return "Invalid request data"
	}
	return msg
}
