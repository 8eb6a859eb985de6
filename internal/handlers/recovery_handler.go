package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/internhub/backend/internal/services"
	"github.com/sirupsen/logrus"
)

const (
	msgOTPSent        = "OTP sent to your registered phone number"
	msgOTPUndelivered = "OTP was generated but could not be delivered. Please request a new OTP shortly"
	msgPasswordReset  = "Password has been reset successfully. Please log in with your new password"
	msgInvalidRequest = "Invalid request body"
)

// RecoveryHandler serves the phone based forgot-password endpoints.
type RecoveryHandler struct {
	recovery *services.RecoveryService
	log      *logrus.Logger
}

func NewRecoveryHandler(recovery *services.RecoveryService, log *logrus.Logger) *RecoveryHandler {
	return &RecoveryHandler{
		recovery: recovery,
		log:      log,
	}
}

type phoneRequest struct {
	Phone string `json:"phone"`
}

type resetPasswordRequest struct {
	Phone       string `json:"phone"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

// ForgotPassword issues a recovery code for the account registered under phone
func (h *RecoveryHandler) ForgotPassword(c *gin.Context) {
	var req phoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msgInvalidRequest})
		return
	}

	receipt, err := h.recovery.RequestChallenge(requestContext(c), req.Phone)
	if err != nil {
		writeRecoveryError(c, err)
		return
	}

	c.JSON(http.StatusOK, receiptResponse(receipt))
}

// ResendOTP issues a new code unless the previous one is still valid
func (h *RecoveryHandler) ResendOTP(c *gin.Context) {
	var req phoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msgInvalidRequest})
		return
	}

	receipt, err := h.recovery.ResendChallenge(requestContext(c), req.Phone)
	if err != nil {
		writeRecoveryError(c, err)
		return
	}

	c.JSON(http.StatusOK, receiptResponse(receipt))
}

// ResetPassword verifies the code and sets the new password
func (h *RecoveryHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msgInvalidRequest})
		return
	}

	if err := h.recovery.VerifyAndReset(requestContext(c), req.Phone, req.OTP, req.NewPassword); err != nil {
		writeRecoveryError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": msgPasswordReset})
}

func requestContext(c *gin.Context) context.Context {
	return services.WithRequestMeta(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
}

func receiptResponse(receipt *services.ChallengeReceipt) gin.H {
	resp := gin.H{
		"success":   true,
		"message":   msgOTPSent,
		"phone":     receipt.MaskedPhone,
		"delivered": receipt.Delivered,
	}
	if !receipt.Delivered {
		resp["message"] = msgOTPUndelivered
	}
	if receipt.DebugCode != "" {
		resp["otp"] = receipt.DebugCode
	}
	return resp
}

// writeRecoveryError maps recovery failures to status codes. Unknown errors
// get a generic message so backend details never reach the client.
func writeRecoveryError(c *gin.Context, err error) {
	var mismatch *services.CodeMismatchError
	var cooldown *services.CooldownError

	switch {
	case errors.As(err, &mismatch):
		c.JSON(http.StatusBadRequest, gin.H{
			"success":            false,
			"message":            mismatch.Error(),
			"remaining_attempts": mismatch.Remaining,
		})
	case errors.As(err, &cooldown):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"success":           false,
			"message":           cooldown.Error(),
			"remaining_minutes": cooldown.Minutes(),
		})
	case errors.Is(err, services.ErrInvalidPhoneFormat),
		errors.Is(err, services.ErrInvalidCodeFormat),
		errors.Is(err, services.ErrWeakPassword),
		errors.Is(err, services.ErrChallengeNotFoundOrExpired):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
	case errors.Is(err, services.ErrUnregisteredIdentity):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": err.Error()})
	case errors.Is(err, services.ErrIneligibleRole),
		errors.Is(err, services.ErrSecurityBindingViolation):
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": err.Error()})
	case errors.Is(err, services.ErrAttemptsExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": services.ErrRecoveryUnavailable.Error(),
		})
	}
}
