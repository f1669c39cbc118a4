package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/princinho/studyspark/auth"
	"github.com/princinho/studyspark/database"
	"github.com/princinho/studyspark/pdfx"
	"go.uber.org/zap"
)

const (
	MsgAuthFailed = "authentication failed"
	MsgForbidden  = "forbidden"
	MsgResetCode  = "invalid or expired reset code"
	MsgInternal   = "internal server error"
)

// RespondError aborts the request with the status and message err maps to.
// Clients never learn which credential check failed.
func RespondError(c *gin.Context, log *zap.Logger, err error) {
	status, msg := classify(err)
	if log != nil {
		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		}
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("request failed", fields...)
		case errors.Is(err, auth.ErrUnknownRole):
			log.Error("role missing from permission table", fields...)
		default:
			log.Debug("request rejected", fields...)
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func classify(err error) (int, string) {
	switch {
	case auth.IsAuthenticationError(err):
		return http.StatusUnauthorized, MsgAuthFailed
	case errors.Is(err, auth.ErrUnknownRole), errors.Is(err, auth.ErrInsufficientPermission):
		return http.StatusForbidden, MsgForbidden
	case errors.Is(err, auth.ErrResetCodeInvalid):
		return http.StatusBadRequest, MsgResetCode
	case errors.Is(err, database.ErrDuplicateEmail):
		return http.StatusConflict, "email already registered"
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, database.ErrDocumentNotFound):
		return http.StatusNotFound, "document not found"
	case errors.Is(err, pdfx.ErrInvalidURL), errors.Is(err, pdfx.ErrNotPDF),
		errors.Is(err, pdfx.ErrTooLarge), errors.Is(err, pdfx.ErrUnreadable):
		return http.StatusBadRequest, rootMessage(err)
	default:
		return http.StatusInternalServerError, MsgInternal
	}
}

func rootMessage(err error) string {
	for _, sentinel := range []error{pdfx.ErrInvalidURL, pdfx.ErrNotPDF, pdfx.ErrTooLarge, pdfx.ErrUnreadable} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
