package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"preventanyl/utils"
)

// ErrorHandler recovers panics and renders errors attached with c.Error
// that no handler has answered yet.
type ErrorHandler struct {
	environment string
	logger      *logrus.Logger
}

func NewErrorHandler(environment string, logger *logrus.Logger) *ErrorHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ErrorHandler{
		environment: environment,
		logger:      logger,
	}
}

func (eh *ErrorHandler) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				eh.handlePanic(c, err)
			}
		}()

		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			eh.processError(c, c.Errors.Last().Err)
		}
	}
}

func (eh *ErrorHandler) handlePanic(c *gin.Context, err interface{}) {
	eh.logger.WithFields(logrus.Fields{
		"panic":      err,
		"stack":      string(debug.Stack()),
		"request_id": c.GetString("request_id"),
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"device_id":  c.GetString("deviceID"),
	}).Error("Panic recovered")

	var details map[string]interface{}
	if eh.environment == "development" {
		details = map[string]interface{}{"panic": err}
	}
	utils.InternalServerErrorResponse(c, "", details)
}

func (eh *ErrorHandler) processError(c *gin.Context, err error) {
	fields := logrus.Fields{
		"error":      err.Error(),
		"request_id": c.GetString("request_id"),
		"path":       c.Request.URL.Path,
	}

	var validationErr validator.ValidationErrors
	switch {
	case errors.As(err, &validationErr):
		eh.logger.WithFields(fields).Warn("Validation error")
		utils.ValidationErrorResponse(c, formatValidationErrors(validationErr))
	case mongo.IsDuplicateKeyError(err):
		eh.logger.WithFields(fields).Warn("Duplicate resource")
		utils.ConflictResponse(c, "Resource already exists")
	case errors.Is(err, mongo.ErrNoDocuments):
		utils.NotFoundResponse(c, "Resource")
	case mongo.IsTimeout(err), mongo.IsNetworkError(err):
		eh.logger.WithFields(fields).Error("Database unavailable")
		utils.ServiceUnavailableResponse(c, "Database")
	default:
		serviceErr := utils.ToServiceError(err)
		if serviceErr.StatusCode >= http.StatusInternalServerError {
			eh.logger.WithFields(fields).Error("Server error")
		}
		utils.HandleServiceError(c, err)
	}
}

func formatValidationErrors(validationErrors validator.ValidationErrors) []utils.ValidationError {
	out := make([]utils.ValidationError, 0, len(validationErrors))
	for _, fe := range validationErrors {
		out = append(out, utils.ValidationError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: "Invalid value for " + fe.Field(),
		})
	}
	return out
}
