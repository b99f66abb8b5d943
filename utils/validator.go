package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"preventanyl/models"
)

type ValidationService struct {
	validator *validator.Validate
}

type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

var phoneRegex = regexp.MustCompile(`^\+?[1-9]\d{9,14}$`)

func NewValidationService() *ValidationService {
	v := validator.New()

	// Register custom validators
	v.RegisterValidation("phone", validatePhone)
	v.RegisterValidation("coordinate", validateCoordinate)
	v.RegisterValidation("connection_type", validateConnectionType)

	return &ValidationService{
		validator: v,
	}
}

func (vs *ValidationService) ValidateStruct(s interface{}) []ValidationError {
	var validationErrors []ValidationError

	err := vs.validator.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return []ValidationError{{Message: err.Error()}}
	}

	for _, fe := range fieldErrors {
		validationErrors = append(validationErrors, ValidationError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Value:   fmt.Sprintf("%v", fe.Value()),
			Message: vs.getErrorMessage(fe),
		})
	}

	return validationErrors
}

func (vs *ValidationService) getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return "Invalid email format"
	case "phone":
		return "Invalid phone number format"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param())
	case "coordinate":
		return "Invalid coordinate value"
	case "connection_type":
		return "Invalid connection type"
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// Custom validation functions
func validatePhone(fl validator.FieldLevel) bool {
	phone := fl.Field().String()
	cleaned := regexp.MustCompile(`\D`).ReplaceAllString(phone, "")

	// 10-15 digits
	if len(cleaned) < 10 || len(cleaned) > 15 {
		return false
	}

	return phoneRegex.MatchString(phone)
}

func validateCoordinate(fl validator.FieldLevel) bool {
	coord := fl.Field().Float()
	fieldName := strings.ToLower(fl.FieldName())

	if strings.Contains(fieldName, "lat") {
		return coord >= -90 && coord <= 90
	}
	if strings.Contains(fieldName, "lon") || strings.Contains(fieldName, "lng") {
		return coord >= -180 && coord <= 180
	}

	return true
}

func validateConnectionType(fl validator.FieldLevel) bool {
	switch models.ConnectionType(fl.Field().String()) {
	case models.ConnectionNone, models.ConnectionWifi, models.ConnectionCellular,
		models.ConnectionEthernet, models.ConnectionUnknown:
		return true
	}
	return false
}

func SanitizeInput(input string) string {
	input = strings.TrimSpace(input)
	input = regexp.MustCompile(`[<>\"';&]`).ReplaceAllString(input, "")
	return input
}
