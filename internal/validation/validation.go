package validation

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"whatsdata/internal/errors"
	"whatsdata/internal/models"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Allowed values for enumerated query parameters
var (
	StatsTypes  = []string{"summary", "contacts", "messages", "files", "activity"}
	Directories = []string{"input", "output", "chatId", "messagesId", "all"}
	SortOrders  = []string{"asc", "desc"}
)

// GetValidator returns the shared validator instance
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		validate.RegisterValidation("waid", func(fl validator.FieldLevel) bool {
			return models.IsValidWhatsAppID(fl.Field().String())
		})
	})
	return validate
}

// ValidateStruct runs tag validation and reports the first failing field
func ValidateStruct(s interface{}) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errors.Wrap(err, errors.ErrCodeValidationFailed, "validation failed")
	}

	fe := fieldErrs[0]
	return errors.NewValidationError(fe.Field(), fmt.Sprintf("%v", fe.Value()), describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return fmt.Sprintf("is required when %s is not set", fe.Param())
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "waid":
		return "must be a WhatsApp id"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// ValidateOneOf checks a query parameter against a fixed set
func ValidateOneOf(field, value string, allowed []string) error {
	if err := GetValidator().Var(value, "oneof="+strings.Join(allowed, " ")); err != nil {
		return errors.NewInputError(fmt.Sprintf("Invalid %s: %s", field, value)).
			WithContext("field", field).
			WithContext("allowed", allowed)
	}
	return nil
}

// ValidateStatsType checks the statistics type parameter
func ValidateStatsType(t string) error {
	if err := ValidateOneOf("type", t, StatsTypes); err != nil {
		return errors.NewInputError("Invalid statistics type: " + t)
	}
	return nil
}

type contactInput struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
}

type messageInput struct {
	From     string `json:"from" validate:"required"`
	To       string `json:"to" validate:"required"`
	Body     string `json:"body" validate:"required_without=HasMedia"`
	HasMedia bool   `json:"hasMedia"`
}

// ValidateNewContact requires a non-empty id and name
func ValidateNewContact(r models.Record) error {
	return ValidateStruct(contactInput{
		ID:   strings.TrimSpace(r.String(models.FieldID)),
		Name: strings.TrimSpace(r.String(models.FieldName)),
	})
}

// ValidateContactUpdate requires a name in the partial record
func ValidateContactUpdate(r models.Record) error {
	if strings.TrimSpace(r.String(models.FieldName)) == "" {
		return errors.NewInputError("Contact name is required")
	}
	return nil
}

// ValidateNewMessage requires from, to, and either content or the media flag
func ValidateNewMessage(r models.Record) error {
	m := models.NormalizeMessage(r)
	return ValidateStruct(messageInput{
		From:     r.String(models.FieldFrom),
		To:       r.String(models.FieldTo),
		Body:     m.Body,
		HasMedia: m.HasMedia,
	})
}

// ValidateWhatsAppID checks the WhatsApp id shape
func ValidateWhatsAppID(field, id string) error {
	if err := GetValidator().Var(id, "required,waid"); err != nil {
		return errors.NewValidationError(field, id, "must be a WhatsApp id")
	}
	return nil
}

// ValidateHTTPRequestSize rejects bodies over maxSizeBytes when the length is declared
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength > maxSizeBytes {
		return errors.New(errors.ErrCodeFileTooLarge,
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes)).
			WithUserMessage("Request body too large")
	}
	return nil
}
