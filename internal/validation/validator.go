package validation

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/recipememo-api/internal/models"
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Validator checks request payloads
type Validator struct {
	validate         *validator.Validate
	maxCommentLength int
}

// NewValidator creates a validator. A non-positive maxCommentLength selects
// models.DefaultMaxCommentLength.
func NewValidator(maxCommentLength int) *Validator {
	if maxCommentLength <= 0 {
		maxCommentLength = models.DefaultMaxCommentLength
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		tag := fld.Tag.Get("json")
		if tag == "-" || tag == "" {
			return fld.Name
		}
		if idx := strings.Index(tag, ","); idx >= 0 {
			tag = tag[:idx]
		}
		return tag
	})

	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseCategory(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("difficulty", func(fl validator.FieldLevel) bool {
		return models.ValidDifficulties[fl.Field().String()]
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	return &Validator{validate: v, maxCommentLength: maxCommentLength}
}

// ValidateRecipe validates a recipe create or update payload
func (v *Validator) ValidateRecipe(in *models.RecipeInput) []ValidationError {
	return v.structErrors(in)
}

// ValidateComment validates a comment create payload
func (v *Validator) ValidateComment(in *models.CommentInput) []ValidationError {
	errs := v.structErrors(in)
	if n := utf8.RuneCountInString(strings.TrimSpace(in.Text)); n > v.maxCommentLength {
		errs = append(errs, ValidationError{
			Field:   "text",
			Message: fmt.Sprintf("text must be at most %d characters", v.maxCommentLength),
			Value:   n,
		})
	}
	return errs
}

// ValidateReaction validates a reaction payload
func (v *Validator) ValidateReaction(in *models.ReactionInput) []ValidationError {
	return v.structErrors(in)
}

// ValidateImage checks an uploaded image against the size limit and the
// allowed content types. The declared content type and the sniffed one must
// both be allowed.
func ValidateImage(header *multipart.FileHeader, head []byte, maxSize int64, allowed []string) *ValidationError {
	if header.Size > maxSize {
		return &ValidationError{
			Field:   "imageFile",
			Message: fmt.Sprintf("file exceeds the %d MB limit", maxSize/(1024*1024)),
			Value:   header.Size,
		}
	}

	declared := strings.ToLower(header.Header.Get("Content-Type"))
	if idx := strings.Index(declared, ";"); idx >= 0 {
		declared = strings.TrimSpace(declared[:idx])
	}
	sniffed := http.DetectContentType(head)

	if !slices.Contains(allowed, declared) || !slices.Contains(allowed, sniffed) {
		return &ValidationError{
			Field:   "imageFile",
			Message: "unsupported image type, allowed: " + strings.Join(allowed, ", "),
			Value:   filepath.Base(header.Filename),
		}
	}
	return nil
}

// IsValidUUID reports whether s parses as a UUID
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func (v *Validator) structErrors(s interface{}) []ValidationError {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{Field: "body", Message: err.Error()}}
	}

	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fieldPath(fe),
			Message: message(fe),
			Value:   valueOf(fe),
		})
	}
	return out
}

// fieldPath drops the struct name prefix: RecipeInput.steps[2] -> steps[2]
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required", "notblank":
		return field + " is required"
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must have at most %s entries", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must have at least %s entries", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "category":
		return "invalid category, must be one of: KOREAN, JAPANESE, CHINESE, WESTERN"
	case "difficulty":
		return "invalid difficulty, must be one of: 쉬움, 보통, 어려움"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func valueOf(fe validator.FieldError) interface{} {
	switch fe.Kind() {
	case reflect.Slice, reflect.Map, reflect.Struct, reflect.Ptr:
		return nil
	}
	if s, ok := fe.Value().(string); ok && s == "" {
		return nil
	}
	return fe.Value()
}
