package middleware

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/errors"
)

var (
	validateOnce sync.Once
	enumMu       sync.RWMutex
	enumAccept   = map[string]func(string) bool{}
	enumHints    = map[string]string{}
)

// RegisterEnum declares a custom validation tag accepting exactly the given
// values. Must be called before InitValidator.
func RegisterEnum(tag string, values ...string) {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	RegisterEnumFunc(tag, strings.Join(values, ", "), func(s string) bool { return set[s] })
}

// RegisterEnumFunc declares a custom validation tag backed by a parser, for
// enums with more than one accepted spelling. hint is shown in errors.
func RegisterEnumFunc(tag, hint string, accept func(string) bool) {
	enumMu.Lock()
	defer enumMu.Unlock()

	enumAccept[tag] = accept
	enumHints[tag] = hint
}

func validateEnum(tag string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		enumMu.RLock()
		accept := enumAccept[tag]
		enumMu.RUnlock()
		return accept != nil && accept(fl.Field().String())
	}
}

func jsonTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}

// InitValidator registers custom validators on Gin's validator engine
func InitValidator() {
	validateOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		v.RegisterTagNameFunc(jsonTagName)
		_ = v.RegisterValidation("safe_string", validateSafeString)

		enumMu.RLock()
		defer enumMu.RUnlock()
		for tag := range enumAccept {
			_ = v.RegisterValidation(tag, validateEnum(tag))
		}
	})
}

func validateSafeString(fl validator.FieldLevel) bool {
	return !strings.ContainsRune(fl.Field().String(), 0)
}

// ValidationErrorFormatter formats validation errors into a map
func ValidationErrorFormatter(err error) map[string]string {
	fields := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			fields[e.Field()] = formatValidationError(e)
		}
	}

	return fields
}

func formatValidationError(e validator.FieldError) string {
	enumMu.RLock()
	hint, isEnum := enumHints[e.Tag()]
	enumMu.RUnlock()
	if isEnum {
		return "must be one of: " + hint
	}

	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	case "safe_string":
		return "contains invalid characters"
	default:
		return "is invalid"
	}
}

// BindAndValidate binds the JSON request body and validates it
func BindAndValidate(c *gin.Context, obj interface{}) *apperrors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return apperrors.ErrValidationWithFields("validation failed", ValidationErrorFormatter(validationErrors))
		}
		return apperrors.ErrValidation("invalid request body: " + err.Error())
	}
	return nil
}

// ContentType middleware ensures a JSON content type on requests with a body
func ContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == "POST" && c.Request.ContentLength > 0 {
			contentType := c.GetHeader("Content-Type")
			if !strings.HasPrefix(contentType, "application/json") {
				AbortWithAppError(c, apperrors.NewAppError(
					"INVALID_CONTENT_TYPE",
					"Content-Type must be application/json",
					415,
				))
				return
			}
		}
		c.Next()
	}
}
