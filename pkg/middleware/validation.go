package middleware

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/tabletop-shop/shop-engine/pkg/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

var (
	// "2pp 3gp 5sp", "15 gp", "0 gp"
	amountRegex = regexp.MustCompile(`^\s*\d+\s*(cp|sp|ep|gp|pp)(\s+\d+\s*(cp|sp|ep|gp|pp))*\s*$`)
	// "2d6", "1d4-1", "3"
	diceRegex       = regexp.MustCompile(`^\s*(\d+[dD]\d+(-\d+)?|\d+)\s*$`)
	safeStringRegex = regexp.MustCompile(`^[^\x00-\x1f]+$`)
)

var customValidators = map[string]validator.Func{
	"amount":      validateAmount,
	"dice":        validateDice,
	"safe_string": validateSafeString,
}

func jsonTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}

func register(v *validator.Validate) {
	for tag, fn := range customValidators {
		_ = v.RegisterValidation(tag, fn)
	}
	v.RegisterTagNameFunc(jsonTagName)
}

// InitValidator initializes the validator and registers the custom tags with gin's binding engine
func InitValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		register(validate)

		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			register(v)
		}
	})

	return validate
}

func validateAmount(fl validator.FieldLevel) bool {
	return amountRegex.MatchString(fl.Field().String())
}

func validateDice(fl validator.FieldLevel) bool {
	return diceRegex.MatchString(fl.Field().String())
}

func validateSafeString(fl validator.FieldLevel) bool {
	return safeStringRegex.MatchString(fl.Field().String())
}

// ValidationErrorFormatter formats validation errors into a field map
func ValidationErrorFormatter(err error) map[string]string {
	fields := make(map[string]string)

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrors {
			fields[e.Field()] = formatValidationError(e)
		}
	}

	return fields
}

func formatValidationError(e validator.FieldError) string {
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
	case "amount":
		return "must be a currency amount such as \"2pp 3gp 5sp\""
	case "dice":
		return "must be dice notation (NdM or NdM-K) or a whole number"
	case "safe_string":
		return "contains invalid characters"
	default:
		return "is invalid"
	}
}

// BindAndValidate binds the JSON body and validates it
func BindAndValidate(c *gin.Context, obj interface{}) *errors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return errors.ErrValidationWithFields("validation failed", ValidationErrorFormatter(validationErrors))
		}
		return errors.ErrBadRequest("invalid request body: " + err.Error())
	}
	return nil
}
