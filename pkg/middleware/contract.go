package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tabletop-shop/shop-engine/pkg/contracts/openapi"
	apperrors "github.com/tabletop-shop/shop-engine/pkg/errors"
)

// ContractValidation rejects API requests that do not satisfy the OpenAPI contract.
// Requests outside pathPrefix and undocumented routes pass through untouched.
func ContractValidation(validator *openapi.Validator, pathPrefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if validator == nil || !strings.HasPrefix(c.Request.URL.Path, pathPrefix) {
			c.Next()
			return
		}

		if err := validator.ValidateRequest(c.Request); err != nil {
			if errors.Is(err, openapi.ErrRouteNotDocumented) {
				c.Next()
				return
			}
			AbortWithAppError(c, apperrors.ErrValidation("request does not match the API contract").
				WithDetail("contract", err.Error()))
			return
		}

		c.Next()
	}
}
