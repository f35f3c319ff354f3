// Package api embeds the shop engine HTTP contract.
package api

import (
	_ "embed"
)

// OpenAPISpec is the OpenAPI 3 document served and enforced by cmd/api
//
//go:embed openapi.yaml
var OpenAPISpec []byte
