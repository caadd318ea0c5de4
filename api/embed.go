// Package api holds the HTTP contract of the status page.
package api

import _ "embed"

// OpenAPI is the OpenAPI 3 document served at /api/openapi.yaml.
//
//go:embed openapi/openapi.yaml
var OpenAPI []byte
