// Package api carries the OpenAPI document of the panel's HTTP surface.
package api

import _ "embed"

//go:embed openapi.yml
var OpenAPI []byte
