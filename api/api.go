// Package api embeds the Conversation Store OpenAPI document.
package api

import _ "embed"

//go:embed openapi.yaml
var OpenAPI []byte
