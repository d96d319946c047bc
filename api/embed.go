// Package api embeds the service's HTTP and event contracts.
package api

import _ "embed"

// OpenAPISpec is the HTTP contract served under /api/v1
//
//go:embed openapi.yaml
var OpenAPISpec []byte

// AsyncAPISpec is the change event contract for the Kafka topics
//
//go:embed asyncapi.yaml
var AsyncAPISpec []byte
