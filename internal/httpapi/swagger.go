//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// swaggerSpec is registered with swag so http-swagger can serve doc.json.
var swaggerSpec = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "inferd API",
	Description:      "Hybrid local/cloud inference: classification, completion and idea rewriting.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  swaggerTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() { swag.Register(swaggerSpec.InstanceName(), swaggerSpec) }

// MountSwagger serves the Swagger UI under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

const swaggerTemplate = `{
  "schemes": {{ marshal .Schemes }},
  "swagger": "2.0",
  "info": {
    "description": "{{escape .Description}}",
    "title": "{{.Title}}",
    "version": "{{.Version}}"
  },
  "host": "{{.Host}}",
  "basePath": "{{.BasePath}}",
  "paths": {
    "/v1/classify": {"post": {"summary": "Classify text", "consumes": ["application/json"], "produces": ["application/json"],
      "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/types.ClassifyRequest"}}],
      "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ClassifyResponse"}}, "503": {"description": "No backend", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}}}},
    "/v1/complete": {"post": {"summary": "Raw completion", "consumes": ["application/json"], "produces": ["application/json"],
      "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/types.CompleteRequest"}}],
      "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.CompleteResponse"}}}}},
    "/v1/ideas/mutations": {"post": {"summary": "Generate idea mutations", "consumes": ["application/json"], "produces": ["application/json"],
      "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/types.MutationsRequest"}}],
      "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.MutationsResponse"}}}}},
    "/v1/ideas/expand": {"post": {"summary": "Expand an idea", "consumes": ["application/json"], "produces": ["application/json"],
      "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/types.IdeaRequest"}}],
      "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.IdeaResponse"}}}}},
    "/v1/ideas/reorganize": {"post": {"summary": "Reorganize an idea", "consumes": ["application/json"], "produces": ["application/json"],
      "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/types.IdeaRequest"}}],
      "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.IdeaResponse"}}}}},
    "/v1/warmup": {"post": {"summary": "Bring a backend up", "produces": ["application/json"],
      "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.WarmupResponse"}}}}},
    "/status": {"get": {"summary": "Service status", "produces": ["application/json"],
      "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}}}
  },
  "definitions": {
    "types.ClassifyRequest": {"type": "object", "properties": {"text": {"type": "string"}}},
    "types.ClassifyResponse": {"type": "object", "properties": {"category": {"type": "string"}, "tags": {"type": "array", "items": {"type": "string"}}, "confidence": {"type": "number"}, "provider": {"type": "string"}}},
    "types.CompleteRequest": {"type": "object", "properties": {"prompt": {"type": "string"}, "temperature": {"type": "number"}, "max_tokens": {"type": "integer"}, "stop": {"type": "array", "items": {"type": "string"}}}},
    "types.CompleteResponse": {"type": "object", "properties": {"content": {"type": "string"}, "provider": {"type": "string"}}},
    "types.MutationsRequest": {"type": "object", "properties": {"idea": {"type": "string"}, "count": {"type": "integer"}, "focus": {"type": "string"}}},
    "types.MutationsResponse": {"type": "object", "properties": {"mutations": {"type": "array", "items": {"type": "object"}}, "provider": {"type": "string"}}},
    "types.IdeaRequest": {"type": "object", "properties": {"idea": {"type": "string"}, "focus": {"type": "string"}}},
    "types.IdeaResponse": {"type": "object", "properties": {"text": {"type": "string"}, "provider": {"type": "string"}, "outline": {"type": "string"}, "headings": {"type": "array", "items": {"type": "object"}}, "diff": {"type": "object"}}},
    "types.WarmupResponse": {"type": "object", "properties": {"ready": {"type": "boolean"}, "local_state": {"type": "string"}, "error": {"type": "string"}}},
    "types.StatusResponse": {"type": "object"},
    "types.ErrorResponse": {"type": "object", "properties": {"error": {"type": "string"}, "code": {"type": "integer"}, "kind": {"type": "string"}}}
  }
}`
