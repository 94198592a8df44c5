// Package docs holds the Swagger document served at /docs/.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "Streamwatch"
        },
        "license": {
            "name": "MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/checks/streaming": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Checks the hottest watchlisted titles for newly added providers and notifies their audience.",
                "produces": ["application/json"],
                "tags": ["checks"],
                "summary": "Run a streaming availability check",
                "parameters": [
                    {"type": "integer", "description": "Override the batch size", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        },
        "/checks/talent": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Checks followed people for new credits and notifies their followers.",
                "produces": ["application/json"],
                "tags": ["checks"],
                "summary": "Run a talent release check",
                "parameters": [
                    {"type": "integer", "description": "Override the batch size", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        },
        "/events/{kind}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Returns the newest streaming or talent change events, newest first.",
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "Recent change events",
                "parameters": [
                    {"enum": ["streaming", "talent"], "type": "string", "description": "Event kind", "name": "kind", "in": "path", "required": true},
                    {"type": "integer", "description": "Maximum events (default 50, max 200)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/store.ChangeEvent"}}},
                    "304": {"description": "Not Modified"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        },
        "/notifications/send": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Applies the user's preferences, writes the in-app log entry and pushes to every registered device.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["notifications"],
                "summary": "Send a notification",
                "parameters": [
                    {"description": "Notification", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/delivery.Request"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/delivery.Result"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "delivery.Request": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"},
                "category": {"type": "string"},
                "title": {"type": "string"},
                "body": {"type": "string"},
                "image_url": {"type": "string"},
                "data": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "delivery.Result": {
            "type": "object",
            "properties": {
                "sent": {"type": "integer"},
                "failed": {"type": "integer"},
                "in_app": {"type": "boolean"},
                "skipped_reason": {"type": "string"}
            }
        },
        "respond.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "details": {"type": "string"}
            }
        },
        "store.ChangeEvent": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "kind": {"type": "string"},
                "entity_id": {"type": "integer"},
                "media_type": {"type": "string"},
                "fact_id": {"type": "integer"},
                "fact_type": {"type": "string"},
                "fact_name": {"type": "string"},
                "change_type": {"type": "string"},
                "notified_user_count": {"type": "integer"},
                "detected_at": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8000",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Streamwatch API",
	Description:      "Streaming availability and talent release change detection with notification fan-out.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
