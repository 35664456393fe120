// Package docs registers the OpenAPI document served by the Swagger UI
// mount. Regenerate with `swag init -g cmd/server/main.go` after changing
// handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/appointments": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Appointments"],
                "summary": "List appointments",
                "operationId": "listAppointments",
                "parameters": [
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "page_size", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Appointments"],
                "summary": "Book an appointment",
                "operationId": "bookAppointment",
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad request"}}
            }
        },
        "/appointments/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Appointments"],
                "summary": "Fetch an appointment",
                "operationId": "getAppointment",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            }
        },
        "/appointments/{id}/status": {
            "put": {
                "consumes": ["application/json"],
                "tags": ["Appointments"],
                "summary": "Update appointment status",
                "operationId": "updateAppointmentStatus",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "Updated"}, "404": {"description": "Not found"}}
            }
        },
        "/appointments/{id}/messages": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Messages"],
                "summary": "List messages in an appointment",
                "operationId": "listMessages",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "page_size", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Messages"],
                "summary": "Send a message",
                "operationId": "sendMessage",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"},
                    {"type": "string", "name": "X-Sender", "in": "header"}
                ],
                "responses": {"201": {"description": "Confirmed message"}, "400": {"description": "Bad request"}, "404": {"description": "Not found"}}
            }
        },
        "/appointments/{id}/messages/{msgID}": {
            "delete": {
                "tags": ["Messages"],
                "summary": "Delete a message",
                "operationId": "deleteMessage",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "msgID", "in": "path", "required": true},
                    {"type": "string", "name": "X-Sender", "in": "header", "required": true}
                ],
                "responses": {"204": {"description": "Deleted"}, "404": {"description": "Not found"}}
            }
        },
        "/appointments/{id}/messages/search": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Messages"],
                "summary": "Search an appointment's conversation",
                "operationId": "searchMessages",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "q", "in": "query", "required": true},
                    {"type": "integer", "name": "k", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Hospital Chat API",
	Description:      "Real-time chat between patients and doctors, scoped to appointments.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
