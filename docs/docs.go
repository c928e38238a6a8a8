// Package docs registers the OpenAPI description served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "schemes": {{ marshal .Schemes }},
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "paths": {
        "/events/{eventID}/pairings": {
            "post": {"summary": "Register a pairing", "tags": ["pairings"],
                "parameters": [{"name": "eventID", "in": "path", "required": true, "type": "integer"}],
                "responses": {"201": {"description": "Created"}, "403": {"description": "Registration closed"}, "422": {"description": "Validation failed"}}}
        },
        "/pairings/{pairingID}": {
            "get": {"summary": "Get a pairing", "tags": ["pairings"],
                "parameters": [{"name": "pairingID", "in": "path", "required": true, "type": "integer"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}
        },
        "/pairings/{pairingID}/claim": {
            "post": {"summary": "Accept a partner invite", "tags": ["pairings"],
                "responses": {"200": {"description": "OK"}, "401": {"description": "Invalid invite token"}, "409": {"description": "PAIRING_CONFLICT or slot taken"}}}
        },
        "/pairings/{pairingID}/payments": {
            "post": {"summary": "Record a slot payment", "tags": ["pairings"],
                "responses": {"200": {"description": "OK"}, "409": {"description": "PADREG_TERMINAL_STATUS or PAIRING_CONFLICT"}}}
        },
        "/pairings/{pairingID}/actions": {
            "post": {"summary": "Apply a lifecycle action", "tags": ["pairings"],
                "responses": {"200": {"description": "OK"}, "409": {"description": "INVALID_TRANSITION or PADREG_TERMINAL_STATUS"}}}
        },
        "/pairings/{pairingID}/guarantee": {
            "post": {"summary": "Apply a payment guarantee action", "tags": ["pairings"],
                "responses": {"200": {"description": "OK"}, "409": {"description": "INVALID_TRANSITION"}}}
        },
        "/pairings/{pairingID}/cancel": {
            "post": {"summary": "Cancel a pairing", "tags": ["pairings"],
                "responses": {"200": {"description": "OK"}, "409": {"description": "PADREG_TERMINAL_STATUS"}}}
        },
        "/events/{eventID}/brackets": {
            "post": {"summary": "Generate the bracket skeleton", "tags": ["brackets"],
                "responses": {"201": {"description": "Created"}, "409": {"description": "TOURNAMENT_ALREADY_STARTED"}, "422": {"description": "INVALID_BRACKET_SIZE or BRACKET_TOO_SMALL"}}}
        },
        "/events/{eventID}/matches": {
            "get": {"summary": "List matches of an event", "tags": ["brackets"],
                "responses": {"200": {"description": "OK"}}}
        },
        "/events/{eventID}/schedule": {
            "post": {"summary": "Auto-schedule unscheduled matches", "tags": ["schedule"],
                "responses": {"200": {"description": "Dry run plan"}, "201": {"description": "Committed"}, "409": {"description": "AGENDA_CONFLICT or MATCH_CONFLICT"}, "429": {"description": "RATE_LIMITED"}, "503": {"description": "MISSING_EXISTING_DATA"}}}
        },
        "/agenda/check": {
            "post": {"summary": "Evaluate a candidate against the court agenda", "tags": ["schedule"],
                "responses": {"200": {"description": "Decision"}}}
        },
        "/matches/{matchID}": {
            "get": {"summary": "Get a match", "tags": ["matches"],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}
        },
        "/matches/{matchID}/result": {
            "post": {"summary": "Record a result and advance the winner", "tags": ["matches"],
                "responses": {"200": {"description": "OK"}, "409": {"description": "MATCH_CONFLICT"}, "422": {"description": "Invalid score"}}}
        },
        "/matches/{matchID}/schedule": {
            "put": {"summary": "Move a match to another court or time", "tags": ["matches"],
                "responses": {"200": {"description": "OK"}, "409": {"description": "AGENDA_CONFLICT or MATCH_CONFLICT"}, "503": {"description": "MISSING_EXISTING_DATA"}}}
        },
        "/events/{eventID}/standings/{group}": {
            "get": {"summary": "Group standings", "tags": ["standings"],
                "responses": {"200": {"description": "OK"}}}
        },
        "/events/{eventID}/standings/{group}/rebuild": {
            "post": {"summary": "Recompute group standings", "tags": ["standings"],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Unknown group"}}}
        },
        "/matchmaking/rounds": {
            "post": {"summary": "Generate an americano round", "tags": ["matchmaking"],
                "responses": {"200": {"description": "OK"}, "422": {"description": "Validation failed"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Padel tournament engine API",
	Description:      "Pairings, brackets, scheduling and standings for padel events.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
