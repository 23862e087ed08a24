// Package docs registers the OpenAPI description served at /swagger/doc.json.
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
        "/employees/{employeeId}/awards": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Append a signed transaction to the employee's ledger and update the balance atomically",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["rewards"],
                "summary": "Award or deduct points",
                "parameters": [
                    {"type": "string", "description": "Employee ID", "name": "employeeId", "in": "path", "required": true},
                    {"description": "Award request", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.AwardRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.AwardResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/employees/{employeeId}/balance": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["rewards"],
                "summary": "Get balance",
                "parameters": [
                    {"type": "string", "description": "Employee ID", "name": "employeeId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.BalanceResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/employees/{employeeId}/transactions": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Newest first. Pass next_cursor back as cursor for the following page.",
                "produces": ["application/json"],
                "tags": ["rewards"],
                "summary": "Get transaction history",
                "parameters": [
                    {"type": "string", "description": "Employee ID", "name": "employeeId", "in": "path", "required": true},
                    {"type": "integer", "description": "Page size (default: 20, max: 100)", "name": "limit", "in": "query"},
                    {"type": "string", "description": "Cursor from a previous page", "name": "cursor", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/store.TransactionPage"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/transactions/recent": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["rewards"],
                "summary": "Get recent transactions",
                "parameters": [
                    {"type": "integer", "description": "Page size (default: 20, max: 100)", "name": "limit", "in": "query"},
                    {"type": "string", "description": "Cursor from a previous page", "name": "cursor", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/store.TransactionPage"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/leaderboard": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["rewards"],
                "summary": "Get leaderboard",
                "parameters": [
                    {"type": "integer", "description": "Number of standings (default: 10, max: 100)", "name": "n", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.LeaderboardResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.AwardRequest": {
            "type": "object",
            "properties": {
                "amount": {"description": "Signed points, negative for a deduction", "type": "integer", "example": 50},
                "reason": {"description": "Why the points were given", "type": "string", "example": "Great review"}
            }
        },
        "handlers.AwardResponse": {
            "type": "object",
            "properties": {
                "transaction": {"$ref": "#/definitions/models.Transaction"}
            }
        },
        "handlers.BalanceResponse": {
            "type": "object",
            "properties": {
                "employee_id": {"type": "string"},
                "balance": {"type": "integer"}
            }
        },
        "handlers.LeaderboardResponse": {
            "type": "object",
            "properties": {
                "standings": {"type": "array", "items": {"$ref": "#/definitions/models.Standing"}}
            }
        },
        "models.Employee": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "full_name": {"type": "string"},
                "role": {"type": "string", "enum": ["employee", "manager", "owner_manager"]},
                "is_active": {"type": "boolean"},
                "balance": {"type": "integer"},
                "balance_updated_at": {"type": "string"}
            }
        },
        "models.Standing": {
            "type": "object",
            "properties": {
                "rank": {"type": "integer"},
                "employee": {"$ref": "#/definitions/models.Employee"},
                "balance": {"type": "integer"}
            }
        },
        "models.Transaction": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "employee_id": {"type": "string"},
                "amount": {"type": "integer"},
                "reason": {"type": "string"},
                "awarded_by_id": {"type": "string"},
                "awarded_by_name": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "services.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "code": {"type": "string"},
                "details": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "store.TransactionPage": {
            "type": "object",
            "properties": {
                "transactions": {"type": "array", "items": {"$ref": "#/definitions/models.Transaction"}},
                "next_cursor": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "McLoone's Bucks Rewards API",
	Description:      "Rewards ledger and leaderboard for restaurant staff",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
