// Package mfa registers the OpenAPI document served under /swagger/.
// Regenerate with: swag init -g internal/mfa/http/router.go -o api/mfa
package mfa

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "AussieBroadWAN Team",
            "url": "https://github.com/aussiebroadwan/mfagate"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/livez": {"get": {"tags": ["Health"], "summary": "Liveness probe", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/mfasdk.HealthResponse"}}}}},
        "/.well-known/jwks.json": {"get": {"tags": ["Well-known"], "summary": "Token verification keys", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/mfasdk.JWKSResponse"}}}}},
        "/readyz": {"get": {"tags": ["Health"], "summary": "Readiness probe", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/mfasdk.HealthResponse"}}, "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/mfasdk.HealthResponse"}}}}},
        "/v1/bootstrap": {"post": {"tags": ["Bootstrap"], "summary": "Bootstrap local users", "parameters": [{"type": "string", "name": "X-Bootstrap-Token", "in": "header", "required": true}, {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/mfasdk.BootstrapRequest"}}], "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/mfasdk.BootstrapResponse"}}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}, "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}}}},
        "/v1/login": {"post": {"tags": ["Login"], "summary": "Password login", "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/mfasdk.LoginRequest"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/mfasdk.LoginResponse"}}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}}}},
        "/v1/first-login/{user_id}": {"get": {"tags": ["First login"], "summary": "First login state", "parameters": [{"type": "string", "name": "user_id", "in": "path", "required": true}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/mfasdk.FirstLoginStateResponse"}}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}}}},
        "/v1/first-login/password": {"post": {"tags": ["First login"], "summary": "Replace a temporary password", "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/mfasdk.ChangePasswordRequest"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/mfasdk.PasswordChangeResponse"}}, "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}}}},
        "/v1/first-login/mfa": {"post": {"security": [{"BearerAuth": []}], "tags": ["First login"], "summary": "Answer the MFA offer", "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/mfasdk.SetupMFARequest"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/mfasdk.SetupMFAResponse"}}}}},
        "/v1/mfa/totp/enroll": {"post": {"security": [{"BearerAuth": []}], "tags": ["MFA"], "summary": "Start TOTP enrollment", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/mfasdk.EnrollResponse"}}, "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}, "423": {"description": "Locked", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}}}},
        "/v1/mfa/totp/confirm": {"post": {"security": [{"BearerAuth": []}], "tags": ["MFA"], "summary": "Confirm TOTP enrollment", "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/mfasdk.CodeRequest"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/mfasdk.ConfirmResponse"}}, "410": {"description": "Gone", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}}}},
        "/v1/mfa/totp/verify": {"post": {"security": [{"BearerAuth": []}], "tags": ["MFA"], "summary": "Complete login with TOTP", "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/mfasdk.CodeRequest"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/mfasdk.TokenResponse"}}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}, "423": {"description": "Locked", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}}}},
        "/v1/mfa/totp": {"delete": {"security": [{"BearerAuth": []}], "tags": ["MFA"], "summary": "Disable MFA", "responses": {"204": {"description": "No Content"}}}},
        "/v1/mfa/backup-codes": {"post": {"security": [{"BearerAuth": []}], "tags": ["MFA"], "summary": "Regenerate backup codes", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/mfasdk.BackupCodesResponse"}}}}},
        "/v1/mfa/backup-codes/consume": {"post": {"security": [{"BearerAuth": []}], "tags": ["MFA"], "summary": "Complete login with a backup code", "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/mfasdk.BackupCodeRequest"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/mfasdk.BackupCodeLoginResponse"}}}}},
        "/v1/mfa/status": {"get": {"security": [{"BearerAuth": []}], "tags": ["MFA"], "summary": "MFA status of the caller", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/mfasdk.StatusResponse"}}}}},
        "/v1/admin/mfa/stats": {"get": {"security": [{"BearerAuth": []}], "tags": ["Admin"], "summary": "MFA statistics", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/mfasdk.StatsResponse"}}}}},
        "/v1/admin/mfa/users/{id}": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Admin"], "summary": "MFA status of a user", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/mfasdk.StatusResponse"}}}},
            "delete": {"security": [{"BearerAuth": []}], "tags": ["Admin"], "summary": "Disable MFA for a user", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"204": {"description": "No Content"}}}
        },
        "/v1/admin/mfa/users/{id}/unlock": {"post": {"security": [{"BearerAuth": []}], "tags": ["Admin"], "summary": "Unlock MFA", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"204": {"description": "No Content"}, "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}}}}
    },
    "definitions": {
        "mfasdk.ErrorResponse": {"type": "object", "properties": {"error": {"type": "string"}, "error_description": {"type": "string"}}},
        "mfasdk.JWKSResponse": {"type": "object", "properties": {"keys": {"type": "array", "items": {"type": "object", "properties": {"kty": {"type": "string"}, "use": {"type": "string"}, "alg": {"type": "string"}, "kid": {"type": "string"}, "crv": {"type": "string"}, "x": {"type": "string"}}}}}},
        "mfasdk.HealthResponse": {"type": "object", "properties": {"status": {"type": "string"}, "uptime": {"type": "string"}, "version": {"type": "string"}, "checks": {"type": "object"}}},
        "mfasdk.BootstrapRequest": {"type": "object", "properties": {"users": {"type": "array", "items": {"type": "object"}}}},
        "mfasdk.BootstrapResponse": {"type": "object", "properties": {"user_ids": {"type": "array", "items": {"type": "string"}}}},
        "mfasdk.LoginRequest": {"type": "object", "properties": {"user_id": {"type": "string"}, "password": {"type": "string"}}},
        "mfasdk.LoginResponse": {"type": "object", "properties": {"password_change_required": {"type": "boolean"}, "requires_mfa": {"type": "boolean"}, "token": {"$ref": "#/definitions/mfasdk.TokenResponse"}}},
        "mfasdk.TokenResponse": {"type": "object", "properties": {"access_token": {"type": "string"}, "token_type": {"type": "string"}, "purpose": {"type": "string"}, "expires_in": {"type": "integer"}, "session_id": {"type": "string"}}},
        "mfasdk.FirstLoginStateResponse": {"type": "object", "properties": {"user_id": {"type": "string"}, "is_first_login": {"type": "boolean"}, "mfa_enabled": {"type": "boolean"}, "next_step": {"type": "string"}}},
        "mfasdk.ChangePasswordRequest": {"type": "object", "properties": {"user_id": {"type": "string"}, "current_password": {"type": "string"}, "new_password": {"type": "string"}}},
        "mfasdk.PasswordChangeResponse": {"type": "object", "properties": {"requires_mfa": {"type": "boolean"}, "token": {"$ref": "#/definitions/mfasdk.TokenResponse"}}},
        "mfasdk.SetupMFARequest": {"type": "object", "properties": {"enable": {"type": "boolean"}, "label": {"type": "string"}}},
        "mfasdk.SetupMFAResponse": {"type": "object", "properties": {"enroll": {"$ref": "#/definitions/mfasdk.EnrollResponse"}, "token": {"$ref": "#/definitions/mfasdk.TokenResponse"}}},
        "mfasdk.EnrollResponse": {"type": "object", "properties": {"secret": {"type": "string"}, "provisioning_uri": {"type": "string"}, "qr_code": {"type": "string"}, "issuer": {"type": "string"}, "account": {"type": "string"}, "expires_at": {"type": "string"}}},
        "mfasdk.CodeRequest": {"type": "object", "properties": {"code": {"type": "string"}}},
        "mfasdk.BackupCodeRequest": {"type": "object", "properties": {"code": {"type": "string"}}},
        "mfasdk.ConfirmResponse": {"type": "object", "properties": {"activated": {"type": "boolean"}, "backup_codes": {"type": "array", "items": {"type": "string"}}}},
        "mfasdk.BackupCodesResponse": {"type": "object", "properties": {"codes": {"type": "array", "items": {"type": "string"}}}},
        "mfasdk.BackupCodeLoginResponse": {"type": "object", "properties": {"token": {"$ref": "#/definitions/mfasdk.TokenResponse"}, "remaining": {"type": "integer"}}},
        "mfasdk.StatusResponse": {"type": "object", "properties": {"user_id": {"type": "string"}, "status": {"type": "string"}, "mfa_enabled": {"type": "boolean"}, "failed_attempts": {"type": "integer"}, "backup_codes_remaining": {"type": "integer"}, "backup_codes": {"type": "array", "items": {"type": "object", "properties": {"position": {"type": "integer"}, "used_at": {"type": "string"}}}}, "locked_at": {"type": "string"}}},
        "mfasdk.StatsResponse": {"type": "object", "properties": {"by_status": {"type": "object"}, "pending_activations": {"type": "integer"}, "verified_last_24h": {"type": "integer"}}}
    },
    "securityDefinitions": {
        "BearerAuth": {"description": "JWT session or step-up token. Format: \"Bearer {token}\".", "type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "MFA Gateway API",
	Description:      "TOTP enrollment, step-up verification, backup codes and first-login password replacement.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
