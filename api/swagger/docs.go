// Package swagger holds the OpenAPI document served at /swagger/*any.
// Regenerate with: swag init -g cmd/api/main.go -o api/swagger
package swagger

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
		"/api/login": {
			"post": {
				"tags": [
					"auth"
				],
				"summary": "Login user",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"description": "Payload",
						"name": "payload",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/service.LoginUserRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"401": {
						"description": "Unauthorized",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"consumes": [
					"application/json"
				]
			}
		},
		"/api/logout": {
			"post": {
				"tags": [
					"auth"
				],
				"summary": "Logout",
				"produces": [
					"application/json"
				],
				"parameters": [],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				}
			}
		},
		"/api/refresh-token": {
			"post": {
				"tags": [
					"auth"
				],
				"summary": "Refresh access token",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"description": "Refresh Token",
						"name": "payload",
						"in": "body",
						"schema": {
							"$ref": "#/definitions/service.RefreshTokenRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"401": {
						"description": "Unauthorized",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"consumes": [
					"application/json"
				]
			}
		},
		"/api/users": {
			"post": {
				"tags": [
					"users"
				],
				"summary": "Create a new user",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"description": "Payload",
						"name": "payload",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/service.CreateUserRequest"
						}
					}
				],
				"responses": {
					"201": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"403": {
						"description": "Forbidden",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"409": {
						"description": "Conflict",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"consumes": [
					"application/json"
				]
			}
		},
		"/api/products": {
			"get": {
				"tags": [
					"products"
				],
				"summary": "List products",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "integer",
						"description": "Page",
						"name": "page",
						"in": "query"
					},
					{
						"type": "integer",
						"description": "Page size",
						"name": "limit",
						"in": "query"
					},
					{
						"type": "string",
						"description": "Name contains",
						"name": "search",
						"in": "query"
					},
					{
						"type": "string",
						"description": "instock or outstock",
						"name": "status",
						"in": "query"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"post": {
				"tags": [
					"products"
				],
				"summary": "Submit a product",
				"produces": [
					"application/json"
				],
				"parameters": [],
				"responses": {
					"201": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"403": {
						"description": "Forbidden",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/api/products/{id}": {
			"get": {
				"tags": [
					"products"
				],
				"summary": "Get product",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "Product ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"put": {
				"tags": [
					"products"
				],
				"summary": "Submit a product update",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "Product ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"delete": {
				"tags": [
					"products"
				],
				"summary": "Submit a product deletion",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "Product ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/api/products/public/{id}": {
			"get": {
				"tags": [
					"public"
				],
				"summary": "Public product lookup",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "Product ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				}
			}
		},
		"/api/approvals": {
			"get": {
				"tags": [
					"approvals"
				],
				"summary": "List approval requests",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "pending, approved or rejected",
						"name": "status",
						"in": "query"
					},
					{
						"type": "integer",
						"description": "Page",
						"name": "page",
						"in": "query"
					},
					{
						"type": "integer",
						"description": "Page size",
						"name": "limit",
						"in": "query"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/api/approvals/pending": {
			"get": {
				"tags": [
					"approvals"
				],
				"summary": "List pending approval requests",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "integer",
						"description": "Page",
						"name": "page",
						"in": "query"
					},
					{
						"type": "integer",
						"description": "Page size",
						"name": "limit",
						"in": "query"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/api/approvals/stats": {
			"get": {
				"tags": [
					"approvals"
				],
				"summary": "Approval request counts",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "boolean",
						"description": "Only the caller's requests",
						"name": "mine",
						"in": "query"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/api/approvals/{id}": {
			"get": {
				"tags": [
					"approvals"
				],
				"summary": "Get approval request",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "Request ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"post": {
				"tags": [
					"approvals"
				],
				"summary": "Review approval request",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "Request ID",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"description": "Payload",
						"name": "payload",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/handler.ReviewRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"409": {
						"description": "Conflict",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"422": {
						"description": "Unprocessable Entity",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"consumes": [
					"application/json"
				]
			}
		},
		"/api/farms": {
			"get": {
				"tags": [
					"catalog"
				],
				"summary": "List farms",
				"produces": [
					"application/json"
				],
				"parameters": [],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"post": {
				"tags": [
					"catalog"
				],
				"summary": "Create farm",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"description": "Payload",
						"name": "payload",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/service.CreateFarmRequest"
						}
					}
				],
				"responses": {
					"201": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"consumes": [
					"application/json"
				]
			}
		},
		"/api/certifications": {
			"get": {
				"tags": [
					"catalog"
				],
				"summary": "List certifications",
				"produces": [
					"application/json"
				],
				"parameters": [],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"post": {
				"tags": [
					"catalog"
				],
				"summary": "Create certification",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"description": "Payload",
						"name": "payload",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/service.CreateCertificationRequest"
						}
					}
				],
				"responses": {
					"201": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"consumes": [
					"application/json"
				]
			}
		},
		"/api/audit-logs": {
			"get": {
				"tags": [
					"audit"
				],
				"summary": "Get audit logs",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "integer",
						"description": "Page",
						"name": "page",
						"in": "query"
					},
					{
						"type": "integer",
						"description": "Page size",
						"name": "limit",
						"in": "query"
					},
					{
						"type": "string",
						"description": "Action",
						"name": "action",
						"in": "query"
					},
					{
						"type": "string",
						"description": "Entity ID",
						"name": "entity_id",
						"in": "query"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		}
	},
	"definitions": {
		"response.Response": {
			"type": "object",
			"properties": {
				"status": {
					"type": "string"
				},
				"status_code": {
					"type": "integer"
				},
				"data": {
					"type": "object"
				},
				"error": {
					"type": "string"
				},
				"reason": {
					"type": "string"
				}
			}
		},
		"service.LoginUserRequest": {
			"type": "object",
			"properties": {
				"username": {
					"type": "string"
				},
				"password": {
					"type": "string"
				}
			},
			"required": [
				"username",
				"password"
			]
		},
		"service.RefreshTokenRequest": {
			"type": "object",
			"properties": {
				"refresh_token": {
					"type": "string"
				}
			},
			"required": [
				"refresh_token"
			]
		},
		"service.CreateUserRequest": {
			"type": "object",
			"properties": {
				"username": {
					"type": "string"
				},
				"email": {
					"type": "string"
				},
				"password": {
					"type": "string"
				},
				"role": {
					"type": "string"
				}
			},
			"required": [
				"username",
				"email",
				"password",
				"role"
			]
		},
		"service.CreateFarmRequest": {
			"type": "object",
			"properties": {
				"name": {
					"type": "string"
				},
				"address": {
					"type": "string"
				},
				"owner": {
					"type": "string"
				},
				"contact": {
					"type": "string"
				}
			},
			"required": [
				"name"
			]
		},
		"service.CreateCertificationRequest": {
			"type": "object",
			"properties": {
				"name": {
					"type": "string"
				},
				"description": {
					"type": "string"
				},
				"issuer": {
					"type": "string"
				}
			},
			"required": [
				"name"
			]
		},
		"handler.ReviewRequest": {
			"type": "object",
			"properties": {
				"status": {
					"type": "string"
				},
				"notes": {
					"type": "string"
				}
			},
			"required": [
				"status"
			]
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
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "FruitTrace Back Office API",
	Description:      "Product traceability catalog with a staff approval workflow.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
