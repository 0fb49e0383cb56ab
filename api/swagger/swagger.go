package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Campus Records API",
        "description": "Credential, academic record, and billing services for campus administration",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Identity registration and sessions"},
        {"name": "Courses", "description": "Course catalog management"},
        {"name": "Enrollments", "description": "Enrollment, drops, and grading"},
        {"name": "Students", "description": "Transcripts and exports"},
        {"name": "Billing", "description": "Tuition balances and payments"}
    ],
    "paths": {
        "/auth/register": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register identity",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error"},
                    "409": {"description": "Email already registered"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate identity",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid id or password"},
                    "429": {"description": "Locked out"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid refresh token"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Logout current session",
                "responses": {
                    "204": {"description": "No content"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/auth/change-password": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Change password",
                "responses": {
                    "204": {"description": "No content"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/identities/{id}/role": {
            "put": {
                "tags": ["Identities"],
                "summary": "Reassign identity role",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SetRoleRequest"}}
                ],
                "responses": {
                    "204": {"description": "No content"},
                    "403": {"description": "Admin role required"},
                    "404": {"description": "Identity not found"}
                }
            }
        },
        "/identities/{id}": {
            "delete": {
                "tags": ["Identities"],
                "summary": "Deactivate identity",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No content"},
                    "403": {"description": "Admin role required"},
                    "404": {"description": "Identity not found"}
                }
            }
        },
        "/courses": {
            "get": {
                "tags": ["Courses"],
                "summary": "List courses",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Courses"],
                "summary": "Create course",
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Course code already exists"}
                }
            }
        },
        "/courses/{code}": {
            "delete": {
                "tags": ["Courses"],
                "summary": "Delete course",
                "parameters": [
                    {"name": "code", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No content"},
                    "404": {"description": "Course not found"},
                    "409": {"description": "Course has active enrollments"}
                }
            }
        },
        "/enrollments": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Enroll in course",
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Already enrolled"},
                    "422": {"description": "Credit hour limit exceeded"}
                }
            },
            "delete": {
                "tags": ["Enrollments"],
                "summary": "Drop course",
                "responses": {
                    "204": {"description": "No content"},
                    "404": {"description": "Not enrolled"}
                }
            }
        },
        "/enrollments/{id}/grade": {
            "put": {
                "tags": ["Enrollments"],
                "summary": "Assign grade",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Unrecognized grade"},
                    "404": {"description": "Enrollment not found"}
                }
            }
        },
        "/students/{studentID}/transcript": {
            "get": {
                "tags": ["Students"],
                "summary": "Get transcript",
                "parameters": [
                    {"name": "studentID", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Student not found"}
                }
            }
        },
        "/students/{studentID}/transcript/export": {
            "get": {
                "tags": ["Students"],
                "summary": "Export transcript as CSV or PDF",
                "parameters": [
                    {"name": "studentID", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "400": {"description": "Unsupported format"}
                }
            }
        },
        "/students/{studentID}/balance": {
            "get": {
                "tags": ["Billing"],
                "summary": "Get balance",
                "parameters": [
                    {"name": "studentID", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{studentID}/payments": {
            "get": {
                "tags": ["Billing"],
                "summary": "Payment history",
                "parameters": [
                    {"name": "studentID", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Billing"],
                "summary": "Record payment",
                "parameters": [
                    {"name": "studentID", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "422": {"description": "Payment exceeds outstanding balance"}
                }
            }
        }
    },
    "definitions": {
        "RegisterRequest": {
            "type": "object",
            "properties": {
                "full_name": {"type": "string"},
                "email": {"type": "string"},
                "password": {"type": "string"},
                "role": {"type": "string", "enum": ["STUDENT", "INSTRUCTOR"]}
            }
        },
        "LoginRequest": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "SetRoleRequest": {
            "type": "object",
            "properties": {
                "role": {"type": "string", "enum": ["STUDENT", "INSTRUCTOR", "ADMIN"]}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
