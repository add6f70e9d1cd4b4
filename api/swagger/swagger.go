package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Tuition Core API",
        "description": "Back-office core for the tuition platform",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Enrollments", "description": "Enrollment lifecycle and access control"},
        {"name": "Groups", "description": "Center groups and membership transfers"},
        {"name": "Notifications", "description": "Audience resolution and dispatch"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List enrollments",
                "parameters": [
                    {"name": "userId", "in": "query", "type": "string"},
                    {"name": "courseId", "in": "query", "type": "string"},
                    {"name": "scope", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Enrollments"],
                "summary": "Grant an enrollment",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GrantEnrollmentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/self": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Self-enroll into free content",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SelfEnrollRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/bulk": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Grant an enrollment to multiple students",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkGrantRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Get enrollment detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}/activate": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Activate a pending or suspended enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}/suspend": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Suspend an active enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SuspendEnrollmentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}/terminate": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Terminate an enrollment and freeze its activity summary",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}/reactivate": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Reactivate an expired enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}/summary": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Get the frozen activity summary",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}/summary/export": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Download the frozen activity summary as PDF",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF document"}
                }
            }
        },
        "/groups": {
            "get": {
                "tags": ["Groups"],
                "summary": "List active center groups",
                "parameters": [
                    {"name": "grade", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/groups/{id}/members": {
            "get": {
                "tags": ["Groups"],
                "summary": "List group members",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "includeInactive", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/groups/transfers": {
            "post": {
                "tags": ["Groups"],
                "summary": "Move a student to another center group",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TransferGroupRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/transfers": {
            "get": {
                "tags": ["Groups"],
                "summary": "List a student's transfer history",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List sent notifications",
                "parameters": [
                    {"name": "senderId", "in": "query", "type": "string"},
                    {"name": "targetType", "in": "query", "type": "string"},
                    {"name": "courseId", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Notifications"],
                "summary": "Dispatch a notification",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DispatchRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notifications/resolve": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Preview the audience a target spec resolves to",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TargetSpec"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notifications/resolve/export": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Download the resolved audience as CSV",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TargetSpec"}}
                ],
                "responses": {
                    "200": {"description": "CSV document"}
                }
            }
        }
    },
    "definitions": {
        "GrantEnrollmentRequest": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"},
                "scope": {"type": "string", "enum": ["COURSE", "CHAPTER"]},
                "scope_id": {"type": "string"}
            },
            "required": ["user_id", "scope", "scope_id"]
        },
        "SelfEnrollRequest": {
            "type": "object",
            "properties": {
                "scope": {"type": "string", "enum": ["COURSE", "CHAPTER"]},
                "scope_id": {"type": "string"}
            },
            "required": ["scope", "scope_id"]
        },
        "BulkGrantRequest": {
            "type": "object",
            "properties": {
                "user_ids": {"type": "array", "items": {"type": "string"}},
                "scope": {"type": "string", "enum": ["COURSE", "CHAPTER"]},
                "scope_id": {"type": "string"}
            },
            "required": ["user_ids", "scope", "scope_id"]
        },
        "SuspendEnrollmentRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            },
            "required": ["reason"]
        },
        "TransferGroupRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "from_group_id": {"type": "string"},
                "to_group_id": {"type": "string"},
                "reason": {"type": "string"}
            },
            "required": ["student_id", "to_group_id"]
        },
        "TargetSpec": {
            "type": "object",
            "properties": {
                "type": {"type": "string", "enum": ["ALL", "COURSE", "LESSON", "GRADE", "ATTENDANCE_MODE", "EXPLICIT", "NOT_ENROLLED", "CUSTOM_FILTER"]},
                "course_id": {"type": "string"},
                "lesson_id": {"type": "string"},
                "grade": {"type": "string"},
                "attendance_mode": {"type": "string"},
                "user_ids": {"type": "array", "items": {"type": "string"}},
                "filter": {"$ref": "#/definitions/CustomFilter"},
                "search": {"type": "string"}
            },
            "required": ["type"]
        },
        "CustomFilter": {
            "type": "object",
            "properties": {
                "exam_id": {"type": "string"},
                "condition": {"type": "string", "enum": ["NOT_TAKEN", "BELOW_SCORE", "ABOVE_SCORE"]},
                "threshold": {"type": "number"}
            },
            "required": ["exam_id", "condition"]
        },
        "DispatchRequest": {
            "type": "object",
            "properties": {
                "type": {"type": "string"},
                "title": {"type": "string"},
                "message": {"type": "string"},
                "title_alt": {"type": "string"},
                "message_alt": {"type": "string"},
                "target": {"$ref": "#/definitions/TargetSpec"},
                "send_email": {"type": "boolean"}
            },
            "required": ["type", "title", "message", "target"]
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
