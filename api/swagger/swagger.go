package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Incoming Product Verification API",
        "description": "Priority queue, step verification and warehouse location assignment for incoming shipments",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Queue", "description": "Incoming shipment verification queue"},
        {"name": "Verification", "description": "Step state machine execution"},
        {"name": "Assignment", "description": "Warehouse location assignment engine"},
        {"name": "Warehouse", "description": "Topology registry and availability"}
    ],
    "paths": {
        "/queue": {
            "get": {
                "tags": ["Queue"],
                "summary": "List queue items ordered by deadline",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "description": "Comma separated statuses"},
                    {"name": "priority", "in": "query", "type": "string"},
                    {"name": "assigned_to", "in": "query", "type": "string"},
                    {"name": "vendor_id", "in": "query", "type": "string"},
                    {"name": "overdue_only", "in": "query", "type": "boolean"},
                    {"name": "delayed_only", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Queue"],
                "summary": "Register an incoming shipment on the verification queue",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateQueueItemRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/queue/stats": {
            "get": {
                "tags": ["Queue"],
                "summary": "Aggregate queue statistics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/queue/export": {
            "get": {
                "tags": ["Queue"],
                "summary": "Export the filtered queue as CSV",
                "produces": ["text/csv"],
                "responses": {
                    "200": {"description": "CSV payload"}
                }
            }
        },
        "/queue/{id}": {
            "get": {
                "tags": ["Queue"],
                "summary": "Get one queue item with step history and derived fields",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "patch": {
                "tags": ["Queue"],
                "summary": "Patch non-workflow fields of a queue item",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateQueueItemRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Stale or terminal item", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/queue/{id}/assign": {
            "post": {
                "tags": ["Queue"],
                "summary": "Claim a pending queue item for an administrator",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AssignQueueItemRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/queue/{id}/workflow": {
            "get": {
                "tags": ["Verification"],
                "summary": "Current state machine view of one item",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/queue/{id}/steps/{step}": {
            "post": {
                "tags": ["Verification"],
                "summary": "Execute the item's current verification step",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "step", "in": "path", "required": true, "type": "string"},
                    {"name": "Idempotency-Key", "in": "header", "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExecuteStepRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Wrong step, stale item or terminal state", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/queue/{id}/quality-check": {
            "post": {
                "tags": ["Verification"],
                "summary": "Submit the quality assessment checklist",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "Idempotency-Key", "in": "header", "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/QualityCheckRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/queue/{id}/hold": {
            "post": {
                "tags": ["Verification"],
                "summary": "Put an active item on hold",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/queue/{id}/resume": {
            "post": {
                "tags": ["Verification"],
                "summary": "Resume an on-hold item",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/queue/{id}/reject": {
            "post": {
                "tags": ["Verification"],
                "summary": "Reject an item from any non-terminal state",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RejectRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/queue/{id}/complete": {
            "post": {
                "tags": ["Verification"],
                "summary": "Finish final approval, optionally returning a putaway slip PDF",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "Idempotency-Key", "in": "header", "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CompleteRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK or PDF attachment", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/queue/{id}/slip": {
            "get": {
                "tags": ["Verification"],
                "summary": "Download an archived putaway slip with a signed token",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF payload"},
                    "403": {"description": "Invalid or mismatched token"}
                }
            }
        },
        "/queue/{id}/location/auto": {
            "post": {
                "tags": ["Assignment"],
                "summary": "Automatically assign the best warehouse location",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "No capacity, manual assignment required", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/queue/{id}/location/manual": {
            "post": {
                "tags": ["Assignment"],
                "summary": "Assign an explicit warehouse location",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ManualAssignRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Unknown location", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/queue/{id}/location/suggestions": {
            "get": {
                "tags": ["Assignment"],
                "summary": "Top scored location candidates for manual assignment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/warehouse/availability": {
            "get": {
                "tags": ["Warehouse"],
                "summary": "Warehouse-wide capacity and utilization",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/warehouse/locations": {
            "get": {
                "tags": ["Warehouse"],
                "summary": "List registered warehouse locations",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Warehouse"],
                "summary": "Register a new warehouse location",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterLocationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Requires admin or supervisor role"}
                }
            }
        }
    },
    "definitions": {
        "CreateQueueItemRequest": {
            "type": "object",
            "required": ["product_id", "vendor_id", "expected_arrival", "priority"],
            "properties": {
                "product_id": {"type": "string"},
                "vendor_id": {"type": "string"},
                "expected_arrival": {"type": "string", "format": "date-time"},
                "priority": {"type": "string", "enum": ["low", "normal", "high", "critical", "expedited"]},
                "deadline": {"type": "string", "format": "date-time"},
                "tracking_number": {"type": "string"},
                "carrier": {"type": "string"}
            }
        },
        "UpdateQueueItemRequest": {
            "type": "object",
            "properties": {
                "tracking_number": {"type": "string"},
                "carrier": {"type": "string"},
                "expected_arrival": {"type": "string", "format": "date-time"},
                "actual_arrival": {"type": "string", "format": "date-time"},
                "priority": {"type": "string"},
                "is_delayed": {"type": "boolean"},
                "delay_reason": {"type": "string"},
                "verification_notes": {"type": "string"}
            }
        },
        "AssignQueueItemRequest": {
            "type": "object",
            "required": ["assigned_to"],
            "properties": {
                "assigned_to": {"type": "string"}
            }
        },
        "ExecuteStepRequest": {
            "type": "object",
            "required": ["submission_key"],
            "properties": {
                "submission_key": {"type": "string"},
                "passed": {"type": "boolean"},
                "notes": {"type": "string"},
                "issues": {"type": "array", "items": {"type": "string"}},
                "metadata": {"type": "object"}
            }
        },
        "QualityCheckRequest": {
            "type": "object",
            "required": ["submission_key", "checklist"],
            "properties": {
                "submission_key": {"type": "string"},
                "checklist": {"type": "object"},
                "notes": {"type": "string"}
            }
        },
        "RejectRequest": {
            "type": "object",
            "required": ["reason", "notes"],
            "properties": {
                "reason": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "CompleteRequest": {
            "type": "object",
            "required": ["submission_key"],
            "properties": {
                "submission_key": {"type": "string"},
                "with_slip": {"type": "boolean"},
                "notes": {"type": "string"}
            }
        },
        "ManualAssignRequest": {
            "type": "object",
            "required": ["zone", "shelf", "position"],
            "properties": {
                "zone": {"type": "string"},
                "shelf": {"type": "string"},
                "position": {"type": "string"}
            }
        },
        "RegisterLocationRequest": {
            "type": "object",
            "required": ["zone", "shelf", "position", "capacity"],
            "properties": {
                "zone": {"type": "string"},
                "shelf": {"type": "string"},
                "position": {"type": "string"},
                "capacity": {"type": "integer"},
                "category": {"type": "string"},
                "distance_to_entry": {"type": "number"}
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
