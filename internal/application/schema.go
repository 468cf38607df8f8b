// internal/application/schema.go
package application

const createRequestSchemaName = "create-application"

const createRequestSchema = `{
  "type": "object",
  "required": ["projectId", "freelancerId"],
  "properties": {
    "projectId": {"type": "integer", "minimum": 1},
    "freelancerId": {"type": "integer", "minimum": 1},
    "message": {"type": "string", "maxLength": 1000}
  }
}`
