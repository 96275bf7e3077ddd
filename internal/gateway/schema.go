package gateway

import "review-workers/internal/common/validation"

var inboundSchema = validation.MustCompile(`{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["business_id", "type"],
  "properties": {
    "business_id": {"type": "string", "minLength": 1, "maxLength": 128},
    "type":        {"type": "string", "minLength": 1, "maxLength": 64, "pattern": "^[a-z0-9_.-]+$"},
    "event_id":    {"type": "string", "maxLength": 256},
    "occurred_at": {"type": "string", "format": "date-time"},
    "review": {
      "type": "object",
      "required": ["platform_review_id"],
      "properties": {
        "platform":           {"type": "string", "maxLength": 64},
        "platform_review_id": {"type": "string", "minLength": 1, "maxLength": 256},
        "author":             {"type": "string", "maxLength": 256},
        "rating":             {"type": "integer", "minimum": 1, "maximum": 5},
        "body":               {"type": "string", "maxLength": 20000},
        "posted_at":          {"type": "string", "format": "date-time"}
      }
    },
    "data": {"type": "object"}
  }
}`)
