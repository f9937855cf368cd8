package app

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const ingestSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["job_no"],
  "properties": {
    "job_no": {"type": "string", "minLength": 1},
    "subject": {"type": ["string", "null"]},
    "snippet": {"type": ["string", "null"]},
    "gmail_link": {"type": ["string", "null"]},
    "source": {"type": ["string", "null"]}
  }
}`

var ingestSchema = jsonschema.MustCompileString("ingest.json", ingestSchemaJSON)

// validateIngestBody checks a raw ingest body before it is decoded.
func validateIngestBody(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ValidationError("invalid JSON body")
	}
	err := ingestSchema.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	return ValidationError(schemaMessage(ve, doc))
}

func schemaMessage(ve *jsonschema.ValidationError, doc any) string {
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	field := strings.TrimPrefix(leaf.InstanceLocation, "/")
	switch {
	case strings.HasSuffix(leaf.KeywordLocation, "/required"):
		return "job_no required"
	case field == "job_no" && strings.HasSuffix(leaf.KeywordLocation, "/minLength"):
		return "job_no required"
	case field == "job_no":
		if body, ok := doc.(map[string]any); ok && body["job_no"] == nil {
			return "job_no required"
		}
		return "job_no must be a string"
	case field == "":
		return "request body must be a JSON object"
	default:
		return field + " must be a string or null"
	}
}
