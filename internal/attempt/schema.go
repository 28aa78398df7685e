package attempt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/abhisek/pathway/internal/apperr"
	"github.com/abhisek/pathway/internal/model"
)

var payloadSchemas = map[model.EventType]string{
	model.EventAnswer: `{
		"type": "object",
		"properties": {
			"event_type": {"const": "answer"},
			"question_id": {"type": "string"},
			"answer": {
				"oneOf": [
					{"type": "string", "minLength": 1},
					{"type": "number"},
					{"type": "boolean"}
				]
			},
			"content": {"type": "string"},
			"time_spent_seconds": {"type": "number", "minimum": 0},
			"competencies": {"type": "array", "items": {"type": "string", "minLength": 1}}
		},
		"required": ["event_type", "answer"],
		"additionalProperties": false
	}`,
	model.EventMessage: `{
		"type": "object",
		"properties": {
			"event_type": {"const": "message"},
			"content": {"type": "string", "minLength": 1},
			"time_spent_seconds": {"type": "number", "minimum": 0},
			"competencies": {"type": "array", "items": {"type": "string", "minLength": 1}}
		},
		"required": ["event_type", "content"],
		"additionalProperties": false
	}`,
	model.EventHint: `{
		"type": "object",
		"properties": {
			"event_type": {"const": "hint"},
			"question_id": {"type": "string"},
			"content": {"type": "string"},
			"time_spent_seconds": {"type": "number", "minimum": 0}
		},
		"required": ["event_type"],
		"additionalProperties": false
	}`,
}

var compiled = mustCompile()

func mustCompile() map[model.EventType]*jsonschema.Schema {
	c := jsonschema.NewCompiler()
	out := make(map[model.EventType]*jsonschema.Schema, len(payloadSchemas))
	for et, src := range payloadSchemas {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			panic(fmt.Sprintf("attempt: parse %s schema: %v", et, err))
		}
		url := "mem://attempt/" + string(et) + ".json"
		if err := c.AddResource(url, doc); err != nil {
			panic(fmt.Sprintf("attempt: add %s schema: %v", et, err))
		}
		sch, err := c.Compile(url)
		if err != nil {
			panic(fmt.Sprintf("attempt: compile %s schema: %v", et, err))
		}
		out[et] = sch
	}
	return out
}

// validate checks a submission against the schema of its event type.
func validate(sub Submission) error {
	sch, ok := compiled[sub.EventType]
	if !ok {
		return apperr.Validation("unknown event type %q", sub.EventType)
	}
	raw, err := json.Marshal(sub)
	if err != nil {
		return apperr.Wrap(apperr.CodeValidation, "encode submission", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return apperr.Wrap(apperr.CodeValidation, "decode submission", err)
	}
	if err := sch.Validate(doc); err != nil {
		return apperr.Wrap(apperr.CodeValidation, "invalid "+string(sub.EventType)+" payload", err)
	}
	return nil
}
