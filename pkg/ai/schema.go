package ai

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// scoringSchema constrains the scorer's JSON output before decoding. Models
// occasionally return prose or drop required keys; rejecting those early
// turns them into retryable provider failures instead of bad rows.
const scoringSchema = `{
  "type": "object",
  "required": ["steps", "feedback"],
  "properties": {
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["satisfied", "marksAwarded"],
        "properties": {
          "description": {"type": "string"},
          "satisfied": {"type": "boolean"},
          "marksAwarded": {"type": "number"},
          "feedback": {"type": "string"}
        }
      }
    },
    "feedback": {"type": "string"},
    "isFullyCorrect": {"type": "boolean"},
    "confidence": {"type": "number"},
    "keywordsMatched": {"type": "array", "items": {"type": "string"}},
    "keywordsMissing": {"type": "array", "items": {"type": "string"}},
    "strengths": {"type": "array", "items": {"type": "string"}}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func validateScoringPayload(content string) error {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("scoring.json", strings.NewReader(scoringSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("scoring.json")
	})
	if schemaErr != nil {
		return fmt.Errorf("compile scoring schema: %w", schemaErr)
	}

	var value interface{}
	if err := json.Unmarshal([]byte(content), &value); err != nil {
		return fmt.Errorf("scoring response is not valid json: %w", err)
	}

	if err := compiledSchema.Validate(value); err != nil {
		return fmt.Errorf("scoring response failed schema validation: %w", err)
	}

	return nil
}
