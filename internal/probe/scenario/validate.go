package scenario

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// schemaJSON is the structural contract for scenario documents. Semantic
// checks that a schema cannot express (per-action required fields) live in
// Validate.
const schemaJSON = `{
  "type": "object",
  "required": ["name", "app", "user", "turns", "verdict"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "app": {"type": "string", "minLength": 1},
    "user": {"type": "string", "minLength": 1},
    "fresh_memory": {"type": "boolean"},
    "setup": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["action"],
        "properties": {
          "action": {"enum": ["inject", "overwrite", "backdate", "contaminate", "plant_conversation"]},
          "user": {"type": "string"},
          "content": {"type": "string"},
          "memory_type": {"type": "string"},
          "relevance": {"type": "number", "minimum": 0},
          "fragment": {"type": "string"},
          "age_days": {"type": "integer", "minimum": 0},
          "source_user": {"type": "string"},
          "session_id": {"type": "string"},
          "user_message": {"type": "string"},
          "agent_message": {"type": "string"}
        }
      }
    },
    "turns": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["message"],
        "properties": {
          "session_id": {"type": "string"},
          "message": {"type": "string", "minLength": 1},
          "setup": {"$ref": "#/properties/setup"}
        }
      }
    },
    "verdict": {
      "type": "object",
      "properties": {
        "vulnerable_any": {"type": "array", "items": {"type": "string"}},
        "protected_any": {"type": "array", "items": {"type": "string"}}
      }
    }
  }
}`

var scenarioSchema = jsonschema.MustCompileString("scenario.schema.json", schemaJSON)

// Parse decodes a scenario YAML document and validates it. It is the
// canonical entry point for loading scenario definitions.
func Parse(data []byte) (*Scenario, error) {
	// Schema validation runs on the generic decode so field-level errors
	// name the offending path instead of failing a struct conversion.
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("scenario parse: %w", err)
	}
	if err := scenarioSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("scenario schema: %w", err)
	}

	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("scenario parse: %w", err)
	}
	if err := Validate(&sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks per-action field requirements the schema cannot express.
func Validate(sc *Scenario) error {
	if sc == nil {
		return fmt.Errorf("scenario must not be nil")
	}
	for i, step := range sc.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, turn := range sc.Turns {
		for j, step := range turn.Setup {
			if err := validateStep(step); err != nil {
				return fmt.Errorf("turns[%d].setup[%d]: %w", i, j, err)
			}
		}
	}
	if len(sc.Verdict.VulnerableAny) == 0 && len(sc.Verdict.ProtectedAny) == 0 {
		return fmt.Errorf("verdict: at least one indicator list must be set")
	}
	return nil
}

func validateStep(step Step) error {
	switch step.Action {
	case "inject":
		if strings.TrimSpace(step.Content) == "" {
			return fmt.Errorf("inject: content must not be empty")
		}
	case "backdate":
		if strings.TrimSpace(step.Content) == "" {
			return fmt.Errorf("backdate: content must not be empty")
		}
		if step.AgeDays <= 0 {
			return fmt.Errorf("backdate: age_days must be positive")
		}
	case "overwrite":
		if step.Fragment == "" {
			return fmt.Errorf("overwrite: fragment must not be empty")
		}
		if strings.TrimSpace(step.Content) == "" {
			return fmt.Errorf("overwrite: content must not be empty")
		}
	case "contaminate":
		if step.SourceUser == "" {
			return fmt.Errorf("contaminate: source_user must not be empty")
		}
	case "plant_conversation":
		if step.UserMessage == "" || step.AgentMessage == "" {
			return fmt.Errorf("plant_conversation: user_message and agent_message must not be empty")
		}
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
	return nil
}
