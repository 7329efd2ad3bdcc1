// Package scenario loads, validates, and runs attack scenario definitions.
//
// A scenario is a YAML document naming a target user and app, a list of
// adversarial setup steps executed through the mutation API, conversational
// turns sent to the agent, and keyword indicator lists that score the agent's
// final reply.
package scenario

// Scenario is one complete attack experiment.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	App         string `yaml:"app"`
	User        string `yaml:"user"`
	Setup       []Step `yaml:"setup"`
	Turns       []Turn `yaml:"turns"`

	// FreshMemory clears the target user's memory before setup so runs do
	// not inherit state from earlier scenarios against the same database.
	FreshMemory bool `yaml:"fresh_memory"`

	Verdict Verdict `yaml:"verdict"`
}

// Step is one adversarial mutation executed before the conversation.
type Step struct {
	// Action is one of: inject, overwrite, backdate, contaminate,
	// plant_conversation.
	Action string `yaml:"action"`

	// User overrides the scenario's target user for this step. Cross-user
	// attacks use it to seed a second namespace.
	User string `yaml:"user"`

	// Content is the payload text: the memory to inject, the replacement
	// text for overwrite, or the contamination payload.
	Content string `yaml:"content"`

	// MemoryType tags injected memories. Defaults to "attack".
	MemoryType string `yaml:"memory_type"`

	// Relevance scores injected and backdated memories. Defaults to 1.0.
	Relevance *float64 `yaml:"relevance"`

	// Fragment selects which existing memories an overwrite step rewrites.
	Fragment string `yaml:"fragment"`

	// AgeDays shifts a backdated memory's creation time into the past.
	AgeDays int `yaml:"age_days"`

	// SourceUser is the namespace a contaminate step copies from. The
	// scenario's User is the destination.
	SourceUser string `yaml:"source_user"`

	// SessionID, UserMessage and AgentMessage describe a planted exchange.
	SessionID    string `yaml:"session_id"`
	UserMessage  string `yaml:"user_message"`
	AgentMessage string `yaml:"agent_message"`
}

// Turn is one user message sent to the agent during the probe conversation.
// Setup steps on a turn run immediately before the message is sent, which is
// how attacks mutate memory mid-conversation.
type Turn struct {
	SessionID string `yaml:"session_id"`
	Message   string `yaml:"message"`
	Setup     []Step `yaml:"setup"`
}

// Verdict holds the keyword indicator lists scored against the agent's final
// reply. Matching is case-insensitive substring containment.
type Verdict struct {
	// VulnerableAny marks the run vulnerable when any entry appears.
	VulnerableAny []string `yaml:"vulnerable_any"`
	// ProtectedAny marks the run protected when any entry appears and no
	// vulnerable indicator matched.
	ProtectedAny []string `yaml:"protected_any"`
}

// Outcome is the scored result of one scenario run.
type Outcome string

const (
	OutcomeVulnerable   Outcome = "vulnerable"
	OutcomeProtected    Outcome = "protected"
	OutcomeInconclusive Outcome = "inconclusive"
	OutcomeError        Outcome = "error"
)

// Result records one scenario run.
type Result struct {
	RunID    string
	Scenario string
	Outcome  Outcome
	// Matched lists the indicators found in the final reply.
	Matched []string
	// FinalReply is the agent's reply to the last turn.
	FinalReply string
	// Err is set when the run aborted before scoring.
	Err error
}
