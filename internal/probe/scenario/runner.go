package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/probelabs/memprobe/internal/probe/agent"
	"github.com/probelabs/memprobe/internal/probe/attack"
	"github.com/probelabs/memprobe/internal/probe/memory"
)

// Runner executes scenarios against an advisor backed by a mutable memory
// store.
type Runner struct {
	advisor *agent.Advisor
	mutator *attack.Mutator
	memory  memory.Recaller
	logger  *slog.Logger
	// now is swappable for tests.
	now func() time.Time
}

// NewRunner creates a Runner. If logger is nil, the default slog logger is
// used.
func NewRunner(advisor *agent.Advisor, mutator *attack.Mutator, mem memory.Recaller, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		advisor: advisor,
		mutator: mutator,
		memory:  mem,
		logger:  logger,
		now:     time.Now,
	}
}

// RunAll executes scenarios in order. A failed scenario produces an error
// Result and the run continues with the next one, so a flaky provider cannot
// mask the rest of the suite.
func (r *Runner) RunAll(ctx context.Context, scenarios []Scenario) []Result {
	results := make([]Result, 0, len(scenarios))
	for i := range scenarios {
		res := r.Run(ctx, &scenarios[i])
		if res.Err != nil {
			r.logger.Error("scenario failed",
				"scenario", res.Scenario,
				"run_id", res.RunID,
				"err", res.Err,
			)
		}
		results = append(results, res)
	}
	return results
}

// Run executes one scenario: optional memory reset, setup mutations, the
// probe conversation, then verdict scoring on the final reply.
func (r *Runner) Run(ctx context.Context, sc *Scenario) Result {
	res := Result{
		RunID:    uuid.NewString(),
		Scenario: sc.Name,
	}

	r.logger.Info("scenario: starting",
		"scenario", sc.Name,
		"run_id", res.RunID,
		"user", sc.User,
		"app", sc.App,
		"setup_steps", len(sc.Setup),
		"turns", len(sc.Turns),
	)

	if sc.FreshMemory {
		if err := r.memory.Clear(ctx, sc.User, sc.App); err != nil {
			res.Outcome = OutcomeError
			res.Err = fmt.Errorf("clear memory: %w", err)
			return res
		}
	}

	for i, step := range sc.Setup {
		if err := r.runStep(ctx, sc, step); err != nil {
			res.Outcome = OutcomeError
			res.Err = fmt.Errorf("setup[%d] (%s): %w", i, step.Action, err)
			return res
		}
	}

	var reply string
	for i, turn := range sc.Turns {
		for j, step := range turn.Setup {
			if err := r.runStep(ctx, sc, step); err != nil {
				res.Outcome = OutcomeError
				res.Err = fmt.Errorf("turns[%d].setup[%d] (%s): %w", i, j, step.Action, err)
				return res
			}
		}

		sessionID := turn.SessionID
		if sessionID == "" {
			sessionID = fmt.Sprintf("%s-turn-%d", res.RunID, i)
		}
		var err error
		reply, err = r.advisor.ProcessWithMemory(ctx, sc.User, sc.App, sessionID, turn.Message)
		if err != nil {
			res.Outcome = OutcomeError
			res.Err = fmt.Errorf("turn %d: %w", i, err)
			return res
		}
	}

	res.FinalReply = reply
	res.Outcome, res.Matched = Score(reply, sc.Verdict)

	r.logger.Info("scenario: finished",
		"scenario", sc.Name,
		"run_id", res.RunID,
		"outcome", string(res.Outcome),
		"matched", res.Matched,
	)
	return res
}

func (r *Runner) runStep(ctx context.Context, sc *Scenario, step Step) error {
	relevance := 1.0
	if step.Relevance != nil {
		relevance = *step.Relevance
	}
	user := step.User
	if user == "" {
		user = sc.User
	}

	switch step.Action {
	case "inject":
		memoryType := step.MemoryType
		if memoryType == "" {
			memoryType = "attack"
		}
		_, err := r.mutator.Inject(ctx, user, sc.App, step.Content, memoryType, relevance)
		return err

	case "overwrite":
		n, err := r.mutator.Overwrite(ctx, user, sc.App, step.Fragment, step.Content)
		if err != nil {
			return err
		}
		if n == 0 {
			r.logger.Warn("scenario: overwrite matched nothing",
				"scenario", sc.Name, "fragment", step.Fragment)
		}
		return nil

	case "backdate":
		fakeTime := r.now().UTC().AddDate(0, 0, -step.AgeDays)
		_, err := r.mutator.Backdate(ctx, user, sc.App, step.Content, fakeTime, relevance)
		return err

	case "contaminate":
		return r.mutator.Contaminate(ctx, step.SourceUser, user, sc.App, step.Content)

	case "plant_conversation":
		sessionID := step.SessionID
		if sessionID == "" {
			sessionID = "planted-" + uuid.NewString()
		}
		ts := r.now().UTC()
		if step.AgeDays > 0 {
			ts = ts.AddDate(0, 0, -step.AgeDays)
		}
		return r.mutator.PlantConversation(ctx, user, sc.App, sessionID, step.UserMessage, step.AgentMessage, ts)

	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
}
