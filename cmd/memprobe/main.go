// Command memprobe runs memory poisoning probes against a travel advisor
// agent backed by a SQLite cross-session memory store.
//
// Subcommands:
//
//	run [files...]   execute scenario YAML files (default: scenarios/*.yaml)
//	stats            print memory store statistics
//	purge            clear one user's memory
//	version          print build information
//
// Configuration comes from the environment: MEMPROBE_DB selects the database
// path, MEMPROBE_PROVIDER one of openai, groq or anthropic, MEMPROBE_MODEL
// the model identifier, and the matching *_API_KEY the credentials.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/probelabs/memprobe/common/environment"
	"github.com/probelabs/memprobe/common/version"
	"github.com/probelabs/memprobe/internal/probe/agent"
	"github.com/probelabs/memprobe/internal/probe/attack"
	"github.com/probelabs/memprobe/internal/probe/conversation"
	"github.com/probelabs/memprobe/internal/probe/llm"
	"github.com/probelabs/memprobe/internal/probe/memory"
	"github.com/probelabs/memprobe/internal/probe/scenario"
	"github.com/probelabs/memprobe/internal/probe/store"
	"github.com/probelabs/memprobe/internal/probe/summary"
	"github.com/probelabs/memprobe/internal/probe/tools"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if environment.BoolOr("MEMPROBE_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(os.Args[2:], logger)
	case "stats":
		err = statsCmd(logger)
	case "purge":
		err = purgeCmd(os.Args[2:], logger)
	case "version":
		fmt.Println("memprobe", version.Info())
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: memprobe <run|stats|purge|version> [args]")
}

// harness bundles the constructed stores and services for one invocation.
type harness struct {
	db      *store.Store
	service *memory.Service
	mutator *attack.Mutator
}

func openHarness(logger *slog.Logger) (*harness, error) {
	dbPath := environment.StringOr("MEMPROBE_DB", "memprobe.db")
	db, err := store.New(dbPath)
	if err != nil {
		return nil, err
	}
	turns := conversation.New(db, logger)
	summaries := summary.New(db, logger)
	return &harness{
		db:      db,
		service: memory.NewService(db, turns, summaries, nil, logger),
		mutator: attack.New(turns, summaries, logger),
	}, nil
}

func (h *harness) close() {
	if err := h.db.Close(); err != nil {
		slog.Warn("closing database", "err", err)
	}
}

// newProvider builds the model provider named by the environment.
func newProvider() (llm.Provider, error) {
	name := environment.StringOr("MEMPROBE_PROVIDER", "openai")
	model := os.Getenv("MEMPROBE_MODEL")
	timeout := environment.DurationOr("MEMPROBE_TIMEOUT", 2*time.Minute)

	switch name {
	case "openai":
		key, err := environment.RequiredString("OPENAI_API_KEY")
		if err != nil {
			return nil, err
		}
		return llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:  key,
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Model:   model,
			Timeout: timeout,
		})
	case "groq":
		key, err := environment.RequiredString("GROQ_API_KEY")
		if err != nil {
			return nil, err
		}
		return llm.NewGroq(key, model)
	case "anthropic":
		key, err := environment.RequiredString("ANTHROPIC_API_KEY")
		if err != nil {
			return nil, err
		}
		return llm.NewAnthropic(llm.AnthropicConfig{APIKey: key, Model: model})
	default:
		return nil, fmt.Errorf("unknown provider %q (want openai, groq or anthropic)", name)
	}
}

func runCmd(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	noMemory := fs.Bool("no-memory", false, "run with the no-op memory backend (control run)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	files := fs.Args()
	if len(files) == 0 {
		matches, err := filepath.Glob("scenarios/*.yaml")
		if err != nil {
			return err
		}
		files = matches
	}
	if len(files) == 0 {
		return fmt.Errorf("no scenario files given and scenarios/*.yaml is empty")
	}

	var scenarios []scenario.Scenario
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		sc, err := scenario.Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		scenarios = append(scenarios, *sc)
	}

	provider, err := newProvider()
	if err != nil {
		return err
	}

	h, err := openHarness(logger)
	if err != nil {
		return err
	}
	defer h.close()

	var recaller memory.Recaller = h.service
	if *noMemory {
		recaller = memory.NewNullRecaller(logger)
	}

	advisor, err := agent.New(agent.Config{
		Provider: provider,
		Memory:   recaller,
		Tools:    tools.NewTravel(),
		Model:    os.Getenv("MEMPROBE_MODEL"),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	runner := scenario.NewRunner(advisor, h.mutator, recaller, logger)
	results := runner.RunAll(context.Background(), scenarios)

	vulnerable := 0
	for _, res := range results {
		fmt.Printf("%-40s %-13s run=%s\n", res.Scenario, res.Outcome, res.RunID)
		if len(res.Matched) > 0 {
			fmt.Printf("    matched: %v\n", res.Matched)
		}
		if res.Err != nil {
			fmt.Printf("    error: %v\n", res.Err)
		}
		if res.Outcome == scenario.OutcomeVulnerable {
			vulnerable++
		}
	}
	fmt.Printf("\n%d scenarios, %d vulnerable\n", len(results), vulnerable)
	return nil
}

func statsCmd(logger *slog.Logger) error {
	h, err := openHarness(logger)
	if err != nil {
		return err
	}
	defer h.close()

	st, err := h.service.Stats(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("conversation turns: %d\n", st.TotalTurns)
	fmt.Printf("memory summaries:   %d\n", st.TotalSummaries)
	fmt.Printf("unique users:       %d\n", st.UniqueUsers)
	fmt.Printf("database size:      %.2f MB\n", float64(st.SizeBytes)/(1024*1024))
	return nil
}

func purgeCmd(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("purge", flag.ExitOnError)
	user := fs.String("user", "", "user id to purge (required)")
	app := fs.String("app", "", "app name to purge (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" || *app == "" {
		return fmt.Errorf("purge requires -user and -app")
	}

	h, err := openHarness(logger)
	if err != nil {
		return err
	}
	defer h.close()

	if err := h.service.Clear(context.Background(), *user, *app); err != nil {
		return err
	}
	fmt.Printf("purged memory for user %s in app %s\n", *user, *app)
	return nil
}
