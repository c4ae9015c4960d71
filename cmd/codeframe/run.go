package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/frankbria/codeframe-sub011/internal/blocker"
	"github.com/frankbria/codeframe-sub011/internal/config"
	"github.com/frankbria/codeframe-sub011/internal/contextstore"
	"github.com/frankbria/codeframe-sub011/internal/events"
	"github.com/frankbria/codeframe-sub011/internal/git"
	"github.com/frankbria/codeframe-sub011/internal/graph"
	"github.com/frankbria/codeframe-sub011/internal/llm"
	"github.com/frankbria/codeframe-sub011/internal/orchestrator"
	"github.com/frankbria/codeframe-sub011/internal/session"
	"github.com/frankbria/codeframe-sub011/internal/state"
	"github.com/frankbria/codeframe-sub011/internal/testrun"
	"github.com/frankbria/codeframe-sub011/internal/worker"
	"github.com/frankbria/codeframe-sub011/pkg/models"
)

var (
	runTasksFile string
	runResume    bool
	runPlan      string
	runDryRun    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent team over a task graph",
	Long: `Load tasks, spawn the agent team, and execute until every task is
terminal or you interrupt with Ctrl-C. Interruption is graceful: in-flight
tasks return to the ready set and the session snapshot is saved for resume.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runTasksFile, "tasks", "t", "", "YAML file describing the task graph")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "Resume tasks from the previous session")
	runCmd.Flags().StringVar(&runPlan, "plan", "", "Short description of the overall plan")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Print the execution plan and exit without running agents")
}

// taskFile is the YAML shape of --tasks input.
type taskFile struct {
	Plan  string `yaml:"plan"`
	Tasks []struct {
		ID          string   `yaml:"id"`
		Title       string   `yaml:"title"`
		Description string   `yaml:"description"`
		AgentType   string   `yaml:"agent_type"`
		Priority    int      `yaml:"priority"`
		DependsOn   []string `yaml:"depends_on"`
	} `yaml:"tasks"`
}

func runRun(cmd *cobra.Command, args []string) error {
	if runTasksFile == "" && !runResume {
		return fmt.Errorf("either --tasks or --resume is required")
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	projectID := filepath.Base(cwd)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	debugLog := func(string, ...interface{}) {}
	if debugFlag {
		logger := log.New(os.Stderr, "", log.Ltime|log.Lmicroseconds)
		debugLog = logger.Printf
	}

	db, err := state.OpenProject(cwd)
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate state db: %w", err)
	}

	g := graph.New()
	g.SetDebugLog(debugLog)

	if runResume {
		if err := restoreTasks(g, db, projectID); err != nil {
			return err
		}
		if prev := session.NewManager(filepath.Join(cwd, ".codeframe"), debugLog).Load(); prev != nil {
			printResume(prev)
			if runPlan == "" {
				runPlan = prev.CurrentPlan
			}
		}
	}
	if runTasksFile != "" {
		plan, err := loadTaskFile(g, runTasksFile)
		if err != nil {
			return err
		}
		if runPlan == "" {
			runPlan = plan
		}
	}
	if g.Size() == 0 {
		return fmt.Errorf("no tasks to run")
	}

	if runDryRun {
		return printPlan(g)
	}

	broadcaster := events.NewChannelBroadcaster(256)
	defer broadcaster.Close()
	go printEvents(broadcaster.Events())

	coord := blocker.NewCoordinator(projectID, g,
		blocker.WithPersistence(db),
		blocker.WithBroadcaster(broadcaster),
		blocker.WithTTL(cfg.Blockers.TTL),
		blocker.WithDebugLog(debugLog),
	)
	if runResume {
		blockers, err := db.ListBlockers(projectID)
		if err != nil {
			return fmt.Errorf("restore blockers: %w", err)
		}
		coord.Restore(blockers)
	}

	watcher, err := blocker.NewAnswerWatcher(coord, filepath.Join(cwd, ".codeframe", "answers"), debugLog)
	if err != nil {
		return fmt.Errorf("start answer watcher: %w", err)
	}
	defer watcher.Close()

	store := contextstore.New(projectID, db,
		contextstore.NewTiktokenTokenizer(cfg.Anthropic.Model),
		contextStoreConfig(cfg),
	)

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	committer := buildCommitter(cfg, cwd)
	runner := testrun.NewCommandRunner()

	factory := func(agent *models.Agent) orchestrator.TaskExecutor {
		opts := []worker.LoopOption{
			worker.WithTestRunner(runner),
			worker.WithBroadcaster(broadcaster),
			worker.WithDebugLog(debugLog),
			worker.WithConfig(worker.Config{
				Language:          cfg.Project.Language,
				ProjectPath:       cwd,
				MaxTokens:         8192,
				MaxRepairAttempts: worker.MaxRepairAttempts,
				RequestTimeout:    cfg.Anthropic.RequestTimeout,
			}),
		}
		if committer != nil {
			opts = append(opts, worker.WithCommitter(committer))
		}
		return worker.NewLoop(agent, provider, store, opts...)
	}

	orch := orchestrator.New(projectID, g, coord, buildPool(cfg), factory,
		orchestrator.WithStateStore(db),
		orchestrator.WithSessionManager(session.NewManager(filepath.Join(cwd, ".codeframe"), debugLog)),
		orchestrator.WithBroadcaster(broadcaster),
		orchestrator.WithPlan(runPlan),
		orchestrator.WithDebugLog(debugLog),
	)

	profiles, err := loadProfilesOrDefault(cwd)
	if err != nil {
		return err
	}
	if err := orch.SpawnTeam(profiles); err != nil {
		return fmt.Errorf("spawn agents: %w", err)
	}

	// Persist any tasks loaded from file so a crash before the first save
	// still leaves a resumable state.
	for _, task := range g.Tasks() {
		if err := db.SaveTask(projectID, task); err != nil {
			return fmt.Errorf("persist task %s: %w", task.ID, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	color.New(color.Bold).Printf("codeframe: running %d tasks (%s)\n", g.Size(), projectID)
	start := time.Now()
	if err := orch.Run(ctx); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	printSummary(g, coord, time.Since(start))
	return nil
}

// restoreTasks loads the previous session's tasks into the graph.
// Dependencies force insertion order, so unresolved tasks are retried in
// passes. Tasks interrupted mid-run come back as ready.
func restoreTasks(g *graph.Graph, db *state.DB, projectID string) error {
	tasks, err := db.ListTasks(projectID)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	for _, task := range tasks {
		if task.Status == models.TaskStatusInProgress {
			task.Status = models.TaskStatusReady
			task.AssignedAgentID = ""
		}
	}

	pending := tasks
	for len(pending) > 0 {
		var stuck []*models.Task
		progress := false
		for _, task := range pending {
			if err := g.AddTask(task); err != nil {
				stuck = append(stuck, task)
				continue
			}
			progress = true
		}
		if !progress {
			return fmt.Errorf("could not restore %d tasks (missing or cyclic dependencies)", len(stuck))
		}
		pending = stuck
	}
	return nil
}

// loadTaskFile parses the YAML task list into the graph and returns the
// plan string, if any.
func loadTaskFile(g *graph.Graph, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read tasks file: %w", err)
	}
	var tf taskFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return "", fmt.Errorf("parse tasks file: %w", err)
	}

	for i, t := range tf.Tasks {
		agentType := models.AgentType(t.AgentType)
		if t.AgentType == "" {
			agentType = models.AgentTypeBackend
		}
		if !agentType.Valid() {
			return "", fmt.Errorf("task %d: unknown agent type %q", i, t.AgentType)
		}
		task := &models.Task{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			AgentType:   agentType,
			Priority:    t.Priority,
			DependsOn:   t.DependsOn,
		}
		if task.ID == "" {
			return "", fmt.Errorf("task %d: missing id", i)
		}
		if err := g.AddTask(task); err != nil {
			return "", fmt.Errorf("add task %s: %w", task.ID, err)
		}
	}
	return tf.Plan, nil
}

func loadProfilesOrDefault(cwd string) (*config.Profiles, error) {
	path := filepath.Join(cwd, ".codeframe", "agents.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.DefaultProfiles(), nil
	}
	return config.LoadProfiles(path)
}

func contextStoreConfig(cfg *config.Config) contextstore.Config {
	scoreCfg := contextstore.DefaultScoreConfig()
	if cfg.Context.DecayHalfLife > 0 {
		scoreCfg.DecayHalfLife = cfg.Context.DecayHalfLife
	}
	for name, weight := range cfg.Context.TypeWeights {
		scoreCfg.TypeWeights[models.ContextItemType(name)] = weight
	}
	return contextstore.Config{
		Score:          scoreCfg,
		TokenBudget:    cfg.Context.TokenBudget,
		FlashThreshold: 0.8,
	}
}

func buildProvider(cfg *config.Config) (llm.Provider, error) {
	base, err := llm.NewAnthropicProvider(llm.AnthropicConfig{
		Model:         cfg.Anthropic.Model,
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	return llm.NewRetryingProvider(base), nil
}

func buildCommitter(cfg *config.Config, cwd string) git.Committer {
	if !cfg.Project.CommitChanges {
		return nil
	}
	return git.NewRunner(cwd)
}

func buildPool(cfg *config.Config) *orchestrator.Pool {
	limits := make(map[models.AgentType]int, len(cfg.Pool.MaxConcurrency))
	for name, n := range cfg.Pool.MaxConcurrency {
		limits[models.AgentType(name)] = n
	}
	return orchestrator.NewPool(limits)
}

// printEvents renders the event stream as one-line status updates.
func printEvents(ch <-chan events.Event) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	for ev := range ch {
		switch ev.Type {
		case events.EventTaskStarted:
			cyan.Printf("→ %v started on %v\n", ev.Payload["task_id"], ev.Payload["agent_id"])
		case events.EventTaskCompleted:
			green.Printf("✓ %v completed\n", ev.Payload["task_id"])
		case events.EventTaskFailed:
			red.Printf("✗ %v failed: %v\n", ev.Payload["task_id"], ev.Payload["reason"])
		case events.EventTaskBlocked:
			yellow.Printf("⏸ %v blocked: %v\n", ev.Payload["task_id"], ev.Payload["question"])
			yellow.Printf("  answer with: codeframe blockers resolve %v \"<answer>\"\n", ev.Payload["blocker_id"])
		case events.EventBlockerResolved:
			green.Printf("▶ blocker %v resolved\n", ev.Payload["blocker_id"])
		case events.EventBlockerExpired:
			yellow.Printf("⌛ blocker %v expired\n", ev.Payload["blocker_id"])
		case events.EventFlashSaveCompleted:
			cyan.Printf("⚡ %v checkpointed context (%v → %v tokens)\n",
				ev.Payload["agent_id"], ev.Payload["tokens_before"], ev.Payload["tokens_after"])
		}
	}
}

func printSummary(g *graph.Graph, coord *blocker.Coordinator, elapsed time.Duration) {
	counts := g.Counts()
	bold := color.New(color.Bold)

	bold.Printf("\nrun finished in %s\n", elapsed.Round(time.Second))
	fmt.Printf("  done: %d  failed: %d  blocked: %d  ready: %d\n",
		counts[models.TaskStatusDone], counts[models.TaskStatusFailed],
		counts[models.TaskStatusBlocked], counts[models.TaskStatusReady])

	if open := coord.Open(); len(open) > 0 {
		bold.Printf("\nopen blockers:\n")
		for _, b := range open {
			fmt.Printf("  [%s] %s (task %s)\n", b.ID[:8], b.Question, b.TaskID)
		}
	}
}

// printPlan renders the dependency-respecting execution groups. Tasks in one
// group have no dependencies on each other and can run in parallel.
func printPlan(g *graph.Graph) error {
	plan, err := g.Plan()
	if err != nil {
		return fmt.Errorf("compute plan: %w", err)
	}

	bold := color.New(color.Bold)
	bold.Printf("execution plan: %d tasks in %d groups\n", plan.TotalTasks(), len(plan.Groups))
	for i, group := range plan.Groups {
		fmt.Printf("group %d:\n", i+1)
		for _, id := range group {
			task := g.Task(id)
			if task == nil {
				continue
			}
			fmt.Printf("  %s [%s, priority %d] %s\n", task.ID, task.AgentType, task.Priority, task.Title)
		}
	}
	return nil
}

func printResume(prev *models.SessionState) {
	bold := color.New(color.Bold)
	bold.Println("resuming previous session")
	fmt.Printf("  last session: %s\n", prev.LastSessionSummary)
	if prev.CurrentPlan != "" {
		fmt.Printf("  plan: %s\n", prev.CurrentPlan)
	}
	for _, action := range prev.NextActions {
		fmt.Printf("  next: %s\n", action)
	}
}
