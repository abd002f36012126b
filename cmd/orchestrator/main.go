// Command orchestrator wires the network-port workflows up against a real
// store, callback server, and retry scheduler, and gives an operator a thin
// CLI over intake/start/resume/abort.
//
// Usage:
//
//	orchestrator serve                         run the callback server and scheduler
//	orchestrator intake <content-type> <file>  extract a document into an
//	                                            initial-form JSON on stdout
//	orchestrator start <workflow>               start a workflow, reading its
//	                                             initial input form as JSON
//	                                             from stdin (pipe intake's
//	                                             output straight in)
//	orchestrator resume <process-id>            resume a suspended process,
//	                                             merging JSON read from stdin
//	                                             into its state
//	orchestrator abort <process-id>             abort a running process
//
// Configuration is loaded from the file named by ORCHESTRATOR_CONFIG (default
// orchestrator.toml, if present), overlaid with environment variables — see
// internal/config.Load.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	orchestrator "github.com/RichieB2B/orchestrator-core"
	"github.com/RichieB2B/orchestrator-core/callback"
	"github.com/RichieB2B/orchestrator-core/ingest/csv"
	"github.com/RichieB2B/orchestrator-core/ingest/docx"
	"github.com/RichieB2B/orchestrator-core/ingest/html"
	jsonextract "github.com/RichieB2B/orchestrator-core/ingest/json"
	"github.com/RichieB2B/orchestrator-core/ingest/markdown"
	"github.com/RichieB2B/orchestrator-core/ingest/pdf"
	"github.com/RichieB2B/orchestrator-core/intake"
	"github.com/RichieB2B/orchestrator-core/internal/config"
	"github.com/RichieB2B/orchestrator-core/internal/scheduling"
	"github.com/RichieB2B/orchestrator-core/observer"
	"github.com/RichieB2B/orchestrator-core/store/sqlite"
	"github.com/RichieB2B/orchestrator-core/validate"
	"github.com/RichieB2B/orchestrator-core/workflows"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.Load(os.Getenv("ORCHESTRATOR_CONFIG"))
	settings := config.NewSettings(cfg)
	logger := slog.Default()

	if cfg.Telemetry.Enabled {
		_, shutdown, err := observer.Init(ctx, cfg.Telemetry)
		if err != nil {
			log.Fatalf("orchestrator: init tracing: %v", err)
		}
		defer shutdown(context.Background())
		ctx = orchestrator.WithTracer(ctx, observer.NewTracer())
	}

	runner := validate.New(validatorCommand())
	reg := orchestrator.NewWorkflowRegistry()
	workflows.Register(reg, runner)

	store, err := openStore(cfg, reg)
	if err != nil {
		log.Fatalf("orchestrator: open store: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		log.Fatalf("orchestrator: init store: %v", err)
	}

	driver := &orchestrator.Driver{
		Settings:    settings,
		Invalidator: observer.NewInvalidator(logger),
	}

	args := os.Args[1:]
	if len(args) == 0 {
		args = []string{"serve"}
	}

	switch args[0] {
	case "serve":
		serve(ctx, cfg, store, driver, logger)
	case "intake":
		runIntake(args[1:])
	case "start":
		runStart(ctx, args[1:], store, reg, driver)
	case "resume":
		runResume(ctx, args[1:], store, driver)
	case "abort":
		runAbort(ctx, args[1:], store, driver)
	default:
		log.Fatalf("orchestrator: unknown command %q", args[0])
	}
}

func openStore(cfg config.Config, reg *orchestrator.WorkflowRegistry) (*sqlite.Store, error) {
	switch cfg.Database.Driver {
	case "sqlite", "":
		dsn := cfg.Database.DSN
		if dsn == "" {
			dsn = "orchestrator.db"
		}
		return sqlite.New(dsn, reg), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q (use postgres via the library API)", cfg.Database.Driver)
	}
}

func validatorCommand() []string {
	if v := os.Getenv("ORCHESTRATOR_VALIDATOR_CMD"); v != "" {
		return strings.Fields(v)
	}
	return []string{"port-validator"}
}

func documentRegistry() *intake.Registry {
	reg := intake.NewRegistry()
	reg.Register(intake.TypePDF, pdf.NewExtractor())
	reg.Register(intake.TypeDOCX, docx.NewExtractor())
	reg.Register(intake.TypeCSV, csv.NewExtractor())
	reg.Register(intake.TypeJSON, jsonextract.NewExtractor())
	reg.Register(intake.TypeHTML, html.NewExtractor())
	reg.Register(intake.TypeMarkdown, markdown.NewExtractor())
	return reg
}

func serve(ctx context.Context, cfg config.Config, store *sqlite.Store, driver *orchestrator.Driver, logger *slog.Logger) {
	server := callback.New(store, store, driver, callback.WithLogger(logger))
	go func() {
		if err := server.Start(cfg.Callback.ListenAddr); err != nil {
			logger.Error("callback server stopped", "error", err)
		}
	}()

	sched := scheduling.New(store, store, driver,
		scheduling.WithMaxAttempts(cfg.Retry.MaxAttempts),
		scheduling.WithBaseDelay(time.Duration(cfg.Retry.BaseDelaySeconds)*time.Second),
		scheduling.WithMaxDelay(time.Duration(cfg.Retry.MaxDelaySeconds)*time.Second),
		scheduling.WithLogger(logger),
	)
	go sched.Run(ctx)

	logger.Info("orchestrator serving", "callback_addr", cfg.Callback.ListenAddr)
	<-ctx.Done()
	logger.Info("orchestrator shutting down")
	_ = server.Close()
}

func runIntake(args []string) {
	if len(args) != 2 {
		log.Fatal("usage: orchestrator intake <content-type> <file>")
	}
	content, err := os.ReadFile(args[1])
	if err != nil {
		log.Fatalf("orchestrator: read %s: %v", args[1], err)
	}
	doc := intake.Document{
		Name:        args[1],
		ContentType: intake.ContentType(args[0]),
		Content:     content,
	}
	form, err := documentRegistry().PopulateForm(doc)
	if err != nil {
		log.Fatalf("orchestrator: populate form: %v", err)
	}
	out, err := json.MarshalIndent(form, "", "  ")
	if err != nil {
		log.Fatalf("orchestrator: marshal form: %v", err)
	}
	fmt.Println(string(out))
}

func runStart(ctx context.Context, args []string, store *sqlite.Store, reg *orchestrator.WorkflowRegistry, driver *orchestrator.Driver) {
	if len(args) != 1 {
		log.Fatal("usage: orchestrator start <workflow-name>")
	}
	wf, ok := reg.Lookup(args[0])
	if !ok {
		log.Fatalf("orchestrator: unknown workflow %q", args[0])
	}

	var initial orchestrator.State
	if err := json.NewDecoder(os.Stdin).Decode(&initial); err != nil {
		log.Fatalf("orchestrator: decode initial state: %v", err)
	}

	pstat := orchestrator.NewProcessStat(wf, initial, "cli", nil)
	if err := store.Create(ctx, pstat); err != nil {
		log.Fatalf("orchestrator: create process: %v", err)
	}
	printResult(runAndSave(ctx, store, driver, pstat))
}

func runResume(ctx context.Context, args []string, store *sqlite.Store, driver *orchestrator.Driver) {
	if len(args) != 1 {
		log.Fatal("usage: orchestrator resume <process-id>")
	}
	pstat := loadOrDie(ctx, store, args[0])

	var payload orchestrator.State
	_ = json.NewDecoder(os.Stdin).Decode(&payload)
	pstat.State = pstat.State.Map(func(s orchestrator.State) orchestrator.State { return s.Merge(payload) })
	printResult(runAndSave(ctx, store, driver, pstat))
}

func runAbort(ctx context.Context, args []string, store *sqlite.Store, driver *orchestrator.Driver) {
	if len(args) != 1 {
		log.Fatal("usage: orchestrator abort <process-id>")
	}
	pstat := loadOrDie(ctx, store, args[0])
	logFn := func(step orchestrator.Step, result orchestrator.Process) orchestrator.Process {
		return store.WriteLog(ctx, pstat, step, result)
	}
	pstat.State = driver.AbortWorkflow(ctx, pstat, logFn)
	if err := store.Save(ctx, pstat); err != nil {
		log.Fatalf("orchestrator: save process: %v", err)
	}
	printResult(pstat.State)
}

func loadOrDie(ctx context.Context, store *sqlite.Store, processID string) *orchestrator.ProcessStat {
	pstat, err := store.Load(ctx, processID)
	if err != nil {
		log.Fatalf("orchestrator: load process %s: %v", processID, err)
	}
	return pstat
}

func runAndSave(ctx context.Context, store *sqlite.Store, driver *orchestrator.Driver, pstat *orchestrator.ProcessStat) orchestrator.Process {
	logFn := func(step orchestrator.Step, result orchestrator.Process) orchestrator.Process {
		return store.WriteLog(ctx, pstat, step, result)
	}
	result := driver.RunWorkflow(ctx, pstat, logFn)
	pstat.State = result
	if err := store.Save(ctx, pstat); err != nil {
		log.Fatalf("orchestrator: save process: %v", err)
	}
	return result
}

func printResult(p orchestrator.Process) {
	out, err := json.MarshalIndent(map[string]any{
		"status": p.Status(),
		"state":  p.Unwrap().Public(),
	}, "", "  ")
	if err != nil {
		log.Fatalf("orchestrator: marshal result: %v", err)
	}
	fmt.Println(string(out))
}
