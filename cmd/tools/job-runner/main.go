// Package main implements the job-runner CLI for operating the inactivity
// lifecycle directly, bypassing the Lambda shim and the HTTP API.
//
// This tool is intended for local development, manual backfilling and
// operational debugging. Mutating commands take the same lifecycle lock as
// the scheduled worker.
//
// Usage:
//
//	go run ./cmd/tools/job-runner --list
//	go run ./cmd/tools/job-runner run --reference-time=2026-01-15T03:00:00Z
//	go run ./cmd/tools/job-runner run --dry-run --retention-days=120
//	go run ./cmd/tools/job-runner preview > candidates.json
//	go run ./cmd/tools/job-runner warn --ids=stu_1,stu_2
//	go run ./cmd/tools/job-runner delete --ids-file=ids.txt --yes
//	go run ./cmd/tools/job-runner migrate
//	go run ./cmd/tools/job-runner history --limit=5
//
// Configuration is read like the API (env, .env, SSM pointers with --ssm).
// --secrets-file resolves the same pointers from a dotenv snapshot whose keys
// are the parameter paths below /{env}/eduplatform/, upper-cased with "_".
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"eduplatform/internal/app"
	"eduplatform/internal/config"
	"eduplatform/internal/db"
	"eduplatform/internal/lifecycle"
	"eduplatform/internal/scheduler"
)

// commands is the exhaustive set of subcommands.
var commands = map[string]string{
	"run":     "Run the inactivity cleanup once under the lifecycle lock",
	"preview": "Print warn and delete candidates as JSON without mutating anything",
	"warn":    "Warn specific accounts that are inside their warning window",
	"delete":  "Delete specific accounts unconditionally (requires --yes)",
	"migrate": "Apply pending database migrations",
	"history": "Show recent inactivity_cleanup runs from job_history",
}

// Engine is the subset of lifecycle.Engine the CLI drives.
type Engine interface {
	scheduler.Cleaner
	Preview(ctx context.Context, params lifecycle.PreviewParams) (lifecycle.PreviewResult, error)
	SendWarnings(ctx context.Context, accountIDs []string, params lifecycle.PreviewParams) (lifecycle.ManualWarnResult, error)
	DeleteAccounts(ctx context.Context, accountIDs []string) (lifecycle.ManualDeleteResult, error)
}

// Runner is the subset of scheduler.Runner the CLI uses.
type Runner interface {
	RunExclusive(ctx context.Context, task scheduler.TaskType, fn scheduler.JobFunc) (int, error)
	Recent(ctx context.Context, task scheduler.TaskType, limit int) ([]db.JobRun, error)
}

// cli carries the wired dependencies of one invocation.
type cli struct {
	engine   Engine
	runner   Runner
	defaults lifecycle.RunParams
	out      io.Writer
}

func main() {
	listFlag := flag.Bool("list", false, "List all available commands and exit")
	ssmFlag := flag.Bool("ssm", false, "Resolve _SSM_PARAM variables from AWS SSM Parameter Store")
	secretsFile := flag.String("secrets-file", "", "Resolve _SSM_PARAM variables from a dotenv snapshot instead of SSM")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: job-runner [--ssm | --secrets-file FILE] <command> [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Operate the inactivity lifecycle directly.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nUse --list to see all available commands.\n")
	}
	flag.Parse()

	if *listFlag {
		printCommands(os.Stdout)
		return
	}

	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "error: a command is required\n\n")
		flag.Usage()
		os.Exit(1)
	}
	name, args := flag.Arg(0), flag.Args()[1:]
	if _, ok := commands[name]; !ok {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n\n", name)
		printCommands(os.Stderr)
		os.Exit(1)
	}

	if *ssmFlag && *secretsFile != "" {
		fmt.Fprintf(os.Stderr, "error: --ssm and --secrets-file are mutually exclusive\n")
		os.Exit(1)
	}

	if err := execute(name, args, *ssmFlag, *secretsFile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func execute(name string, args []string, useSSM bool, secretsFile string) error {
	var provider config.SecretProvider
	switch {
	case useSSM:
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL"))
	case secretsFile != "":
		fp, err := config.NewFileProvider(secretsFile)
		if err != nil {
			return err
		}
		provider = fp
	}
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	// Logs go to stderr so preview and history output stays parseable.
	logger := app.NewLoggerTo(os.Stderr, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if name == "migrate" {
		return migrate(ctx, cfg.Database.URL.Unmask(), os.Stdout)
	}

	stack, err := app.Build(ctx, cfg, logger, app.Overrides{})
	if err != nil {
		return err
	}
	defer stack.Close()

	c := &cli{engine: stack.Engine, runner: stack.Runner, defaults: stack.Defaults, out: os.Stdout}
	return c.dispatch(ctx, name, args)
}

// dispatch routes a command to its implementation.
func (c *cli) dispatch(ctx context.Context, name string, args []string) error {
	switch name {
	case "run":
		return c.run(ctx, args)
	case "preview":
		return c.preview(ctx, args)
	case "warn":
		return c.warn(ctx, args)
	case "delete":
		return c.delete(ctx, args)
	case "history":
		return c.history(ctx, args)
	default:
		return fmt.Errorf("command %q cannot be dispatched", name)
	}
}

func (c *cli) run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	refTime := fs.String("reference-time", "", "Override \"now\" (RFC3339, e.g. 2026-01-15T03:00:00Z)")
	dryRun := fs.Bool("dry-run", false, "Print the maintenance payload without executing")
	th := thresholdFlags(fs, true)
	if err := fs.Parse(args); err != nil {
		return err
	}

	payload := scheduler.MaintenancePayload{Task: scheduler.TaskInactivityCleanup}
	if *refTime != "" {
		t, err := time.Parse(time.RFC3339, *refTime)
		if err != nil {
			return fmt.Errorf("invalid --reference-time %q: expected RFC3339: %w", *refTime, err)
		}
		payload.ReferenceTime = &t
	}
	th.apply(&payload)

	if *dryRun {
		return writeJSON(c.out, payload)
	}

	defaults := c.defaults
	defaults.Trigger = "job_runner"
	var summary lifecycle.RunSummary
	_, err := c.runner.RunExclusive(ctx, scheduler.TaskInactivityCleanup,
		scheduler.CleanupJob(c.engine, payload.RunParams(defaults), &summary))
	if errors.Is(err, scheduler.ErrLockHeld) {
		fmt.Fprintln(c.out, "skipped: lifecycle lock held by another worker")
		return nil
	}
	if err != nil {
		return err
	}
	return writeJSON(c.out, summary)
}

func (c *cli) preview(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	th := thresholdFlags(fs, false)
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := c.engine.Preview(ctx, th.previewParams(c.defaults))
	if err != nil {
		return err
	}
	return writeJSON(c.out, result)
}

func (c *cli) warn(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("warn", flag.ContinueOnError)
	idf := idFlags(fs)
	th := thresholdFlags(fs, false)
	if err := fs.Parse(args); err != nil {
		return err
	}
	accountIDs, err := idf.resolve()
	if err != nil {
		return err
	}

	var result lifecycle.ManualWarnResult
	_, err = c.runner.RunExclusive(ctx, scheduler.TaskInactivityManualWarn, func(ctx context.Context) (int, error) {
		var warnErr error
		result, warnErr = c.engine.SendWarnings(ctx, accountIDs, th.previewParams(c.defaults))
		return result.Sent, warnErr
	})
	if err != nil {
		return err
	}
	return writeJSON(c.out, result)
}

func (c *cli) delete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	idf := idFlags(fs)
	yes := fs.Bool("yes", false, "Confirm the irreversible deletion")
	if err := fs.Parse(args); err != nil {
		return err
	}
	accountIDs, err := idf.resolve()
	if err != nil {
		return err
	}
	if !*yes {
		return fmt.Errorf("refusing to delete %d accounts without --yes", len(accountIDs))
	}

	result, err := c.engine.DeleteAccounts(ctx, accountIDs)
	if err != nil {
		return err
	}
	return writeJSON(c.out, result)
}

func (c *cli) history(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "Number of runs to show (1-100)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit < 1 || *limit > 100 {
		return fmt.Errorf("--limit must be between 1 and 100")
	}

	runs, err := c.runner.Recent(ctx, scheduler.TaskInactivityCleanup, *limit)
	if err != nil {
		return err
	}
	return writeJSON(c.out, runs)
}

func migrate(ctx context.Context, dsn string, out io.Writer) error {
	if err := db.Migrate(ctx, dsn); err != nil {
		return err
	}
	version, err := db.MigrationVersion(ctx, dsn)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "database at migration version %d\n", version)
	return nil
}

// --- flag helpers ---

// thresholds holds optional overrides; -1 means "use the configured value".
type thresholds struct {
	retentionDays *int
	warnLeadDays  *int
	maxWarnings   *int
}

func thresholdFlags(fs *flag.FlagSet, withCap bool) *thresholds {
	th := &thresholds{
		retentionDays: fs.Int("retention-days", -1, "Override LIFECYCLE_RETENTION_DAYS"),
		warnLeadDays:  fs.Int("warn-lead-days", -1, "Override LIFECYCLE_WARN_LEAD_DAYS"),
	}
	if withCap {
		th.maxWarnings = fs.Int("max-warnings", -1, "Override LIFECYCLE_MAX_WARNINGS_PER_RUN")
	}
	return th
}

func set(v *int) *int {
	if v == nil || *v < 0 {
		return nil
	}
	n := *v
	return &n
}

func (th *thresholds) apply(p *scheduler.MaintenancePayload) {
	p.RetentionDays = set(th.retentionDays)
	p.WarnLeadDays = set(th.warnLeadDays)
	p.MaxWarningsPerRun = set(th.maxWarnings)
}

func (th *thresholds) previewParams(defaults lifecycle.RunParams) lifecycle.PreviewParams {
	params := lifecycle.PreviewParams{
		RetentionDays: defaults.RetentionDays,
		WarnLeadDays:  defaults.WarnLeadDays,
	}
	if v := set(th.retentionDays); v != nil {
		params.RetentionDays = *v
	}
	if v := set(th.warnLeadDays); v != nil {
		params.WarnLeadDays = *v
	}
	return params
}

type idSource struct {
	list *string
	file *string
}

func idFlags(fs *flag.FlagSet) *idSource {
	return &idSource{
		list: fs.String("ids", "", "Comma-separated account ids"),
		file: fs.String("ids-file", "", "File with one account id per line"),
	}
}

// resolve merges --ids and --ids-file, dropping blanks and duplicates.
func (i *idSource) resolve() ([]string, error) {
	var raw []string
	if *i.list != "" {
		raw = append(raw, strings.Split(*i.list, ",")...)
	}
	if *i.file != "" {
		f, err := os.Open(*i.file)
		if err != nil {
			return nil, fmt.Errorf("opening --ids-file: %w", err)
		}
		defer f.Close()
		fromFile, err := readIDs(f)
		if err != nil {
			return nil, err
		}
		raw = append(raw, fromFile...)
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no account ids given: use --ids or --ids-file")
	}
	return out, nil
}

func readIDs(r io.Reader) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ids: %w", err)
	}
	return out, nil
}

// --- output ---

func printCommands(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "Available commands:\n\n")
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %s\n", name, commands[name])
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
