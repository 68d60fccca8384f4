package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"eduplatform/internal/config"
)

type outcome string

const (
	outcomeWritten     outcome = "written"
	outcomeGenerated   outcome = "generated"
	outcomeOverwritten outcome = "overwritten"
	outcomeKept        outcome = "kept"
	outcomeSkipped     outcome = "skipped"
)

var summaryOrder = []outcome{outcomeWritten, outcomeGenerated, outcomeOverwritten, outcomeKept, outcomeSkipped}

// maxAttempts bounds failed checks per step; empty answers do not count.
const maxAttempts = 5

var errSkipped = errors.New("parameter skipped by operator")

// Runner walks the steps against one environment's parameters.
type Runner struct {
	store        *ParameterStore
	steps        []Step
	io           *prompter
	skipOptional bool
}

func NewRunner(store *ParameterStore, steps []Step, in io.Reader, out io.Writer) *Runner {
	return &Runner{store: store, steps: steps, io: newPrompter(in, out)}
}

type stepResult struct {
	step    Step
	path    string
	outcome outcome
}

// Run applies every step in order and ends with a summary listing the
// pointer variables to set on the deployed functions.
func (r *Runner) Run(ctx context.Context) error {
	results := make([]stepResult, 0, len(r.steps))
	phase := ""
	for i, step := range r.steps {
		if step.Phase != phase {
			phase = step.Phase
			r.io.banner("Phase: " + phase)
		}
		r.io.printf("\n[%d/%d] %s\n", i+1, len(r.steps), step.Label)

		res, err := r.apply(ctx, step)
		if err != nil {
			return fmt.Errorf("step %q failed: %w", step.Label, err)
		}
		results = append(results, res)
	}
	r.summarize(results)
	return nil
}

func (r *Runner) apply(ctx context.Context, step Step) (stepResult, error) {
	res := stepResult{step: step, path: r.store.Path(step.Key), outcome: outcomeSkipped}
	if step.Optional && r.skipOptional {
		r.io.printf("  Skipped (--skip-optional)\n")
		return res, nil
	}

	exists, err := r.store.Exists(ctx, res.path)
	if err != nil {
		return res, err
	}
	if exists {
		r.io.printf("  Parameter already exists: %s\n", res.path)
		choice, err := r.io.choose("", "skip", "overwrite")
		if err != nil {
			return res, fmt.Errorf("reading skip/overwrite choice: %w", err)
		}
		if choice == "skip" {
			r.io.printf("  Kept existing value.\n")
			res.outcome = outcomeKept
			return res, nil
		}
	}

	value, err := r.value(ctx, step)
	if errors.Is(err, errSkipped) {
		r.io.printf("  Skipped.\n")
		return res, nil
	}
	if err != nil {
		return res, err
	}

	if err := r.store.Put(ctx, Parameter{Path: res.path, Value: value, Secure: step.Secure, Overwrite: exists}); err != nil {
		return res, err
	}
	switch {
	case exists:
		res.outcome = outcomeOverwritten
	case step.Generate != nil:
		res.outcome = outcomeGenerated
	default:
		res.outcome = outcomeWritten
	}
	r.io.printf("  Stored: %s\n", res.path)
	return res, nil
}

func (r *Runner) value(ctx context.Context, step Step) (string, error) {
	if step.Generate == nil {
		return r.ask(ctx, step)
	}
	stored, shown, err := step.Generate()
	if err != nil {
		return "", fmt.Errorf("generating %s: %w", step.Label, err)
	}
	if shown == stored {
		r.io.printf("  Generated (%d chars)\n", len(stored))
	} else {
		r.io.printf("  Generated. Record this value now, only its hash is stored:\n\n    %s\n\n", shown)
	}
	return stored, nil
}

func (r *Runner) ask(ctx context.Context, step Step) (string, error) {
	r.io.printf("\n  %s\n\n", step.Prompt)

	for attempt := 1; attempt <= maxAttempts; {
		input, err := r.read(step)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", step.Label, err)
		}
		if input == "" {
			if step.Optional {
				return "", errSkipped
			}
			choice, err := r.io.choose("No input received.", "skip", "retry")
			if err != nil {
				return "", fmt.Errorf("reading skip/retry choice: %w", err)
			}
			if choice == "skip" {
				return "", errSkipped
			}
			continue
		}

		if step.Secure {
			r.io.printf("  Received %d chars.\n", len(input))
		}
		if step.Check == nil {
			return input, nil
		}
		note, err := step.Check(ctx, input)
		if err == nil {
			r.io.printf("  Validated: %s\n", note)
			return input, nil
		}
		r.io.printf("  Validation failed: %v\n", err)
		if attempt < maxAttempts {
			r.io.printf("  Try again (%d/%d).\n", attempt, maxAttempts)
		}
		attempt++
	}
	return "", fmt.Errorf("maximum attempts (%d) exceeded for %s", maxAttempts, step.Label)
}

func (r *Runner) read(step Step) (string, error) {
	var (
		s   string
		err error
	)
	if step.Secure {
		s, err = r.io.secret("  > ")
	} else {
		s, err = r.io.line("  > ")
	}
	return strings.TrimSpace(s), err
}

func (r *Runner) summarize(results []stepResult) {
	counts := make(map[outcome]int, len(summaryOrder))
	r.io.banner("Bootstrap Summary")

	tw := tabwriter.NewWriter(r.io.out, 0, 0, 2, ' ', 0)
	for _, res := range results {
		counts[res.outcome]++
		fmt.Fprintf(tw, "  [%s]\t%s\t%s\n", strings.ToUpper(string(res.outcome)), res.step.Label, res.path)
	}
	_ = tw.Flush()

	tallies := make([]string, 0, len(summaryOrder))
	for _, o := range summaryOrder {
		tallies = append(tallies, fmt.Sprintf("%s%s: %d", strings.ToUpper(string(o[:1])), o[1:], counts[o]))
	}
	r.io.printf("%s\n  %d parameters. %s\n%s\n", rule, len(results), strings.Join(tallies, " | "), rule)

	r.io.printf("\n  Function environment:\n")
	for _, res := range results {
		if res.outcome == outcomeSkipped || res.step.EnvVar == "" {
			continue
		}
		r.io.printf("    %s=%s\n", config.PointerVar(res.step.EnvVar), res.path)
	}
	r.io.printf("\n")
}
