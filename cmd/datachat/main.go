// datachat is the command-line surface of the engine: load and inspect
// a spreadsheet, run the transform loop over it, or ask a question.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ruslano69/datachat/pkg/answer"
	"github.com/ruslano69/datachat/pkg/llm"
	"github.com/ruslano69/datachat/pkg/loader"
	"github.com/ruslano69/datachat/pkg/script"
	"github.com/ruslano69/datachat/pkg/tablecache"
	"github.com/ruslano69/datachat/pkg/transform"
)

const usage = `Usage:
  datachat load <file> [-sheet NAME] [-config FILE]
  datachat transform <file> [-sheet NAME] [-config FILE]
  datachat ask <file> "question" [-sheet NAME] [-config FILE]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "load":
		err = cmdLoad(os.Args[2:])
	case "transform":
		err = cmdTransform(os.Args[2:])
	case "ask":
		err = cmdAsk(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the wired components for one command run.
type app struct {
	cfg       *Config
	log       zerolog.Logger
	cache     *tablecache.Store
	loader    *loader.Loader
	executor  *script.Executor
	publisher *tablecache.RunPublisher
}

func newApp(cfg *Config) (*app, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	cache, err := tablecache.NewStore(cfg.CacheDir)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		cache:    cache,
		loader:   loader.New(cache, log),
		executor: script.NewExecutor(script.Options{Budget: time.Duration(cfg.SandboxBudgetMs) * time.Millisecond}),
	}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.publisher = tablecache.NewRunPublisher(client, time.Duration(cfg.Redis.TTLSeconds)*time.Second)
	}
	return a, nil
}

func (a *app) close() {
	a.cache.Close()
	if a.publisher != nil {
		a.publisher.Close()
	}
}

// publishRun reports a finished run; best effort.
func (a *app) publishRun(ctx context.Context, kind, dataset string, iterations int, started time.Time, runErr error) {
	if a.publisher == nil {
		return
	}
	result := tablecache.RunResult{
		RunID:      uuid.NewString(),
		Kind:       kind,
		Dataset:    dataset,
		Iterations: iterations,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if err := a.publisher.Publish(ctx, result, runErr); err != nil {
		a.log.Warn().Err(err).Msg("run result publish failed")
	}
}

func commonFlags(fs *flag.FlagSet) (sheet, config *string) {
	sheet = fs.String("sheet", "", "worksheet name for Excel files")
	config = fs.String("config", "", "path to YAML config")
	return sheet, config
}

func cmdLoad(args []string) error {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	sheet, configPath := commonFlags(fs)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("load: missing file argument")
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	t, err := a.loader.Load(fs.Arg(0), *sheet)
	if err != nil {
		return err
	}

	fmt.Printf("Table: %s (%d rows, %d columns)\n\n", t.Name, t.NumRows(), t.NumCols())
	fmt.Println("Schema:")
	fmt.Print(t.RenderSchema())
	fmt.Println("\nPreview:")
	fmt.Println(t.RenderSample(10))
	return nil
}

func cmdTransform(args []string) error {
	fs := flag.NewFlagSet("transform", flag.ExitOnError)
	sheet, configPath := commonFlags(fs)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("transform: missing file argument")
	}
	path := fs.Arg(0)

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	client, err := llm.NewHTTPClient(cfg.LLM, a.log)
	if err != nil {
		return err
	}

	ctx := context.Background()
	t, err := a.loader.Load(path, *sheet)
	if err != nil {
		return err
	}

	started := time.Now()
	engine := transform.NewEngine(client, a.executor, a.log)
	res := engine.Generate(ctx, t, transform.Options{Filename: path, Sheet: *sheet})

	fmt.Printf("Summary: %s\n", res.Summary)
	if len(res.IssuesFound) > 0 {
		fmt.Println("Issues found:")
		for _, issue := range res.IssuesFound {
			fmt.Printf("  - %s\n", issue)
		}
	}
	for _, note := range res.ValidationNotes {
		fmt.Printf("  note: %s\n", note)
	}

	var runErr error
	switch {
	case res.HasError:
		runErr = fmt.Errorf("transform failed after %d attempts", res.Iterations)
		fmt.Println("Transform failed; the original data is kept unchanged.")
	case !res.NeedsTransform:
		fmt.Println("Data is already clean; no transform needed.")
	default:
		// Apply the converged script to the full table and cache the
		// result as a derived entry.
		exec := a.executor.Execute(ctx, res.TransformCode, t, script.ModeTransform)
		if exec.Err != nil {
			runErr = fmt.Errorf("applying transform to full table: %s", exec.Err.Error())
			break
		}
		key, err := a.cache.BuildFromTable(exec.Table, t.Name, tablecache.Metadata{
			SourceFile:    path,
			Sheet:         *sheet,
			TransformCode: res.TransformCode,
			TransformNote: res.Explanation,
		})
		if err != nil {
			runErr = err
			break
		}
		fmt.Printf("Transformed table cached under key %s\n", key)
		fmt.Println("\nPreview:")
		fmt.Println(exec.Table.RenderSample(10))
	}

	a.publishRun(ctx, "transform", path, res.Iterations, started, runErr)
	return runErr
}

func cmdAsk(args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	sheet, configPath := commonFlags(fs)
	fs.Parse(args)
	if fs.NArg() < 2 {
		return fmt.Errorf("ask: need a file and a question")
	}
	path, question := fs.Arg(0), strings.Join(fs.Args()[1:], " ")

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	client, err := llm.NewHTTPClient(cfg.LLM, a.log)
	if err != nil {
		return err
	}

	ctx := context.Background()
	t, err := a.loader.Load(path, *sheet)
	if err != nil {
		return err
	}

	started := time.Now()
	engine := answer.NewEngine(client, client, a.executor, a.log)
	res := engine.Answer(ctx, t, question, answer.Options{})

	if res.ResponseText != "" {
		fmt.Println(res.ResponseText)
	}
	for _, c := range res.Components {
		printComponent(c)
	}
	if res.Explanation != "" {
		fmt.Printf("\n%s\n", res.Explanation)
	}

	var runErr error
	if res.HasError {
		runErr = fmt.Errorf("question failed after %d attempts", res.Iterations)
	}
	a.publishRun(ctx, "answer", path, res.Iterations, started, runErr)
	return runErr
}

func printComponent(c script.Component) {
	switch c.Kind {
	case script.ComponentPreview:
		fmt.Printf("\n%s (%d rows total)\n", strings.Join(c.Columns, " | "), c.TotalRows)
		for _, row := range c.Rows {
			fmt.Println(strings.Join(row, " | "))
		}
	case script.ComponentMetric:
		if c.Label != "" {
			fmt.Printf("%s: %v\n", c.Label, c.Value)
		}
	case script.ComponentRaw:
		fmt.Println(c.Raw)
	case script.ComponentClarification:
		fmt.Printf("Clarification needed: %s\n", c.Question)
		for _, opt := range c.Options {
			fmt.Printf("  - %s\n", opt)
		}
	}
}
