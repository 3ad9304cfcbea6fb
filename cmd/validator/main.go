package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	validator "github.com/zuzya/try.idea-validator"
	"github.com/zuzya/try.idea-validator/config"
	"github.com/zuzya/try.idea-validator/engine"
	"github.com/zuzya/try.idea-validator/persona"
	"github.com/zuzya/try.idea-validator/server"
)

const usage = `Usage:
  validator run   -idea "..." [-config file] [flags]   validate one idea in the terminal
  validator serve [-config file] [-addr :8000]         serve runs over HTTP
  validator index -file personas.json [-config file]   load personas into the pgvector index
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run dispatches the subcommand. It is separate from main for testing.
func run(ctx context.Context, out io.Writer, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errors.New("missing command")
	}

	switch args[0] {
	case "run":
		return runIdea(ctx, out, args[1:])
	case "serve":
		return serve(ctx, out, args[1:])
	case "index":
		return index(ctx, out, args[1:])
	case "-h", "-help", "--help", "help":
		fmt.Fprint(out, usage)
		return nil
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// loadConfig reads path, or starts from the defaults when path is empty.
func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg := config.Default()
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

func runIdea(ctx context.Context, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(out)
	idea := fs.String("idea", "", "the idea to validate")
	configPath := fs.String("config", "", "path to a YAML or HCL config file")
	provider := fs.String("provider", "", "override models.provider (openai, anthropic, mock)")
	iterations := fs.Int("iterations", 0, "override run.max_iterations")
	noResearch := fs.Bool("no-research", false, "skip the research branch")
	noCritique := fs.Bool("no-critique", false, "skip the critique stage")
	fast := fs.Bool("fast", false, "route every call through the fast model")
	degraded := fs.Bool("degraded", false, "stub out interview model calls")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if strings.TrimSpace(*idea) == "" {
		return errors.New("-idea is required")
	}

	var (
		cfg config.Config
		err error
	)
	if *provider != "" {
		// The provider decides which API key is required, so it has to be
		// applied before validation.
		cfg, err = loadWithProvider(*configPath, *provider)
	} else {
		cfg, err = loadConfig(*configPath)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	runCfg := cfg.Run
	if *iterations > 0 {
		runCfg.MaxIterations = *iterations
	}
	if *noResearch {
		runCfg.EnableResearch = false
	}
	if *noCritique {
		runCfg.EnableCritique = false
	}
	runCfg.FastMode = runCfg.FastMode || *fast
	runCfg.DegradedMode = runCfg.DegradedMode || *degraded

	v, closeFn, err := validator.FromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	runID, events, err := v.Invoke(ctx, *idea, runCfg)
	if err != nil {
		return err
	}

	p := newProgress(out)
	p.Header(runID, *idea)

	var runErr error
	for ev := range events {
		p.Event(ev)
		if ev.IsTerminal() && ev.ErrorMessage != "" {
			runErr = errors.New(ev.ErrorMessage)
		}
	}
	return runErr
}

func loadWithProvider(path, provider string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config.Config{}, err
		}
		if cfg, err = config.Parse(data, path); err != nil {
			return config.Config{}, err
		}
	}
	cfg.Models.Provider = provider
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

func serve(ctx context.Context, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(out)
	configPath := fs.String("config", "", "path to a YAML or HCL config file")
	addr := fs.String("addr", "", "listen address (overrides server.addr)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	v, closeFn, err := validator.FromConfig(ctx, cfg, func(o *validator.Options) {
		o.Metrics = engine.NewMetrics(prometheus.DefaultRegisterer)
	})
	if err != nil {
		return err
	}
	defer closeFn()

	logger := validator.NewLogger(cfg.Log).WithComponent("server")
	handler := server.New(ctx, v.Runner(), func(o *server.Options) {
		o.Defaults = cfg.Run
		o.Artifacts = v.ArtifactStore()
		o.Logger = logger
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	// ctx is done, so every run has been cancelled; wait for their records.
	v.Wait()
	return nil
}

func index(ctx context.Context, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	fs.SetOutput(out)
	file := fs.String("file", "", "JSON array of persona strings or dataset rows")
	configPath := fs.String("config", "", "path to a YAML or HCL config file")
	limit := fs.Int("limit", 0, "index only the first n entries")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	texts, err := persona.ReadDataset(f, *limit)
	f.Close()
	if err != nil {
		return err
	}
	if len(texts) == 0 {
		return fmt.Errorf("%s holds no personas", *file)
	}

	n, err := validator.IndexPersonas(ctx, cfg, texts)
	if err != nil {
		return fmt.Errorf("index personas: %w", err)
	}
	fmt.Fprintf(out, "Indexed %d persona(s) into %s\n", n, cfg.Personas.Table)
	return nil
}
