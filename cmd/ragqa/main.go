package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ragqa/internal/config"
	"ragqa/internal/domain"
	"ragqa/internal/logging"
	"ragqa/internal/pipeline"
	"ragqa/internal/tui"
)

const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	noteStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ragqa", flag.ContinueOnError)
	fs.SetOutput(stderr)
	docPath := fs.String("doc-path", "./story.txt", "Path to the document to answer from")
	cfgPath := fs.String("config", "", "Path to YAML config file (default ./config.yaml, then ~/.config/ragqa/config.yaml)")
	useTUI := fs.Bool("tui", false, "Show a progress view while the pipeline runs")
	debug := fs.Bool("debug", false, "Enable debug logging")
	initConfig := fs.String("init-config", "", "Write the default config to this path and exit")
	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: ragqa [--doc-path=./story.txt] [--config=config.yaml] [--tui] [--debug] "<query>"`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if *initConfig != "" {
		if err := config.Save(*initConfig, config.Default()); err != nil {
			fmt.Fprintf(stderr, "write config: %v\n", err)
			return exitFatal
		}
		fmt.Fprintf(stdout, "Wrote default config to %s\n", *initConfig)
		return exitOK
	}

	if fs.NArg() != 1 || strings.TrimSpace(fs.Arg(0)) == "" {
		fs.Usage()
		return exitUsage
	}
	query := fs.Arg(0)

	var cfg *config.AppConfig
	var err error
	if *cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(*cfgPath)
	}
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return exitFatal
	}

	logger := zap.NewNop()
	if !*useTUI {
		if logger, err = logging.New(*debug || cfg.Debug); err != nil {
			fmt.Fprintf(stderr, "init logger: %v\n", err)
			return exitFatal
		}
		defer func() { _ = logger.Sync() }()
	}

	if *useTUI {
		return runTUI(ctx, cfg, logger, *docPath, query, stdout, stderr)
	}

	p, cleanup, err := buildPipeline(ctx, cfg, logger, func(s pipeline.State, res *pipeline.Result) {
		if s == pipeline.Loaded {
			printLoaded(stdout, res)
		}
	})
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialize: %v\n", err)
		return exitFatal
	}
	defer cleanup()

	res, err := p.Run(ctx, *docPath, query)
	if err != nil {
		return reportFailure(stderr, err)
	}
	printResult(stdout, res)
	return exitOK
}

func runTUI(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, docPath, query string, stdout, stderr io.Writer) int {
	m := tui.New(ctx, query, func(ctx context.Context, observe func(pipeline.State)) (*pipeline.Result, error) {
		p, cleanup, err := buildPipeline(ctx, cfg, logger, func(s pipeline.State, _ *pipeline.Result) { observe(s) })
		if err != nil {
			return nil, fmt.Errorf("failed to initialize: %w", err)
		}
		defer cleanup()
		return p.Run(ctx, docPath, query)
	})
	final, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		fmt.Fprintf(stderr, "tui: %v\n", err)
		return exitFatal
	}
	fm, ok := final.(tui.Model)
	if !ok {
		return exitFatal
	}
	res, runErr := fm.Result()
	if res != nil && len(res.Chunks) > 0 {
		printLoaded(stdout, res)
	}
	if runErr != nil {
		return reportFailure(stderr, runErr)
	}
	if res != nil {
		printResult(stdout, res)
	}
	return exitOK
}

func reportFailure(stderr io.Writer, err error) int {
	var le *domain.LoadError
	if errors.As(err, &le) {
		fmt.Fprintf(stderr, "Error: could not load document %s: %v\n", le.Path, le.Err)
		return exitFatal
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitFatal
}

func printLoaded(w io.Writer, res *pipeline.Result) {
	fmt.Fprintln(w, noteStyle.Render(fmt.Sprintf("Loaded %s, split into %d chunks", res.DocPath, len(res.Chunks))))
}

func printResult(w io.Writer, res *pipeline.Result) {
	fmt.Fprintln(w, headerStyle.Render("Question:"))
	fmt.Fprintln(w, res.Query)
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Answer:"))
	fmt.Fprintln(w, res.Answer)
}
