package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/mmcdole/hoard/internal/budget"
	"github.com/mmcdole/hoard/internal/config"
	"github.com/mmcdole/hoard/internal/domain"
	"github.com/mmcdole/hoard/internal/filter"
	"github.com/mmcdole/hoard/internal/log"
	"github.com/mmcdole/hoard/internal/progress"
	"github.com/mmcdole/hoard/internal/service"
	"github.com/mmcdole/hoard/internal/source"
	"github.com/mmcdole/hoard/internal/transfer"
	"github.com/mmcdole/hoard/internal/tui"
	"github.com/mmcdole/hoard/internal/tui/styles"
)

// Version is set at build time via -ldflags
var Version = "dev"

const maxListedFailures = 10

func main() {
	fs := config.NewFlagSet("hoard")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: hoard [flags] <creator-url>\n\n")
		fmt.Fprintf(os.Stderr, "Example: hoard -j 8 https://kemono.su/patreon/user/12345\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	if showVersion, _ := fs.GetBool("version"); showVersion {
		fmt.Printf("hoard %s\n", Version)
		return
	}

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	if err := run(fs, fs.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(fs *pflag.FlagSet, rawURL string) error {
	cfg, err := config.LoadConfig(fs)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Without a progress display, warnings are the only live feedback
	var console io.Writer
	if cfg.UI.Progress == config.ProgressNone {
		console = os.Stderr
	}
	logger, closer, err := log.SetupLogger(&cfg.Logging, console)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.NullLogger()
	} else {
		defer closer.Close()
	}
	slog.SetDefault(logger)

	logger.Info("starting hoard", "version", Version, "url", rawURL)

	base, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx, stop := signal.NotifyContext(base, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		// A second signal terminates immediately
		stop()
	}()

	reporter, finish := newReporter(cfg.UI.Progress, cancel)

	mirror, err := newMirror(cfg, reporter, logger)
	if err != nil {
		finish()
		return err
	}

	summary, err := mirror.Run(ctx, rawURL)
	finish()
	if err != nil {
		logger.Error("run failed", "error", err)
		return err
	}

	printSummary(os.Stdout, cfg, summary)
	logger.Info("shutting down")
	return nil
}

func newMirror(cfg *config.Config, reporter domain.Reporter, logger *slog.Logger) (*service.Mirror, error) {
	variant, ok := source.ParseVariant(cfg.Source.Variant)
	if !ok {
		return nil, fmt.Errorf("unknown variant %q", cfg.Source.Variant)
	}

	client, err := source.NewClient(source.Options{
		UserAgent:  cfg.Source.UserAgent,
		Proxy:      cfg.Source.Proxy,
		Timeout:    cfg.Source.Timeout,
		Retries:    cfg.Download.Retries,
		RetryDelay: cfg.Download.RetryDelay,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	transfers := budget.New(cfg.Download.Concurrency)
	details := transfers
	if cfg.Download.DetailConcurrency > 0 {
		details = budget.New(cfg.Download.DetailConcurrency)
	}

	var failures *transfer.FailureLog
	if path := cfg.ErrorLogPath(); path != "" {
		failures, err = transfer.OpenFailureLog(path)
		if err != nil {
			return nil, err
		}
	}

	return service.NewMirror(service.Options{
		Lister:       source.NewLister(client, variant, reporter, logger),
		Details:      source.NewDetailFetcher(client, details, reporter, logger),
		Transfers:    transfer.NewManager(client, transfers, reporter, failures, cfg.Download.Output, logger).WithIdleTimeout(cfg.Download.IdleTimeout),
		Filter:       filter.New(cfg.Download.Match, cfg.Download.Exclude),
		AllowedHosts: cfg.Source.Hosts,
		Reporter:     reporter,
		Logger:       logger,
	}), nil
}

// newReporter picks the progress renderer. finish must be called once the
// run is over so the renderer can flush.
func newReporter(mode config.ProgressMode, cancel context.CancelFunc) (domain.Reporter, func()) {
	interactive := term.IsTerminal(int(os.Stdout.Fd()))

	switch mode {
	case config.ProgressNone:
		return progress.Nop{}, func() {}
	case config.ProgressPlain:
		return progress.NewPlain(os.Stdout), func() {}
	case config.ProgressTUI:
	default:
		if !interactive {
			return progress.NewPlain(os.Stdout), func() {}
		}
	}

	board := progress.NewBoard()
	renderer := tui.Start(board, tui.Options{
		Interactive: interactive,
		OnInterrupt: cancel,
	})
	go func() {
		<-renderer.Exited()
		if renderer.Aborted() {
			os.Exit(130)
		}
	}()

	return board, func() {
		if err := renderer.Stop(); err != nil {
			slog.Warn("progress view failed", "error", err)
		}
	}
}

func printSummary(w io.Writer, cfg *config.Config, s service.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s\n", styles.TitleStyle.Render("Creator:"), s.Creator.Path)
	fmt.Fprintf(w, "  posts %d, files %d", s.Posts, s.Files)
	if s.Skipped > 0 {
		fmt.Fprintf(w, " (%d filtered out)", s.Skipped)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s downloaded, %d already complete, %s\n",
		styles.SuccessStyle.Render(fmt.Sprintf("%d", s.Downloaded)),
		s.Complete,
		styles.FormatBytes(s.Bytes))

	if s.Failed == 0 {
		return
	}
	fmt.Fprintf(w, "  %s\n", styles.ErrorStyle.Render(fmt.Sprintf("%d failed", s.Failed)))
	for i, f := range s.Failures {
		if i == maxListedFailures {
			fmt.Fprintf(w, "    ... and %d more\n", len(s.Failures)-maxListedFailures)
			break
		}
		fmt.Fprintf(w, "    %s: %v\n", f.File.Name, f.Err)
	}
	if path := cfg.ErrorLogPath(); path != "" {
		fmt.Fprintf(w, "  failed URLs recorded in %s\n", path)
	}
}
