package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"crawlurl/config"
	"crawlurl/internal/app/crawler"
	"crawlurl/internal/app/handlers"
	"crawlurl/internal/app/history"
	"crawlurl/internal/app/requester"
	"crawlurl/internal/app/sitemap"
	"crawlurl/internal/app/storage"
	"crawlurl/internal/usecase"
)

func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Collect the URLs of a site, a sitemap or a sitemap file",
		Long: `Collect the URLs reachable from <url>.

In auto mode a URL or path ending in .xml or .xml.gz is read as a sitemap,
anything else is crawled breadth-first. Ctrl+C stops the run and the URLs
found so far are still saved.`,
		Example: `  crawl-url crawl https://example.com
  crawl-url crawl https://example.com -d 2 --delay 0.5 -f json -o out/example.json
  crawl-url crawl https://example.com/sitemap.xml
  crawl-url crawl https://example.com -m sitemap --filter https://example.com/blog`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlCmd,
	}

	flags := cmd.Flags()
	flags.StringP("mode", "m", config.ModeAuto, "Mode: auto, sitemap or crawl")
	flags.StringP("output", "o", "", "Output file (generated from the domain when empty)")
	flags.StringP("format", "f", string(storage.FormatTXT), "Output format: txt, json, csv or md")
	flags.IntP("depth", "d", 3, "Maximum crawl depth (1-10)")
	flags.String("filter", "", "Only keep URLs starting with this prefix")
	flags.Float64("delay", 1.0, "Delay between requests to the same host, in seconds")
	flags.Int("max-urls", 1000, "Maximum number of URLs to collect (1-10000)")
	flags.Int("timeout", int(requester.DefaultTimeout/time.Second), "Request timeout in seconds")
	flags.String("user-agent", requester.DefaultUserAgent, "User-Agent header")
	flags.StringP("config", "c", "", "Configuration file (.toml, .yaml)")
	flags.Bool("history", false, "Record the run in the history database")
	flags.String("history-dir", "", "History database directory (XDG data dir by default)")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args[0])
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cancelOnSignal(ctx, cancel, make(chan os.Signal, 1), func(sig os.Signal) {
		logger.Info("signal received, stopping", zap.String("signal", sig.String()))
		fmt.Fprintln(cmd.ErrOrStderr(), "\nStopping, saving the URLs found so far... (Ctrl+C again to quit)")
	}, syscall.SIGINT, syscall.SIGTERM)

	out := cmd.OutOrStdout()
	if cfg.Verbose {
		handlers.PrintSettings(out, settings(cfg))
	}

	progress := handlers.NewProgress(handlers.DefaultProgressBuffer, logger)
	var wg sync.WaitGroup
	if cfg.Verbose {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handlers.ProcessProgress(ctx, progress, cmd.ErrOrStderr(), logger)
		}()
	}

	started := time.Now()
	res := discover(ctx, cfg, logger, progress)
	progress.Close()
	wg.Wait()
	elapsed := time.Since(started)

	logger.Info("run finished",
		zap.Bool("success", res.Success),
		zap.Int("count", res.Count),
		zap.Int("warnings", len(res.Errors)),
		zap.Duration("elapsed", elapsed))

	var savedPath string
	if res.Success {
		format, _ := storage.ParseFormat(cfg.Format)
		savedPath, err = storage.Save(res.URLs, cfg.URL, format, cfg.Output)
		if err != nil {
			return fmt.Errorf("failed to save results: %w", err)
		}
	}
	handlers.PrintResult(out, res, savedPath, cfg.Verbose)

	if cfg.History {
		if err := recordRun(cmd.Context(), cfg, res, savedPath, started, elapsed); err != nil {
			logger.Warn("failed to record run", zap.Error(err))
		}
	}

	if !res.Success {
		return errRunFailed
	}
	return nil
}

// cancelOnSignal cancels the run on the first of sigs. Handling is then reset
// so a second signal terminates the process the default way.
func cancelOnSignal(ctx context.Context, cancel context.CancelFunc, sigCh chan os.Signal, onSignal func(os.Signal), sigs ...os.Signal) {
	signal.Notify(sigCh, sigs...)
	go func() {
		select {
		case sig := <-sigCh:
			signal.Stop(sigCh)
			onSignal(sig)
			cancel()
		case <-ctx.Done():
			signal.Stop(sigCh)
		}
	}()
}

// buildConfig loads the configuration file, if any, and applies the flags
// the user set on top of it.
func buildConfig(cmd *cobra.Command, target string) (*config.Config, error) {
	flags := cmd.Flags()
	explicit, _ := flags.GetString("config")

	cfg := config.NewConfig()
	if path := config.FindFile(explicit); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if explicit != "" {
		return nil, fmt.Errorf("%s: %w", explicit, config.ErrConfigNotFound)
	}

	cfg.URL = target
	if flags.Changed("mode") {
		cfg.Mode, _ = flags.GetString("mode")
	}
	if flags.Changed("output") {
		cfg.Output, _ = flags.GetString("output")
	}
	if flags.Changed("format") {
		cfg.Format, _ = flags.GetString("format")
	}
	if flags.Changed("depth") {
		cfg.MaxDepth, _ = flags.GetInt("depth")
	}
	if flags.Changed("filter") {
		cfg.Filter, _ = flags.GetString("filter")
	}
	if flags.Changed("delay") {
		cfg.Delay, _ = flags.GetFloat64("delay")
	}
	if flags.Changed("max-urls") {
		cfg.MaxURLs, _ = flags.GetInt("max-urls")
	}
	if flags.Changed("timeout") {
		cfg.ReqTimeout, _ = flags.GetInt("timeout")
	}
	if flags.Changed("user-agent") {
		cfg.UserAgent, _ = flags.GetString("user-agent")
	}
	if flags.Changed("history") {
		cfg.History, _ = flags.GetBool("history")
	}
	if flags.Changed("history-dir") {
		cfg.HistoryDir, _ = flags.GetString("history-dir")
	}
	if getVerboseFlag(cmd) {
		cfg.Verbose = true
	}
	return cfg, nil
}

// discover runs the sitemap service or the crawler, whichever cfg selects.
func discover(ctx context.Context, cfg *config.Config, logger *zap.Logger, sink usecase.ProgressSink) usecase.CrawlResult {
	req := requester.NewRequester(cfg.RequestTimeout(), logger, nil, requester.WithUserAgent(cfg.UserAgent))
	if cfg.UseSitemap() {
		var svc usecase.SitemapService = sitemap.NewService(req.Client(), cfg.UserAgent, logger, sitemap.WithProgress(sink))
		if config.IsSitemapPath(cfg.URL) || !strings.Contains(cfg.URL, "://") {
			return svc.ProcessSitemapURL(ctx, cfg.URL, cfg.Filter)
		}
		return svc.ProcessBaseURL(ctx, cfg.URL, cfg.Filter)
	}

	job, err := cfg.Job()
	if err != nil {
		return usecase.Failed("Configuration error: "+err.Error(), err)
	}
	var c usecase.Crawler = crawler.NewCrawler(req, logger,
		crawler.WithRobots(req.Client(), cfg.UserAgent, cfg.RobotsTimeoutDuration()))
	return c.Crawl(ctx, job, sink)
}

func recordRun(ctx context.Context, cfg *config.Config, res usecase.CrawlResult, output string, started time.Time, elapsed time.Duration) error {
	store, err := history.Open(cfg.HistoryDir)
	if err != nil {
		return err
	}
	defer store.Close()

	mode := config.ModeCrawl
	if cfg.UseSitemap() {
		mode = config.ModeSitemap
	}
	_, err = store.Record(ctx, history.NewRun(cfg.URL, mode, res, output, started, elapsed))
	return err
}

func settings(cfg *config.Config) []handlers.Setting {
	output := cfg.Output
	if output == "" {
		output = "(generated)"
	}
	filter := cfg.Filter
	if filter == "" {
		filter = "(none)"
	}
	return []handlers.Setting{
		{Name: "URL", Value: cfg.URL},
		{Name: "Mode", Value: cfg.Mode},
		{Name: "Max depth", Value: strconv.Itoa(cfg.MaxDepth)},
		{Name: "Delay", Value: cfg.DelayDuration().String()},
		{Name: "Max URLs", Value: strconv.Itoa(cfg.MaxURLs)},
		{Name: "Filter", Value: filter},
		{Name: "Format", Value: cfg.Format},
		{Name: "Output", Value: output},
		{Name: "User-Agent", Value: cfg.UserAgent},
		{Name: "Timeout", Value: cfg.RequestTimeout().String()},
	}
}
