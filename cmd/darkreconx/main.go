package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	darkrecon "github.com/GeoAziz/DarkReconX"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	logLevel     uint32
	configFile   string
	targetsFile  string
	targetType   string
	providers    []string
	noCache      bool
	refreshCache bool
	clearCache   string
	maxWorkers   int
	timeout      int
	deadline     int
	retries      int
	cacheTTL     int
	version      bool
}

var version = "unknown"

// Exit codes: 0 when at least one provider produced data for at least
// one target, 2 when no provider produced any data, 1 for hard errors.
const exitNoData = 2

func main() {
	var opt options
	cmd := &cobra.Command{
		Use:   "darkreconx [flags] <target>...",
		Short: "Modular OSINT reconnaissance scanner",
		Long: `Modular OSINT reconnaissance scanner.

Fans out concurrent enrichment queries for each target to a set of
providers (passive DNS, WHOIS, RDAP, IP geolocation, certificate
transparency, threat intelligence, port/service data), normalizes the
responses and merges them into one unified record per target.

Results are printed as one JSON document per target. Providers that
need credentials are skipped with a warning when the credentials are
not configured.
`,
		Example: `  darkreconx -t domain example.com
  darkreconx -t ip -p ipapi,internetdb 1.1.1.1 8.8.8.8
  darkreconx -t domain -f targets.txt --no-cache`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opt, args)
		},
		SilenceUsage: true,
	}

	cmd.Flags().Uint32VarP(&opt.logLevel, "log-level", "l", 4, "log level; 0=None .. 6=Trace")
	cmd.Flags().StringVarP(&opt.configFile, "config", "c", "", "TOML configuration file")
	cmd.Flags().StringVarP(&opt.targetsFile, "targets-file", "f", "", "file with one target per line")
	cmd.Flags().StringVarP(&opt.targetType, "type", "t", "domain", "target type: domain, ip, url or email")
	cmd.Flags().StringSliceVarP(&opt.providers, "providers", "p", nil, "provider subset, default all supporting the type")
	cmd.Flags().BoolVar(&opt.noCache, "no-cache", false, "bypass the result cache entirely")
	cmd.Flags().BoolVar(&opt.refreshCache, "refresh", false, "bypass cache reads but write fresh results")
	cmd.Flags().StringVar(&opt.clearCache, "clear-cache", "", "clear cache entries matching the pattern ('*' for all) and exit")
	cmd.Flags().IntVar(&opt.maxWorkers, "max-workers", 0, "max provider calls in flight, default 50")
	cmd.Flags().IntVar(&opt.timeout, "timeout", 0, "per-provider timeout in seconds, overrides each provider's default")
	cmd.Flags().IntVar(&opt.deadline, "deadline", 0, "per-target deadline in seconds, default 60")
	cmd.Flags().IntVar(&opt.retries, "retry-attempts", 0, "max attempts per provider call, default 3")
	cmd.Flags().IntVar(&opt.cacheTTL, "cache-ttl", 0, "cache TTL in seconds, default 86400")
	cmd.Flags().BoolVarP(&opt.version, "version", "v", false, "print the version and exit")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opt options, args []string) error {
	if opt.version {
		fmt.Println(version)
		return nil
	}

	// Map the numeric log level to logrus
	switch opt.logLevel {
	case 0:
		logrus.SetLevel(logrus.PanicLevel)
	case 1:
		logrus.SetLevel(logrus.FatalLevel)
	case 2:
		logrus.SetLevel(logrus.ErrorLevel)
	case 3:
		logrus.SetLevel(logrus.WarnLevel)
	case 4:
		logrus.SetLevel(logrus.InfoLevel)
	case 5:
		logrus.SetLevel(logrus.DebugLevel)
	case 6:
		logrus.SetLevel(logrus.TraceLevel)
	default:
		return fmt.Errorf("invalid log level: %d", opt.logLevel)
	}

	cfg, err := loadConfig(opt.configFile)
	if err != nil {
		return err
	}
	cfg.applyEnv()

	// Flags win over environment and file
	if opt.maxWorkers > 0 {
		cfg.Engine.MaxWorkers = opt.maxWorkers
	}
	if opt.timeout > 0 {
		cfg.Engine.Timeout = opt.timeout
	}
	if opt.deadline > 0 {
		cfg.Engine.Deadline = opt.deadline
	}
	if opt.retries > 0 {
		cfg.Engine.RetryAttempts = opt.retries
	}
	if opt.cacheTTL > 0 {
		cfg.Cache.TTL = opt.cacheTTL
	}
	noCache := opt.noCache || envBool(envNoCache)
	refresh := opt.refreshCache || envBool(envRefreshCache)

	typ := darkrecon.TargetType(opt.targetType)

	targets := args
	if opt.targetsFile != "" {
		fromFile, err := readTargets(opt.targetsFile)
		if err != nil {
			return err
		}
		targets = append(targets, fromFile...)
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	var cache *darkrecon.Cache
	if !noCache {
		backend, err := buildCacheBackend(cfg.Cache)
		if err != nil {
			return err
		}
		cache = darkrecon.NewCache(darkrecon.CacheOptions{
			TTL:     time.Duration(cfg.Cache.TTL) * time.Second,
			Backend: backend,
		})
	}

	if opt.clearCache != "" {
		if cache == nil {
			return fmt.Errorf("no cache configured")
		}
		pattern := opt.clearCache
		if pattern == "*" {
			pattern = ""
		}
		n := cache.Clear(pattern)
		fmt.Fprintf(os.Stderr, "removed %d cache entries\n", n)
		return cache.Close()
	}

	if len(targets) == 0 {
		return fmt.Errorf("no targets given")
	}

	var scanLog *darkrecon.ScanLog
	if cfg.ScanLog.File != "" || cfg.ScanLog.Syslog != "" {
		scanLog, err = darkrecon.NewScanLog(darkrecon.ScanLogOptions{
			OutputFile: cfg.ScanLog.File,
			Syslog:     cfg.ScanLog.Syslog,
		})
		if err != nil {
			return err
		}
		defer scanLog.Close()
	}

	eng := darkrecon.NewEngine(reg, darkrecon.EngineOptions{
		MaxWorkers:      int64(cfg.Engine.MaxWorkers),
		TargetDeadline:  time.Duration(cfg.Engine.Deadline) * time.Second,
		ProviderTimeout: time.Duration(cfg.Engine.Timeout) * time.Second,
		Retry:           darkrecon.RetryPolicy{Attempts: cfg.Engine.RetryAttempts},
		NoCache:         noCache,
		RefreshCache:    refresh,
		Cache:           cache,
		Credentials:     credentialLookup(cfg),
		ScanLog:         scanLog,
	})
	defer eng.Close()

	// Cancel the scan on SIGINT/SIGTERM, partial results still print
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var bar *progressbar.ProgressBar
	if len(targets) > 1 {
		bar = progressbar.NewOptions(len(targets),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("scanning"),
			progressbar.OptionClearOnFinish(),
		)
	}

	// Fan out one scan per target so the progress bar advances as each
	// target completes. The engine bounds provider concurrency globally.
	results := make([]*darkrecon.ScanResult, len(targets))
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			results[i], errs[i] = eng.EnrichTarget(ctx, target, typ, opt.providers)
			if bar != nil {
				bar.Add(1)
			}
		}(i, target)
	}
	wg.Wait()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	var withData int
	for i, res := range results {
		if errs[i] != nil {
			return errs[i]
		}
		if err := enc.Encode(res); err != nil {
			return err
		}
		if res.HasData() {
			withData++
		}
		printSummary(res)
	}

	if withData == 0 {
		os.Exit(exitNoData)
	}
	return nil
}

// printSummary writes a one-line colored status per target to stderr.
func printSummary(res *darkrecon.ScanResult) {
	var ok, skipped, failed, cached int
	for _, s := range res.Statuses {
		switch {
		case s.FromCache:
			cached++
			ok++
		case s.OK:
			ok++
		case s.Skipped():
			skipped++
		default:
			failed++
		}
	}
	status := color.GreenString("ok")
	if !res.HasData() {
		status = color.RedString("no data")
	} else if failed > 0 {
		status = color.YellowString("partial")
	}
	fmt.Fprintf(os.Stderr, "%s %s: %d providers ok (%d cached), %d skipped, %d failed [%dms]\n",
		status, res.Target, ok, cached, skipped, failed, res.ElapsedMS)
	for _, s := range res.Statuses {
		if s.Err != nil && !s.Skipped() {
			fmt.Fprintf(os.Stderr, "  %s %s: %s\n", color.RedString("!"), s.Provider, s.Error)
		}
	}
}

// readTargets reads one target per line, ignoring blanks and #-comments.
func readTargets(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var targets []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, line)
	}
	return targets, scanner.Err()
}
