package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/reqflow/packages/core/config"
	"github.com/abdul-hamid-achik/reqflow/packages/core/env"
	"github.com/abdul-hamid-achik/reqflow/packages/core/runner"
	"github.com/abdul-hamid-achik/reqflow/packages/export"
	"github.com/abdul-hamid-achik/reqflow/packages/history"
	"github.com/abdul-hamid-achik/reqflow/packages/http"
	"github.com/abdul-hamid-achik/reqflow/packages/redact"
	"github.com/abdul-hamid-achik/reqflow/packages/report"
	"github.com/abdul-hamid-achik/reqflow/packages/value"
	"github.com/abdul-hamid-achik/reqflow/packages/vars"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"pkt.systems/pslog"
)

var runCmd = &cobra.Command{
	Use:   "run <file|directory>...",
	Short: "Run scenario files",
	Long: `Run one or more scenario files, or every scenario file under a
directory.

Examples:
  reqflow run api.reqflow
  reqflow run ./scenarios/ --jobs 4 --repeat 3
  reqflow run login.reqflow --variable host=staging.example.com
  reqflow run api.reqflow --secret token=abc --report-json out.json
  reqflow run api.reqflow --watch`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

// WatchDebounceDelay is the debounce delay for file watch events
const WatchDebounceDelay = 300 * time.Millisecond

var (
	configFlag         string
	variableFlags      []string
	secretFlags        []string
	variablesFileFlags []string

	jobsFlag            int
	repeatFlag          int
	rateFlag            float64
	failFastFlag        bool
	continueOnErrorFlag bool

	retryFlag          int
	retryIntervalFlag  string
	delayFlag          string
	timeoutFlag        string
	connectTimeoutFlag string
	maxRedirectsFlag   int
	locationFlag       bool
	insecureFlag       bool
	proxyFlag          string

	cookiesFlag   string
	cookieJarFlag string

	reportJSONFlag  string
	reportJUnitFlag string
	curlFileFlag    string
	historyDBFlag   string

	watchFlag   bool
	verboseFlag int // 0=off, 1=-v, 2=-vv
	noColorFlag bool
)

func init() {
	runCmd.Flags().StringVar(&configFlag, "config", os.Getenv("REQFLOW_CONFIG"), "Path to config file (env: REQFLOW_CONFIG)")
	runCmd.Flags().StringArrayVar(&variableFlags, "variable", nil, "Define a variable (name=value, repeatable)")
	runCmd.Flags().StringArrayVar(&secretFlags, "secret", nil, "Define a secret variable, redacted from all output (name=value, repeatable)")
	runCmd.Flags().StringArrayVar(&variablesFileFlags, "variables-file", nil, "Load variables from a name=value file (repeatable)")

	runCmd.Flags().IntVar(&jobsFlag, "jobs", 0, "Worker count (default: number of CPUs, 1 runs sequentially)")
	runCmd.Flags().IntVar(&repeatFlag, "repeat", 0, "Run each file this many times")
	runCmd.Flags().Float64Var(&rateFlag, "rate", 0, "Maximum job starts per second")
	runCmd.Flags().BoolVar(&failFastFlag, "fail-fast", false, "Stop scheduling new files after the first failure")
	runCmd.Flags().BoolVar(&continueOnErrorFlag, "continue-on-error", false, "Keep running a file's remaining entries after a failure")

	runCmd.Flags().IntVar(&retryFlag, "retry", 0, "Retry failing entries (count, -1 for unlimited)")
	runCmd.Flags().StringVar(&retryIntervalFlag, "retry-interval", "", "Pause between retries (e.g. 1s)")
	runCmd.Flags().StringVar(&delayFlag, "delay", "", "Pause before each entry's first attempt (e.g. 250ms)")
	runCmd.Flags().StringVar(&timeoutFlag, "timeout", "", "Per-attempt timeout (e.g. 30s)")
	runCmd.Flags().StringVar(&connectTimeoutFlag, "connect-timeout", "", "Connection timeout (e.g. 10s)")
	runCmd.Flags().IntVar(&maxRedirectsFlag, "max-redirects", 0, "Maximum redirects to follow")
	runCmd.Flags().BoolVarP(&locationFlag, "location", "L", false, "Follow redirects")
	runCmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", false, "Skip TLS certificate verification")
	runCmd.Flags().StringVar(&proxyFlag, "proxy", "", "Proxy URL")

	runCmd.Flags().StringVarP(&cookiesFlag, "cookies", "b", "", "Read cookies from a Netscape cookie file")
	runCmd.Flags().StringVarP(&cookieJarFlag, "cookie-jar", "c", "", "Write cookies to a Netscape cookie file after the run")

	runCmd.Flags().StringVar(&reportJSONFlag, "report-json", "", "Write a JSON report to this file")
	runCmd.Flags().StringVar(&reportJUnitFlag, "report-junit", "", "Write a JUnit XML report to this file")
	runCmd.Flags().StringVar(&curlFileFlag, "curl-file", "", "Write executed requests as curl commands to this file")
	runCmd.Flags().StringVar(&historyDBFlag, "history-db", "", "Record the run in this SQLite database")

	runCmd.Flags().BoolVar(&watchFlag, "watch", false, "Re-run when scenario files change")
	runCmd.Flags().CountVarP(&verboseFlag, "verbose", "v", "Verbose output (-v, -vv for more detail)")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output")
}

func runCommand(cmd *cobra.Command, args []string) error {
	fileConfig, err := config.Load(configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitConfigError)
	}
	cfg := fileConfig.Merge(flagOverrides(cmd))

	store, err := buildStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitConfigError)
	}

	filter := redact.NewFilter()
	for _, s := range store.SecretValues() {
		filter.Add(s)
	}

	stdout := redact.NewWriter(os.Stdout, filter)
	stderr := redact.NewWriter(os.Stderr, filter)
	defer stdout.Flush()
	defer stderr.Flush()

	logLevel := pslog.WarnLevel
	if verboseFlag > 1 {
		logLevel = pslog.DebugLevel
	}
	logger := pslog.NewWithOptions(stderr, pslog.Options{Mode: pslog.ModeConsole, MinLevel: logLevel})

	console := report.NewConsoleFormatter(
		report.WithWriter(stdout),
		report.WithVerbose(cfg.GetVerbose() || verboseFlag > 0),
		report.WithNoColor(cfg.GetNoColor()),
	)

	files, err := collectFiles(args)
	if err != nil {
		console.FormatError(err)
		stdout.Flush()
		os.Exit(ExitConfigError)
	}
	if len(files) == 0 {
		console.FormatError(fmt.Errorf("no scenario files found"))
		stdout.Flush()
		os.Exit(ExitConfigError)
	}

	runOpts, err := buildRunOptions(cfg)
	if err != nil {
		console.FormatError(err)
		stdout.Flush()
		os.Exit(ExitConfigError)
	}

	clientOpts := []http.ClientOption{http.WithUserAgent("reqflow/" + version)}
	if cfg.Proxy != "" {
		clientOpts = append(clientOpts, http.WithProxy(cfg.Proxy))
	}
	client := http.NewClient(clientOpts...)

	fileRunner := runner.NewFileRunner(client, filter, logger, runOpts)

	schedOpts := []runner.SchedulerOption{
		runner.WithCompletionHook(func(_ runner.Job, res *runner.FileResult) {
			console.FormatFile(res)
		}),
	}
	if cfg.Jobs > 0 {
		schedOpts = append(schedOpts, runner.WithWorkers(cfg.Jobs))
	}
	if cfg.Rate > 0 {
		schedOpts = append(schedOpts, runner.WithRateLimit(cfg.Rate))
	}
	if cfg.GetFailFast() {
		schedOpts = append(schedOpts, runner.WithFailFast())
	}
	sched := runner.NewScheduler(fileRunner, logger, schedOpts...)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runOnce := func() int {
		start := time.Now()
		results := sched.Run(ctx, buildJobs(files, cfg.Repeat), store)
		rep := report.New(results, start)
		console.FormatSummary(rep)
		writeArtifacts(ctx, cfg, rep, filter, logger)
		stdout.Flush()
		return exitCode(rep.Class())
	}

	// repeat -1 loops whole runs until interrupted.
	if cfg.Repeat < 0 && !watchFlag {
		code := 0
		for ctx.Err() == nil {
			code = runOnce()
		}
		if code != 0 {
			os.Exit(code)
		}
		return nil
	}

	code := runOnce()
	if !watchFlag {
		if code != 0 {
			os.Exit(code)
		}
		return nil
	}
	return watch(ctx, cmd, files, runOnce)
}

// watch re-runs the whole set when any scenario file changes, debouncing
// rapid editor save bursts.
func watch(ctx context.Context, cmd *cobra.Command, files []string, runOnce func() int) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	watchedDirs := make(map[string]bool)
	for _, file := range files {
		dir := filepath.Dir(file)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				fmt.Fprintf(cmd.OutOrStderr(), "failed to watch %s: %v\n", dir, err)
			}
			watchedDirs[dir] = true
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n")

	var debounceTimer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) && isScenarioFile(event.Name) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "\nFile changed: %s\nRe-running...\n", event.Name)
					runOnce()
					fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n")
				})
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.OutOrStderr(), "watcher error: %v\n", werr)
		}
	}
}

// flagOverrides turns the flags the user actually set into a config layer.
func flagOverrides(cmd *cobra.Command) *config.Config {
	over := &config.Config{
		Timeout:        timeoutFlag,
		ConnectTimeout: connectTimeoutFlag,
		RetryInterval:  retryIntervalFlag,
		Delay:          delayFlag,
		MaxRedirects:   maxRedirectsFlag,
		Proxy:          proxyFlag,
		Jobs:           jobsFlag,
		Repeat:         repeatFlag,
		Rate:           rateFlag,
		CookieInput:    cookiesFlag,
		CookieOutput:   cookieJarFlag,
		ReportJSON:     reportJSONFlag,
		ReportJUnit:    reportJUnitFlag,
		HistoryDB:      historyDBFlag,
	}
	if cmd.Flags().Changed("retry") {
		over.Retries = retryFlag
	}
	if cmd.Flags().Changed("location") {
		over.FollowRedirects = config.BoolPtr(locationFlag)
	}
	if cmd.Flags().Changed("insecure") {
		over.Insecure = config.BoolPtr(insecureFlag)
	}
	if cmd.Flags().Changed("fail-fast") {
		over.FailFast = config.BoolPtr(failFastFlag)
	}
	if cmd.Flags().Changed("continue-on-error") {
		over.ContinueOnError = config.BoolPtr(continueOnErrorFlag)
	}
	if cmd.Flags().Changed("verbose") {
		over.Verbose = config.BoolPtr(verboseFlag > 0)
	}
	if cmd.Flags().Changed("no-color") {
		over.NoColor = config.BoolPtr(noColorFlag)
	}
	return over
}

// envVarPrefix exposes selected process environment entries as variables,
// lowest precedence of all sources.
const envVarPrefix = "REQFLOW_VAR_"

// buildStore layers variables in increasing precedence: environment,
// config variables, config secrets, variables files, --variable, --secret.
// A name bound both public and secret anywhere in the run is fatal.
func buildStore(cfg *config.Config) (*vars.Store, error) {
	public := make(map[string]string)
	secret := make(map[string]string)
	var order []string
	setVar := func(m map[string]string, name, val string) {
		if _, seenPub := public[name]; !seenPub {
			if _, seenSec := secret[name]; !seenSec {
				order = append(order, name)
			}
		}
		m[name] = val
	}

	for _, kv := range os.Environ() {
		name, val, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, envVarPrefix) && len(name) > len(envVarPrefix) {
			setVar(public, strings.TrimPrefix(name, envVarPrefix), val)
		}
	}
	for _, name := range sortedKeys(cfg.Variables) {
		setVar(public, name, cfg.Variables[name])
	}
	for _, name := range sortedKeys(cfg.Secrets) {
		setVar(secret, name, cfg.Secrets[name])
	}
	for _, path := range variablesFileFlags {
		pairs, err := env.LoadVariablesFile(path)
		if err != nil {
			return nil, err
		}
		for _, p := range pairs {
			setVar(public, p.Name, p.Value)
		}
	}
	for _, def := range variableFlags {
		name, val, err := splitPair(def)
		if err != nil {
			return nil, fmt.Errorf("--variable %s: %w", def, err)
		}
		setVar(public, name, val)
	}
	for _, def := range secretFlags {
		name, val, err := splitPair(def)
		if err != nil {
			return nil, fmt.Errorf("--secret %s: %w", def, err)
		}
		setVar(secret, name, val)
	}

	store := vars.NewStore()
	for _, name := range order {
		pubVal, isPub := public[name]
		secVal, isSec := secret[name]
		if isPub && isSec {
			return nil, fmt.Errorf("variable %q is defined both as a variable and a secret", name)
		}
		if isSec {
			store.SetSecret(name, value.NewString(secVal))
		} else {
			store.Set(name, value.NewString(pubVal))
		}
	}
	return store, nil
}

func buildRunOptions(cfg *config.Config) (*runner.Options, error) {
	timeout, err := config.Duration(cfg.Timeout, http.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	connectTimeout, err := config.Duration(cfg.ConnectTimeout, http.DefaultConnectTimeout)
	if err != nil {
		return nil, err
	}
	retryInterval, err := config.Duration(cfg.RetryInterval, runner.DefaultRetryInterval)
	if err != nil {
		return nil, err
	}
	delay, err := config.Duration(cfg.Delay, 0)
	if err != nil {
		return nil, err
	}
	maxRedirects := cfg.MaxRedirects
	if maxRedirects == 0 {
		maxRedirects = http.DefaultMaxRedirects
	}
	return &runner.Options{
		Timeout:         timeout,
		ConnectTimeout:  connectTimeout,
		FollowRedirect:  cfg.GetFollowRedirects(),
		MaxRedirects:    maxRedirects,
		Insecure:        cfg.GetInsecure(),
		Retry:           cfg.Retries,
		RetryInterval:   retryInterval,
		Delay:           delay,
		ContinueOnError: cfg.GetContinueOnError(),
		Verbose:         cfg.GetVerbose(),
		CookieInput:     cfg.CookieInput,
		CookieOutput:    cfg.CookieOutput,
	}, nil
}

// writeArtifacts emits the optional report files and records the run.
// Artifact failures are warnings, the run outcome already stands.
func writeArtifacts(ctx context.Context, cfg *config.Config, rep *report.RunReport, filter *redact.Filter, logger pslog.Logger) {
	if cfg.ReportJSON != "" {
		if err := writeFileWith(cfg.ReportJSON, func(f *os.File) error {
			return report.NewJSONFormatter(f, filter).Write(rep)
		}); err != nil {
			logger.Warn("failed to write JSON report", "path", cfg.ReportJSON, "error", err.Error())
		}
	}
	if cfg.ReportJUnit != "" {
		if err := writeFileWith(cfg.ReportJUnit, func(f *os.File) error {
			return report.NewJUnitFormatter(f, filter).Write(rep)
		}); err != nil {
			logger.Warn("failed to write JUnit report", "path", cfg.ReportJUnit, "error", err.Error())
		}
	}
	if curlFileFlag != "" {
		if err := writeFileWith(curlFileFlag, func(f *os.File) error {
			return export.NewCurlWriter(f, filter).WriteRun(rep.Files)
		}); err != nil {
			logger.Warn("failed to write curl transcript", "path", curlFileFlag, "error", err.Error())
		}
	}
	if cfg.HistoryDB != "" {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			logger.Warn("failed to open history database", "path", cfg.HistoryDB, "error", err.Error())
			return
		}
		defer store.Close()
		if err := store.Record(ctx, rep); err != nil {
			logger.Warn("failed to record run", "error", err.Error())
		}
	}
}

func writeFileWith(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func buildJobs(files []string, repeat int) []runner.Job {
	if repeat < 1 {
		repeat = 1
	}
	var jobs []runner.Job
	seq := 0
	for rep := 1; rep <= repeat; rep++ {
		for _, f := range files {
			job := runner.Job{Seq: seq, Path: f}
			if repeat > 1 {
				job.Repetition = rep
			}
			jobs = append(jobs, job)
			seq++
		}
	}
	return jobs
}

func collectFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && isScenarioFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func isScenarioFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".reqflow", ".http":
		return true
	}
	return false
}

func splitPair(def string) (string, string, error) {
	name, val, found := strings.Cut(def, "=")
	if !found || strings.TrimSpace(name) == "" {
		return "", "", fmt.Errorf("expected name=value")
	}
	return strings.TrimSpace(name), val, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
