package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"snscraper/internal/runner"
	"snscraper/pkg/automation"
	"snscraper/pkg/checkpoint"
	"snscraper/pkg/config"
	"snscraper/pkg/crawler"
	"snscraper/pkg/credentials"
	"snscraper/pkg/events"
	"snscraper/pkg/logger"
	"snscraper/pkg/ratelimit"
	"snscraper/pkg/timeshard"
)

var (
	// Crawl command flags
	sinceFlag     string
	untilFlag     string
	forwardFlag   bool
	forceRestart  bool
	statusOnly    bool
	taskIDFlag    string
	accountFlag   string
	estimatorFlag string
	storageFlag   string
	rateLimitFlag int
)

// crawlCmd represents the crawl command
var crawlCmd = &cobra.Command{
	Use:   "crawl <keyword>...",
	Short: "Crawl keyword search results over a time range",
	Long: `Crawl search results for one or more keywords over a time range.

The range is split into hour-aligned shards sized so each stays under the
platform's pagination cap, then fetched page by page. Progress is
checkpointed after every page, so an interrupted crawl resumes where it
left off; use --force-restart to discard the checkpoint and start over.

Crawling requires a confirmed login (run 'snscraper login' first).`,
	Example: `  # Crawl the last week of results for a keyword
  snscraper crawl golang

  # Crawl a specific range, several keywords concurrently
  snscraper crawl golang rustlang --since 2026-08-01 --until 2026-08-28

  # Incremental forward crawl from the last run up to now
  snscraper crawl golang --since 2026-08-21 --forward

  # Inspect checkpoint state without crawling
  snscraper crawl golang --status

  # Discard the checkpoint and restart
  snscraper crawl golang --force-restart`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	crawlCmd.Flags().StringVar(&sinceFlag, "since", "", "range start (2006-01-02 or RFC3339, default: 7 days ago)")
	crawlCmd.Flags().StringVar(&untilFlag, "until", "", "range end (2006-01-02 or RFC3339, default: now)")
	crawlCmd.Flags().BoolVar(&forwardFlag, "forward", false, "crawl oldest-first for incremental forward runs")
	crawlCmd.Flags().BoolVar(&forceRestart, "force-restart", false, "discard existing checkpoints and start over")
	crawlCmd.Flags().BoolVar(&statusOnly, "status", false, "print checkpoint status and exit")
	crawlCmd.Flags().StringVar(&taskIDFlag, "task-id", "", "explicit task ID (default: derived from keyword and range)")
	crawlCmd.Flags().StringVarP(&accountFlag, "account", "a", "", "use a specific stored account")
	crawlCmd.Flags().StringVar(&estimatorFlag, "estimator", "", "result count estimator: probe or linear")
	crawlCmd.Flags().StringVar(&storageFlag, "storage", "", "checkpoint backend: file or redis")
	crawlCmd.Flags().IntVar(&rateLimitFlag, "rate-limit", 0, "requests per minute")
}

func runCrawl(cmd *cobra.Command, args []string) error {
	flags := make(map[string]interface{})
	if estimatorFlag != "" {
		flags["estimator"] = estimatorFlag
	}
	if storageFlag != "" {
		flags["storage"] = storageFlag
	}
	if rateLimitFlag > 0 {
		flags["rate-limit"] = rateLimitFlag
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	logger.Initialize(&cfg.Logging)
	log := logger.GetLogger()

	since, until, err := parseRange(sinceFlag, untilFlag)
	if err != nil {
		return err
	}

	store, err := newCheckpointStore(cfg, log)
	if err != nil {
		return err
	}

	direction := checkpoint.DirectionBackward
	if forwardFlag {
		direction = checkpoint.DirectionForward
	}

	tasks := make([]crawler.Task, 0, len(args))
	for _, keyword := range args {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		tasks = append(tasks, crawler.Task{
			ID:        taskID(keyword, since, until),
			Keyword:   keyword,
			Since:     since,
			Until:     until,
			Direction: direction,
		})
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no keywords given")
	}
	if taskIDFlag != "" {
		if len(tasks) > 1 {
			return fmt.Errorf("--task-id cannot be combined with multiple keywords")
		}
		tasks[0].ID = taskIDFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if statusOnly {
		return printStatus(ctx, store, tasks)
	}

	if forceRestart {
		for _, task := range tasks {
			if err := store.Delete(ctx, task.ID); err != nil {
				return fmt.Errorf("failed to discard checkpoint for %s: %w", task.ID, err)
			}
			log.WithField("task_id", task.ID).Info("checkpoint discarded")
		}
	}

	promptPassphraseIfNeeded()
	account, err := loadAccount(cfg, accountFlag)
	if err != nil {
		return err
	}

	client := automation.NewClient(cfg.Platform.AutomationURL, cfg.Crawl.FetchTimeout, log)
	client.SetHeader("User-Agent", cfg.Platform.UserAgent)
	client.SetHeader("Cookie", cookieHeader(account.Cookies))
	log.WithField("account", account.Identity).Info("using stored credentials")

	limiter := ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute, cfg.RateLimit.BurstSize)

	var estimator timeshard.Estimator
	switch cfg.Crawl.Estimator {
	case "linear":
		estimator = timeshard.LinearEstimator{PerHour: cfg.Crawl.LinearPerHour}
	default:
		estimator = timeshard.NewProbeEstimator(client, limiter, log)
	}
	planner := timeshard.NewPlanner(estimator, cfg.Crawl.MaxResultsPerShard, cfg.Crawl.MinShardHours, log)

	sink, closeSinks := buildSinks(cfg, log)
	defer closeSinks()

	orchestrator := crawler.New(client, planner, store, limiter, sink, crawler.NewGuard(), log)

	return runTasks(ctx, cfg, orchestrator, tasks, log)
}

// runTasks runs the tasks through the concurrent runner and reports a
// combined outcome
func runTasks(ctx context.Context, cfg *config.Config, orchestrator *crawler.Orchestrator, tasks []crawler.Task, log logger.Logger) error {
	workers := cfg.Crawl.ConcurrentTasks
	if workers > len(tasks) {
		workers = len(tasks)
	}

	r := runner.New(workers, orchestrator, log)
	r.Start()

	go func() {
		<-ctx.Done()
		r.Abort()
	}()

	for _, task := range tasks {
		if err := r.Submit(task); err != nil {
			log.WithError(err).WithField("task_id", task.ID).Error("failed to queue task")
		}
	}

	done := make(chan struct{})
	var failed int
	go func() {
		defer close(done)
		for result := range r.Results() {
			if result.Err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "task %s failed after %s: %v\n",
					result.Task.ID, result.Duration.Round(time.Second), result.Err)
				continue
			}
			fmt.Printf("task %s completed in %s\n",
				result.Task.ID, result.Duration.Round(time.Second))
		}
	}()

	r.Stop()
	<-done

	if err := ctx.Err(); err != nil {
		fmt.Println("crawl interrupted; checkpoints saved, rerun to resume")
		return nil
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", failed, len(tasks))
	}
	return nil
}

// printStatus shows the persisted checkpoint for each task
func printStatus(ctx context.Context, store checkpoint.Store, tasks []crawler.Task) error {
	for _, task := range tasks {
		cp, found, err := store.Load(ctx, task.ID)
		if err != nil {
			return fmt.Errorf("failed to load checkpoint for %s: %w", task.ID, err)
		}
		if !found {
			fmt.Printf("%s: no checkpoint\n", task.ID)
			continue
		}
		fmt.Printf("%s: %d shards completed, current shard %s..%s at page %d (%s, saved %s)\n",
			task.ID,
			len(cp.CompletedShards),
			cp.ShardStart.Format(time.RFC3339),
			cp.ShardEnd.Format(time.RFC3339),
			cp.CurrentPage,
			cp.Direction,
			cp.SavedAt.Format(time.RFC3339))
	}
	return nil
}

// newCheckpointStore builds the configured checkpoint backend
func newCheckpointStore(cfg *config.Config, log logger.Logger) (checkpoint.Store, error) {
	switch cfg.Storage.Backend {
	case "redis":
		return checkpoint.NewRedisStore(
			cfg.Storage.Redis.Addr,
			cfg.Storage.Redis.Password,
			cfg.Storage.Redis.DB,
			cfg.Storage.Namespace,
			cfg.Storage.Redis.TTL,
		), nil
	default:
		return checkpoint.NewFileStore(cfg.Storage.DataDir, log)
	}
}

// buildSinks assembles the event fan-out: always the log sink, plus Kafka
// when configured. The returned func flushes and closes owned sinks.
func buildSinks(cfg *config.Config, log logger.Logger) (events.Sink, func()) {
	sinks := events.MultiSink{events.NewLogSink(log)}

	var kafkaSink *events.KafkaSink
	if cfg.Events.Kafka.Enabled {
		kafkaSink = events.NewKafkaSink(cfg.Events.Kafka.Broker, cfg.Events.Kafka.Topic, log)
		sinks = append(sinks, kafkaSink)
	}

	return sinks, func() {
		if kafkaSink != nil {
			if err := kafkaSink.Close(); err != nil {
				log.WithError(err).Warn("failed to close kafka sink")
			}
		}
	}
}

// loadAccount retrieves the stored account to crawl with
func loadAccount(cfg *config.Config, identity string) (*credentials.Account, error) {
	credManager, err := newCredentialManager(cfg)
	if err != nil {
		return nil, err
	}

	if identity != "" {
		account, err := credManager.Retrieve(identity)
		if err != nil {
			return nil, fmt.Errorf("account %q not found, run 'snscraper login --list': %w", identity, err)
		}
		return account, nil
	}

	accounts, err := credManager.List()
	if err != nil || len(accounts) == 0 {
		return nil, fmt.Errorf("no stored credentials, run 'snscraper login' first")
	}
	// Deterministic pick when several accounts are stored.
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Identity < accounts[j].Identity })
	return accounts[0], nil
}

// cookieHeader renders stored cookies as a Cookie header value
func cookieHeader(cookies map[string]string) string {
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+cookies[name])
	}
	return strings.Join(pairs, "; ")
}

// parseRange parses the --since/--until flags, defaulting to the last week
func parseRange(since, until string) (time.Time, time.Time, error) {
	end := time.Now()
	if until != "" {
		t, err := parseTime(until)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --until: %w", err)
		}
		end = t
	}

	start := end.Add(-7 * 24 * time.Hour)
	if since != "" {
		t, err := parseTime(since)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --since: %w", err)
		}
		start = t
	}

	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("--since (%s) must be before --until (%s)", start, end)
	}
	return start, end, nil
}

func parseTime(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q (want 2006-01-02 or RFC3339)", value)
}

// taskID derives a stable task identifier from the keyword and range so an
// interrupted run resumes under the same checkpoint
func taskID(keyword string, since, until time.Time) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, keyword)
	return fmt.Sprintf("%s-%s-%s", slug,
		timeshard.FloorToHour(since).UTC().Format("2006010215"),
		timeshard.CeilToHour(until).UTC().Format("2006010215"))
}
