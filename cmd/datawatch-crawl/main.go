// Command datawatch-crawl is the crawler CLI of spec §6: it discovers
// target URLs from one or more discovery roots, polls each on its own
// cadence, and writes every observed revision into a checkpoint Collection,
// optionally summarizing (compacting) into a second Collection on its own
// delay.
//
// Grounded on original_source/src/crawler.py for flag names and wiring;
// flag parsing and the options/parseFlags/fatal shape follow the teacher's
// cmd/arena-cache-inspect/main.go.
//
// © 2025 arena-cache authors. MIT License.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"syscall"
	"time"

	"github.com/Voskan/datawatch/internal/codec"
	"github.com/Voskan/datawatch/pkg/collection"
	"github.com/Voskan/datawatch/pkg/fetcher"
	"github.com/Voskan/datawatch/pkg/scheduler"
	"github.com/Voskan/datawatch/pkg/storage"
)

type stringList []string

func (s *stringList) String() string { return fmt.Sprint([]string(*s)) }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type options struct {
	roots               stringList
	targetRegexes       stringList
	userAgent           string
	targetFetchDelay    time.Duration
	rediscoveryDelay    time.Duration
	fetchingRateLimit   time.Duration
	checkpointOutputDir string
	summaryOutputDir    string
	summaryDelay        time.Duration
	checkpointDelay     time.Duration
	exponentialBackoff  float64
}

func parseFlags() *options {
	opts := &options{}
	fset := flag.NewFlagSet("datawatch-crawl", flag.ExitOnError)
	fset.Var(&opts.roots, "root", "Discovery root URL (repeatable).")
	fset.Var(&opts.targetRegexes, "target_regex", "Regex for filtering target URLs, match-any (repeatable).")
	fset.StringVar(&opts.userAgent, "user_agent", "", "User agent to use for fetching.")
	fset.DurationVar(&opts.targetFetchDelay, "target_fetch_delay", 60*time.Second, "Desired fetch delay for each target.")
	fset.DurationVar(&opts.rediscoveryDelay, "rediscovery_delay", 300*time.Second, "Desired fetch delay for each discovery root.")
	fset.DurationVar(&opts.fetchingRateLimit, "fetching_rate_limit", 200*time.Millisecond, "Minimum delay between end of a fetch and start of next.")
	fset.StringVar(&opts.checkpointOutputDir, "checkpoint_output_dir", "", "Output directory for checkpoints.")
	fset.StringVar(&opts.summaryOutputDir, "summary_output_dir", "", "Output directory for summaries.")
	fset.DurationVar(&opts.summaryDelay, "summary_delay", time.Hour, "Desired delay between summaries.")
	fset.DurationVar(&opts.checkpointDelay, "checkpoint_delay", 30*time.Second, "Desired delay between checkpoint attempts.")
	fset.Float64Var(&opts.exponentialBackoff, "exponential_backoff", 0, "Increase time to next fetch for resources that don't change much (0 disables).")
	fset.Parse(os.Args[1:])

	if len(opts.roots) == 0 {
		fatal(fmt.Errorf("at least one --root is required"))
	}
	if len(opts.targetRegexes) == 0 {
		fatal(fmt.Errorf("at least one --target_regex is required"))
	}
	if opts.userAgent == "" {
		fatal(fmt.Errorf("--user_agent is required"))
	}
	if opts.checkpointOutputDir == "" {
		fatal(fmt.Errorf("--checkpoint_output_dir is required"))
	}
	return opts
}

func nowVersion() string {
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}

func main() {
	opts := parseFlags()

	compiled := make([]*regexp.Regexp, len(opts.targetRegexes))
	for i, pat := range opts.targetRegexes {
		re, err := regexp.Compile(pat)
		if err != nil {
			fatal(fmt.Errorf("--target_regex %q: %w", pat, err))
		}
		compiled[i] = re
	}
	targetLinkFilter := func(url string) bool {
		for _, re := range compiled {
			if re.MatchString(url) {
				return true
			}
		}
		return false
	}

	cache := codec.New()

	checkpointStore, err := storage.NewLocalFileStorage(opts.checkpointOutputDir)
	if err != nil {
		fatal(err)
	}
	coll, err := collection.New(checkpointStore, cache)
	if err != nil {
		fatal(err)
	}

	fetcherOpts := []fetcher.Option{
		fetcher.WithUserAgent(opts.userAgent),
		fetcher.WithTargetLinkFilter(targetLinkFilter),
		fetcher.WithFetchingRateLimit(opts.fetchingRateLimit),
		fetcher.WithDiscoveryDelay(opts.rediscoveryDelay),
		fetcher.WithFetchDelay(opts.targetFetchDelay),
		fetcher.WithOnFetched(func(targetURL string, _ *http.Response, content []byte) error {
			_, err := coll.UpdateData(targetURL, content, nowVersion())
			return err
		}),
	}
	if opts.exponentialBackoff != 0 {
		fetcherOpts = append(fetcherOpts, fetcher.WithExponentialBackoff(opts.exponentialBackoff))
	}

	mainloop, err := fetcher.New(fetcherOpts...)
	if err != nil {
		fatal(err)
	}

	if opts.summaryOutputDir != "" {
		summaryStore, err := storage.NewLocalFileStorage(opts.summaryOutputDir)
		if err != nil {
			fatal(err)
		}
		summaryColl, err := collection.New(summaryStore, cache)
		if err != nil {
			fatal(err)
		}
		if _, err := mainloop.ScheduleNonFetchingTask(scheduler.TaskSpec{
			Name:       "summarize",
			Delay:      opts.summaryDelay,
			Reschedule: true,
			Callback: func(*scheduler.Task) error {
				return coll.SummarizeTo(summaryColl)
			},
		}); err != nil {
			fatal(err)
		}
	}
	if _, err := mainloop.ScheduleNonFetchingTask(scheduler.TaskSpec{
		Name:       "sync_to_checkpoints",
		Delay:      opts.checkpointDelay,
		Reschedule: true,
		Callback: func(*scheduler.Task) error {
			_, err := coll.SyncAndFlush()
			return err
		},
	}); err != nil {
		fatal(err)
	}

	for _, root := range opts.roots {
		if err := mainloop.AddDiscoveryRoot(root); err != nil {
			fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	if err := mainloop.RunLoop(ctx); err != nil && ctx.Err() == nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "datawatch-crawl:", err)
	os.Exit(1)
}
