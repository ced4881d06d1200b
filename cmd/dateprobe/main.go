package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/dateprobe/internal/browser"
	"github.com/PentesterFlow/dateprobe/internal/hintcache"
	"github.com/PentesterFlow/dateprobe/internal/logger"
	"github.com/PentesterFlow/dateprobe/internal/progress"
	"github.com/PentesterFlow/dateprobe/internal/replay"
	"github.com/PentesterFlow/dateprobe/internal/vision"
	"github.com/PentesterFlow/dateprobe/pkg/extractor"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool
	debug      bool

	// Discover flags
	startDate    string
	endDate      string
	headless     bool
	outputFile   string
	settleWait   int
	hintCache    string
	progressAddr string

	// Vision flags
	visionBaseURL string
	visionAPIKey  string
	visionModel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dateprobe",
		Short: "DateProbe - Date-Filtered API Discovery",
		Long: `DateProbe - Finds the API behind a page's date filter and proves it.

Point it at a page that lists records by date range. It scans the page's
runtime configuration, mines network traffic, operates the date picker, and
falls back to vision analysis, then replays the discovered endpoint with
your date range to verify it returns data.`,
		Version: version,
	}

	discoverCmd := &cobra.Command{
		Use:   "discover [target]",
		Short: "Discover a page's date-filtered API",
		Long:  "Discover the data API behind a page's date filter and verify it by replay.",
		Args:  cobra.ExactArgs(1),
		RunE:  runDiscover,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")

	// Discover flags
	discoverCmd.Flags().StringVarP(&startDate, "start", "s", "", "Range start (YYYY-MM-DD)")
	discoverCmd.Flags().StringVarP(&endDate, "end", "e", "", "Range end (YYYY-MM-DD)")
	discoverCmd.Flags().BoolVar(&headless, "headless", true, "Run the browser headless")
	discoverCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	discoverCmd.Flags().IntVar(&settleWait, "settle", 3, "Seconds to let the page settle after load")
	discoverCmd.Flags().StringVar(&hintCache, "hint-cache", "", "Path to the cross-session hint cache")
	discoverCmd.Flags().StringVar(&progressAddr, "progress-addr", "", "Serve progress events over WebSocket on this address")

	// Vision flags
	discoverCmd.Flags().StringVar(&visionBaseURL, "vision-url", "", "OpenAI-compatible API base URL for the vision fallback")
	discoverCmd.Flags().StringVar(&visionAPIKey, "vision-key", "", "API key for the vision fallback")
	discoverCmd.Flags().StringVar(&visionModel, "vision-model", "", "Vision model name")

	discoverCmd.MarkFlagRequired("start")
	discoverCmd.MarkFlagRequired("end")

	rootCmd.AddCommand(discoverCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runDiscover(cmd *cobra.Command, args []string) error {
	target := args[0]

	rng, err := extractor.ParseRange(startDate, endDate)
	if err != nil {
		return err
	}

	config := extractor.DefaultConfig()
	if configFile != "" {
		config, err = extractor.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Command-line flags take precedence over the config file.
	if cmd.Flags().Changed("headless") {
		config.Browser.Headless = headless
	}
	if hintCache != "" {
		config.HintCachePath = hintCache
	}
	if visionBaseURL != "" {
		config.Vision.BaseURL = visionBaseURL
	}
	if visionAPIKey != "" {
		config.Vision.APIKey = visionAPIKey
	}
	if visionModel != "" {
		config.Vision.Model = visionModel
	}

	levelStr := config.LogLevel
	if verbose {
		levelStr = "debug"
	}
	if debug {
		levelStr = "trace"
	}
	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", levelStr, err)
	}
	log := logger.New(logger.Config{Level: level, Pretty: true, Output: os.Stderr})
	logger.SetGlobal(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived interrupt signal, stopping...\n")
		cancel()
	}()

	opts := extractor.Options{Logger: log}

	driver, err := browser.NewRodDriver(config.Browser, log)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer driver.Close()
	opts.Driver = driver

	verifier, err := replay.NewClient(config.Replay, log)
	if err != nil {
		return fmt.Errorf("failed to create replay client: %w", err)
	}
	opts.Verifier = verifier

	if config.Vision.APIKey != "" {
		opts.Analyzer = vision.NewClient(config.Vision, log)
	}

	if config.HintCachePath != "" {
		hints, err := hintcache.Open(config.HintCachePath, config.HintTTL)
		if err != nil {
			return fmt.Errorf("failed to open hint cache: %w", err)
		}
		defer hints.Close()
		opts.Hints = hints
	}

	if progressAddr != "" {
		hub := progress.NewHub(log)
		defer hub.Close()
		opts.Hub = hub
		go func() {
			if err := http.ListenAndServe(progressAddr, hub); err != nil {
				log.WithError(err).Warn("progress server stopped")
			}
		}()
	}

	ext, err := extractor.New(config, opts)
	if err != nil {
		return err
	}

	log.WithURL(target).Info("navigating")
	if err := driver.Navigate(ctx, target); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	// Let deferred XHRs and config scripts land before the first scan.
	settle := time.Duration(settleWait) * time.Second
	if err := driver.WaitNetworkIdle(ctx, settle); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	startTime := time.Now()
	result := ext.Extract(ctx, rng)
	duration := time.Since(startTime)

	printSummary(result, duration)

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if outputFile == "" {
		fmt.Println(string(data))
	} else {
		if err := os.WriteFile(outputFile, data, 0o644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		fmt.Printf("Result written to %s\n", outputFile)
	}

	if !result.Success {
		return fmt.Errorf("no verified endpoint found")
	}
	return nil
}

func printSummary(result *extractor.ExtractionResult, duration time.Duration) {
	fmt.Fprintln(os.Stderr)
	if result.Success {
		fmt.Fprintf(os.Stderr, "Verified endpoint found in %v (layer %d)\n",
			duration.Round(time.Millisecond), result.WinningLayer)
		fmt.Fprintf(os.Stderr, "  [%s] %s\n",
			result.BestCandidate.Method, result.BestCandidate.URL)
		if result.VerifiedSample != nil {
			fmt.Fprintf(os.Stderr, "  Returned %d items\n", result.VerifiedSample.Count)
		}
	} else {
		fmt.Fprintf(os.Stderr, "No verified endpoint after %v\n",
			duration.Round(time.Millisecond))
		for layer := 0; layer < 4; layer++ {
			d := result.Diagnostics[layer]
			status := "skipped"
			if d.Attempted {
				status = d.Error
			}
			fmt.Fprintf(os.Stderr, "  Layer %d: %s\n", layer, status)
		}
		for _, rec := range result.Recommendations {
			fmt.Fprintf(os.Stderr, "  Hint: %s\n", rec)
		}
	}
	fmt.Fprintln(os.Stderr)
}
