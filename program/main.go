package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	tui "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/term"
	"gopkg.in/yaml.v3"

	"github.com/keilerkonzept/logscope/backend"
	"github.com/keilerkonzept/logscope/devserver"
	"github.com/keilerkonzept/logscope/explorer"
)

type Config struct {
	// query
	URL            string        `yaml:"url"`
	Expr           string        `yaml:"expr"`
	Levels         string        `yaml:"levels"`
	Since          time.Duration `yaml:"since"`
	MessagePath    string        `yaml:"message-path"`
	RequestTimeout time.Duration `yaml:"request-timeout"`

	// render
	BarWidth       int           `yaml:"bar-width"`
	BarGap         int           `yaml:"bar-gap"`
	ChartHeight    int           `yaml:"chart-height"`
	Lines          bool          `yaml:"lines"`
	LogScale       bool          `yaml:"log-scale"`
	ViewSplit      int           `yaml:"view-split"`
	PrefetchLines  int           `yaml:"prefetch-lines"`
	ScrollDebounce time.Duration `yaml:"scroll-debounce"`
	UTC            bool          `yaml:"utc"`
	AltScreen      bool          `yaml:"alt-screen"`

	// tags
	TagsK       int           `yaml:"tags-k"`
	TagsRefresh time.Duration `yaml:"tags-refresh"`

	StatsEnabled bool `yaml:"stats"`
	StatsWindow  int  `yaml:"stats-window"`

	LogFile string `yaml:"log-file"`

	// demo
	Demo        bool          `yaml:"demo"`
	DemoEntries int           `yaml:"demo-entries"`
	DemoLive    time.Duration `yaml:"demo-live"`
	DemoSeed    uint64        `yaml:"demo-seed"`
}

var defaultConfig = Config{
	URL:         "http://127.0.0.1:8080",
	Since:       time.Hour,
	MessagePath: explorer.DefaultMessagePath,

	BarWidth:       1,
	BarGap:         0,
	ChartHeight:    8,
	ViewSplit:      70,
	PrefetchLines:  20,
	ScrollDebounce: 100 * time.Millisecond,
	AltScreen:      true,

	TagsK:       20,
	TagsRefresh: time.Second,

	StatsEnabled: true,
	StatsWindow:  256,

	DemoEntries: 20000,
	DemoLive:    500 * time.Millisecond,
	DemoSeed:    1,
}

// demoSpan is how far back the demo data set reaches.
const demoSpan = 24 * time.Hour

func bindFlags(fs *flag.FlagSet, c *Config) *string {
	fs.StringVar(&c.URL, "url", c.URL, "Base URL of the log backend")
	fs.StringVar(&c.Expr, "expr", c.Expr, "Initial filter expression")
	fs.StringVar(&c.Levels, "levels", c.Levels, "Comma-separated severities to show (default: all)")
	fs.DurationVar(&c.Since, "since", c.Since, "Initial window length, ending now")
	fs.StringVar(&c.MessagePath, "message-path", c.MessagePath, "JSONPath of the message inside the payload")
	fs.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "Per-request timeout (0 = none)")

	fs.IntVar(&c.BarWidth, "bar-width", c.BarWidth, "Histogram bar width in columns")
	fs.IntVar(&c.BarGap, "bar-gap", c.BarGap, "Gap between histogram bars in columns")
	fs.IntVar(&c.ChartHeight, "chart-height", c.ChartHeight, "Histogram height in lines")
	fs.BoolVar(&c.Lines, "lines", c.Lines, "Draw the histogram as a line plot")
	fs.BoolVar(&c.LogScale, "log-scale", c.LogScale, "Use a logarithmic Y axis scale (default: linear)")
	fs.IntVar(&c.ViewSplit, "view-split", c.ViewSplit, "Split the body at this % of the total screen width [20,80]")
	fs.IntVar(&c.PrefetchLines, "prefetch-lines", c.PrefetchLines, "Load more entries when the view is this close to an edge")
	fs.DurationVar(&c.ScrollDebounce, "scroll-debounce", c.ScrollDebounce, "Wait this long after scrolling before checking the edges")
	fs.BoolVar(&c.UTC, "utc", c.UTC, "Show timestamps in UTC")
	fs.BoolVar(&c.AltScreen, "alt-screen", c.AltScreen, "Use the terminal alternate screen buffer (recommended inside IDE terminals)")

	fs.IntVar(&c.TagsK, "tags-k", c.TagsK, "Track the top K payload tags")
	fs.DurationVar(&c.TagsRefresh, "tags-refresh", c.TagsRefresh, "How often to re-rank the tag leaderboard")
	fs.BoolVar(&c.StatsEnabled, "stats", c.StatsEnabled, "Show request stats")
	fs.IntVar(&c.StatsWindow, "stats-window", c.StatsWindow, "Number of recent samples kept per metric")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "Write logs to this file")

	fs.BoolVar(&c.Demo, "demo", c.Demo, "Start an in-process demo backend with synthetic data")
	fs.IntVar(&c.DemoEntries, "demo-entries", c.DemoEntries, "Number of synthetic entries in the demo backend")
	fs.DurationVar(&c.DemoLive, "demo-live", c.DemoLive, "Interval of live demo entries (0 disables)")
	fs.Uint64Var(&c.DemoSeed, "demo-seed", c.DemoSeed, "Seed of the demo data generator")

	return fs.String("config", "", "Read settings from this YAML file; flags override it")
}

// parseConfig applies defaults, then the optional YAML file, then the flags.
// The flags are parsed twice so that explicit flags win over the file.
func parseConfig(args []string) (Config, error) {
	c := defaultConfig
	fs := flag.NewFlagSet("logscope", flag.ContinueOnError)
	path := bindFlags(fs, &c)
	if err := fs.Parse(args); err != nil {
		return c, err
	}
	if *path == "" {
		return c, nil
	}

	c = defaultConfig
	if err := readConfigFile(*path, &c); err != nil {
		return c, err
	}
	fs = flag.NewFlagSet("logscope", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	bindFlags(fs, &c)
	if err := fs.Parse(args); err != nil {
		return c, err
	}
	return c, nil
}

func readConfigFile(path string, c *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer func() { _ = f.Close() }()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

func validateAndNormalizeConfig(c *Config) error {
	if !c.Demo && c.URL == "" {
		return fmt.Errorf("-url is required (or use -demo)")
	}
	if c.Since <= 0 {
		return fmt.Errorf("-since must be > 0")
	}
	if c.BarWidth < 1 {
		return fmt.Errorf("-bar-width must be >= 1")
	}
	if c.BarGap < 0 {
		return fmt.Errorf("-bar-gap must be >= 0")
	}
	if c.ChartHeight < 1 {
		return fmt.Errorf("-chart-height must be >= 1")
	}
	if c.PrefetchLines < 0 {
		return fmt.Errorf("-prefetch-lines must be >= 0")
	}
	if c.ScrollDebounce < 0 {
		return fmt.Errorf("-scroll-debounce must be >= 0")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("-request-timeout must be >= 0")
	}
	if c.TagsK < 1 {
		return fmt.Errorf("-tags-k must be >= 1")
	}
	if c.TagsRefresh <= 0 {
		return fmt.Errorf("-tags-refresh must be > 0")
	}
	if c.DemoEntries < 0 {
		return fmt.Errorf("-demo-entries must be >= 0")
	}
	if c.DemoLive < 0 {
		return fmt.Errorf("-demo-live must be >= 0")
	}
	if _, err := parseLevels(c.Levels); err != nil {
		return err
	}
	if _, err := explorer.NewDecoder(c.MessagePath); err != nil {
		return fmt.Errorf("-message-path: %w", err)
	}
	c.ViewSplit = max(20, c.ViewSplit)
	c.ViewSplit = min(80, c.ViewSplit)
	if c.StatsWindow < 16 {
		c.StatsWindow = 16
	}
	return nil
}

// parseLevels reads a comma-separated severity list; empty means all.
func parseLevels(s string) (explorer.Levels, error) {
	if strings.TrimSpace(s) == "" {
		return explorer.AllLevels, nil
	}
	var l explorer.Levels
	for _, part := range strings.Split(s, ",") {
		sev, ok := explorer.ParseSeverity(strings.TrimSpace(part))
		if !ok {
			return 0, fmt.Errorf("-levels: unknown severity %q", part)
		}
		l |= explorer.LevelsOf(sev)
	}
	return l, nil
}

func main() {
	config, err := parseConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatal(err)
	}
	if err := validateAndNormalizeConfig(&config); err != nil {
		log.Fatal(err)
	}
	if !term.IsTerminal(os.Stdout.Fd()) {
		log.Fatal("stdout is not a terminal")
	}

	// The TUI owns the terminal, so logs go to a file or nowhere.
	logger := log.New(io.Discard, "", log.LstdFlags)
	if config.LogFile != "" {
		f, err := tui.LogToFileWith(config.LogFile, "logscope", logger)
		if err != nil {
			log.Fatal(err)
		}
		defer func() { _ = f.Close() }()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.Demo {
		demo, err := devserver.StartDemo(ctx, devserver.GenerateConfig{
			Count:  config.DemoEntries,
			End:    time.Now(),
			Span:   demoSpan,
			Seed:   config.DemoSeed,
			Bursts: 6,
		}, config.DemoLive, logger)
		if err != nil {
			log.Fatal(err)
		}
		go func() {
			if err := demo.Run(ctx); err != nil {
				logger.Printf("demo backend: %v", err)
			}
		}()
		config.URL = demo.URL()
		logger.Printf("demo backend listening on %s", config.URL)
	}

	client, err := backend.NewClient(config.URL,
		backend.WithTimeout(config.RequestTimeout),
		backend.WithLogger(logger),
	)
	if err != nil {
		log.Fatal(err)
	}

	m, err := newModel(ctx, config, client, logger, time.Now)
	if err != nil {
		log.Fatal(err)
	}
	opts := []tui.ProgramOption{tui.WithInputTTY(), tui.WithMouseCellMotion()}
	if config.AltScreen {
		opts = append(opts, tui.WithAltScreen())
	}
	if _, err := tui.NewProgram(m, opts...).Run(); err != nil {
		log.Fatal(err)
	}
}
