package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/webriots/asyncrw"
)

var rootCmd = &cobra.Command{
	Use:   "rwdemo",
	Short: "Trace readers and writers sharing an asyncrw lock",
	Long: `Issue a sequence of readers and writers against one lock and print when
each one starts and ends. Every flag can be set via RWDEMO_<FLAG>
environment variables (e.g. RWDEMO_PATTERN=RWR).`,
	Args:    cobra.NoArgs,
	PreRunE: bindFlags,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		log, err := newLogger(cfg.Debug)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		return run(cmd.Context(), cmd.OutOrStdout(), log, clockwork.NewRealClock(), cfg)
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	addFlags(rootCmd.Flags())
}

func addFlags(fs *pflag.FlagSet) {
	fs.String("pattern", "RRWWR", "requests to issue in order, R for reader and W for writer")
	fs.Duration("hold", time.Second, "how long each request holds the lock")
	fs.Bool("metrics", false, "print lock metrics in Prometheus format when done")
	fs.Bool("debug", false, "log lock events to stderr")
}

// initConfig loads .env files and maps RWDEMO_* variables onto flags.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("rwdemo")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func bindFlags(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlags(cmd.Flags())
}

type config struct {
	Pattern []asyncrw.Mode
	Hold    time.Duration
	Metrics bool
	Debug   bool
}

func loadConfig() (config, error) {
	modes, err := parsePattern(viper.GetString("pattern"))
	if err != nil {
		return config{}, err
	}
	return config{
		Pattern: modes,
		Hold:    viper.GetDuration("hold"),
		Metrics: viper.GetBool("metrics"),
		Debug:   viper.GetBool("debug"),
	}, nil
}

func parsePattern(p string) ([]asyncrw.Mode, error) {
	if p == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	if len(p) > 26 {
		return nil, fmt.Errorf("pattern %q longer than 26 requests", p)
	}

	modes := make([]asyncrw.Mode, 0, len(p))
	for i, c := range strings.ToUpper(p) {
		switch c {
		case 'R':
			modes = append(modes, asyncrw.ModeRead)
		case 'W':
			modes = append(modes, asyncrw.ModeWrite)
		default:
			return nil, fmt.Errorf("invalid request %q at position %d", c, i)
		}
	}
	return modes, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if !debug {
		return zap.NewNop(), nil
	}
	return zap.NewDevelopment()
}

// tracer writes lines prefixed with the time elapsed since it was
// created.
type tracer struct {
	mu    sync.Mutex
	w     io.Writer
	clock clockwork.Clock
	start time.Time
}

func (t *tracer) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	elapsed := float64(t.clock.Since(t.start)) / float64(time.Millisecond)
	fmt.Fprintf(t.w, "%12.3f ms | %s\n", elapsed, fmt.Sprintf(format, args...))
}

func run(ctx context.Context, out io.Writer, log *zap.Logger, clock clockwork.Clock, cfg config) error {
	set := metrics.NewSet()
	l := asyncrw.New(
		asyncrw.WithLogger(log),
		asyncrw.WithClock(clock),
		asyncrw.WithMetrics(set, "rwdemo"),
	)
	tr := &tracer{w: out, clock: clock, start: clock.Now()}

	futures := make([]*asyncrw.Future[struct{}], 0, len(cfg.Pattern))
	for i, mode := range cfg.Pattern {
		name := fmt.Sprintf("%s %c", label(mode), 'A'+i)
		work := func(context.Context) error {
			tr.printf("%s start", name)
			clock.Sleep(cfg.Hold)
			tr.printf("%s end", name)
			return nil
		}

		tr.printf("%s requested", name)
		if mode == asyncrw.ModeWrite {
			futures = append(futures, l.GoWrite(ctx, work))
		} else {
			futures = append(futures, l.GoRead(ctx, work))
		}
	}

	for _, f := range futures {
		if _, err := f.Wait(); err != nil {
			return err
		}
	}
	tr.printf("all requests done")

	if cfg.Metrics {
		set.WritePrometheus(out)
	}
	return nil
}

func label(mode asyncrw.Mode) string {
	if mode == asyncrw.ModeWrite {
		return "Writer"
	}
	return "Reader"
}
