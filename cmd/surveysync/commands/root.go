package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"surveysync/internal/components/telemetry"
	"surveysync/internal/config"
	"surveysync/internal/mailchimp"
	"surveysync/lib/configutil"
	"surveysync/lib/restyutil"
	"surveysync/lib/serviceutil"
	libtelemetry "surveysync/lib/telemetry"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

const serviceName = "surveysync"

var (
	configPath  string
	cacheDir    string
	concurrency int
	cooldown    time.Duration
	dumpHttp    string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "surveysync",
	Short: "surveysync downloads the responses of a mailchimp survey into a local cache.",
	// errors are logged by ExecuteContext, which also picks the exit code
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		libtelemetry.InitSlog(verbose)
		err := configutil.LoadDotenv(".env")
		if err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultPath, "The config file to read, a sibling .local file is merged over it.")
	flags.StringVar(&cacheDir, "cache-dir", "", "The directory fetched responses are cached in.")
	flags.IntVarP(&concurrency, "concurrency", "n", 0, "The maximum amount of fetches in flight.")
	flags.DurationVar(&cooldown, "cooldown", 0, "How long a fetch slot stays occupied after a successful fetch.")
	flags.StringVar(&dumpHttp, "dump-http", "", "A directory every http exchange with mailchimp is written to.")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enables debug logging.")
}

// loadConfig resolves the config of the invoked command: the config file,
// then the environment, then the flags that were explicitly set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()

	cfg, err := config.Load(configPath, flags.Changed("config"))
	if err != nil {
		return config.Config{}, err
	}

	if flags.Changed("cache-dir") {
		cfg.CacheDir = cacheDir
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = concurrency
	}
	if flags.Changed("cooldown") {
		cfg.Cooldown = cooldown.String()
	}
	if flags.Changed("dump-http") {
		cfg.Mailchimp.DumpDir = dumpHttp
	}

	err = cfg.Validate()
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newClient(cfg config.Config, tel telemetry.API) (*mailchimp.Client, mailchimp.ClientOptions, error) {
	opts, err := cfg.ClientOptions()
	if err != nil {
		return nil, opts, err
	}
	if cfg.Mailchimp.DumpDir != "" {
		dumper, err := restyutil.NewDumper(cfg.Mailchimp.DumpDir)
		if err != nil {
			return nil, opts, fmt.Errorf("create http dump dir: %w", err)
		}
		opts.Dump = &dumper
		slog.Info("dumping http exchanges", "dir", cfg.Mailchimp.DumpDir)
	}
	return mailchimp.NewClient(opts, tel), opts, nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

// ExecuteContext runs the command line, the process exits with the code
// ExitCode picks if the command failed.
func ExecuteContext(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		serviceutil.Exit(ExitCode(err), "surveysync failed", err)
	}
}
