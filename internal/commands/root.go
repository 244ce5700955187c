// Package commands implements the backstage-req CLI commands.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	request "github.com/zhangxinping666/admin-mp-sub001"
	"github.com/zhangxinping666/admin-mp-sub001/config"
)

// app holds what every subcommand needs once flags are parsed.
type app struct {
	out    io.Writer
	errOut io.Writer

	envFile string
	profile string
	debug   bool

	cfg    *config.Config
	store  request.TokenStore
	client *request.Client
}

// Execute runs the CLI with process arguments.
func Execute() error {
	return NewRootCmd(os.Stdout, os.Stderr).Execute()
}

// NewRootCmd builds the command tree writing results to out and diagnostics
// to errOut.
func NewRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "backstage-req",
		Short: "Send authenticated requests to the backstage admin API",
		Long: `backstage-req sends requests through the console request pipeline.

Environment variables (also read from --profile and --env-file):
  BACKSTAGE_BASE_URL        - API base URL (default: http://localhost:8080/api)
  BACKSTAGE_TOKEN_STORE     - file, redis or memory (default: file)
  BACKSTAGE_TOKEN_FILE      - token file (default: ~/.backstage/tokens.yaml)
  BACKSTAGE_REDIS_URL       - redis URL when the store is redis
  BACKSTAGE_REFRESH_CODES   - business codes that trigger a refresh (default: 4010)
  BACKSTAGE_RATE_LIMIT      - client-side requests per second (default: off)
  BACKSTAGE_DEBUG           - log every pipeline step`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup(cmd.Context())
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().StringVar(&a.profile, "profile", "", "YAML profile applied before the env file")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "log pipeline steps to stderr")

	root.AddCommand(a.getCmd())
	root.AddCommand(a.postCmd())
	root.AddCommand(a.exportCmd())
	root.AddCommand(a.tokenCmd())
	root.AddCommand(versionCmd(out))

	return root
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.LoadProfile(a.profile, a.envFile)
	if err != nil {
		return err
	}
	if a.debug {
		cfg.Debug = true
	}

	store, err := cfg.NewTokenStore()
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("BACKSTAGE_LOG_LEVEL: %w", err)
	}
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: a.errOut, NoColor: true}).
		Level(level).With().Timestamp().Logger()

	opts := append(cfg.ClientOptions(store),
		request.WithLogger(request.NewZerologLogger(logger)),
		request.WithNotifier(request.NotifierFunc(func(_ context.Context, message string) {
			fmt.Fprintf(a.errOut, "error: %s\n", message)
		})),
		request.WithNavigator(request.NavigatorFunc(func(_ context.Context, path string) {
			fmt.Fprintf(a.errOut, "session ended, log in again (%s)\n", path)
		})),
	)

	client := request.New(opts...)
	if !client.IsValid() {
		return client.ValidationError()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := client.Credentials().Restore(ctx); err != nil {
		return err
	}

	a.cfg = cfg
	a.store = store
	a.client = client
	return nil
}
