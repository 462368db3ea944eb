// Package cli implements the anymusic command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"anymusic/internal/client"
	"anymusic/internal/config"
	"anymusic/internal/download"
	"anymusic/internal/logging"
	"anymusic/internal/store"
)

// flagKeys maps flag names to config keys. Any command defining one of these
// flags has it bound before the config is loaded.
var flagKeys = map[string]string{
	"server":            config.KeyServer,
	"request-timeout":   config.KeyRequestTimeout,
	"poll-interval":     config.KeyPollInterval,
	"max-poll-duration": config.KeyMaxPollDuration,
	"output-dir":        config.KeyOutputDir,
	"db":                config.KeyDBPath,
	"log-level":         config.KeyLogLevel,
	"fetch":             config.KeyFetchResults,
	"bitrate":           config.KeyBitrate,
	"addr":              config.KeyDevServerAddr,
}

type app struct {
	out    io.Writer
	errOut io.Writer

	configFile string
	cfg        *config.Config
}

// reportedError marks an error the terminal view already printed.
type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// NewRootCmd builds the command tree writing to out and errOut.
func NewRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "anymusic",
		Short:         "Convert online media to MP3 and edit PDF and audio files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default: <user config dir>/anymusic/config.toml)")
	pf.String("server", config.DefaultServer, "base URL of the task service")
	pf.Duration("request-timeout", config.DefaultRequestTimeout, "per request timeout")
	pf.Duration("poll-interval", config.DefaultPollInterval, "progress polling interval")
	pf.Duration("max-poll-duration", config.DefaultMaxPollDuration, "give up polling after this long (0 disables)")
	pf.String("output-dir", "", "directory for produced files (default: $HOME/Music/anymusic)")
	pf.String("db", "", "path to the history database (default: OS cache dir)")
	pf.String("log-level", "info", "log level: debug|info|warn|error")

	root.AddCommand(
		newDownloadCmd(a),
		newResumeCmd(a),
		newHistoryCmd(a),
		newPDFCmd(a),
		newTrimCmd(a),
		newConvertCmd(a),
		newQRCodeCmd(a),
		newShortenCmd(a),
		newRemoveBGCmd(a),
		newMaskCmd(a),
		newConfigCmd(a),
		newSchemaCmd(a),
		newDevServerCmd(a),
	)
	return root
}

func (a *app) loadConfig(cmd *cobra.Command) error {
	v, err := config.NewViper(a.configFile)
	if err != nil {
		return err
	}
	if err := bindFlags(v, cmd); err != nil {
		return err
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return &client.ValidationError{Field: "config", Reason: err.Error(), Err: err}
	}
	a.cfg = cfg
	logging.InitWriter(a.errOut, logging.ParseLevel(cfg.LogLevel))
	logging.With(cmd.Context(), "command", cmd.CommandPath()).Debug("config loaded", "config", cfg.Summary())
	return nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func (a *app) newClient() (*client.Client, error) {
	return client.New(a.cfg.Server, client.WithTimeout(a.cfg.RequestTimeout))
}

func (a *app) openStore() (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(a.cfg.AbsDBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	st, err := store.Open(a.cfg.AbsDBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return st, nil
}

// Execute runs the command line with args and returns the process exit code.
func Execute(ctx context.Context, args []string, out, errOut io.Writer) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd(out, errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var reported *reportedError
	if !errors.As(err, &reported) && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(errOut, "Error:", err)
	}
	return download.ExitCode(err)
}
