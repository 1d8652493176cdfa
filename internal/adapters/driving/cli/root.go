// Package cli is the mdqt command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ausaccessfed/aaf-mdqt/internal/config"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/service"
	"github.com/ausaccessfed/aaf-mdqt/internal/factory"
)

// EnvService names the environment variable holding the default service URL.
const EnvService = "MDQT_SERVICE"

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath   string
	service      string
	cacheBackend string
	trustAnchors []string
	hashLiteral  bool
	explain      bool
	refresh      bool
	tlsRisky     bool
	verbose      bool
}

// App holds the state of one CLI invocation.
type App struct {
	version string
	stdout  io.Writer
	stderr  io.Writer
	getenv  func(string) string
	flags   globalFlags
}

// NewApp creates an App writing to stdout and stderr.
func NewApp(version string, stdout, stderr io.Writer) *App {
	return &App{
		version: version,
		stdout:  stdout,
		stderr:  stderr,
		getenv:  os.Getenv,
	}
}

// RootCommand builds the command tree.
func (a *App) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "mdqt",
		Short: "MDQ client for SAML federation metadata",
		Long: `MDQ client for SAML federation metadata.

mdqt downloads entity metadata from a Metadata Query (MDQ) service, caches
responses, and verifies their XML signatures against trust anchor
certificates.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       a.version,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.flags.configPath, "config", "c", "", "path to a YAML configuration file")
	pf.StringVarP(&a.flags.service, "service", "s", "", "MDQ service base URL (default $"+EnvService+")")
	pf.StringVar(&a.flags.cacheBackend, "cache", "", "cache backend: disabled, memory, file or redis")
	pf.StringArrayVar(&a.flags.trustAnchors, "verify-with", nil, "trust anchor certificate file (repeatable)")
	pf.BoolVar(&a.flags.hashLiteral, "hash", false, "send literal entity IDs as {sha1} hashes")
	pf.BoolVar(&a.flags.explain, "explain", false, "print how signature verification was decided")
	pf.BoolVar(&a.flags.refresh, "refresh", false, "ignore cached responses")
	pf.BoolVar(&a.flags.tlsRisky, "tls-risky", false, "do not verify the service TLS certificate")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "log progress to stderr")

	root.AddCommand(
		a.getCommand(),
		a.listCommand(),
		a.existsCommand(),
		a.hashCommand(),
		a.checkCommand(),
		a.lnCommand(),
		a.cacheCommand(),
		a.versionCommand(),
	)
	return root
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, version string, args []string) int {
	app := NewApp(version, os.Stdout, os.Stderr)
	root := app.RootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(app.stderr, "Error: %v\n", err)
	}
	return ExitCode(err)
}

// ExitCode maps an error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr.Code.ExitCode()
	}
	return 1
}

// exitError carries an exit status for failures already reported to the
// user, such as a batch where some lookups failed.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func (a *App) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if a.flags.configPath != "" {
		cfg, err = config.Load(a.flags.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = &config.Config{}
	}

	switch {
	case a.flags.service != "":
		cfg.Service = a.flags.service
	case cfg.Service == "":
		cfg.Service = a.getenv(EnvService)
	}
	if a.flags.cacheBackend != "" {
		cfg.Cache.Backend = a.flags.cacheBackend
	}
	cfg.TrustAnchors = append(cfg.TrustAnchors, a.flags.trustAnchors...)
	if a.flags.hashLiteral {
		cfg.HashLiteralIdentifiers = true
	}
	if a.flags.explain {
		cfg.Explain = true
	}
	if a.flags.tlsRisky {
		verify := false
		cfg.TLSVerify = &verify
	}
	cfg.SetDefaults()
	return cfg, nil
}

func (a *App) logger() (*zap.Logger, error) {
	if a.flags.verbose {
		cfg := zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stderr"}
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.OutputPaths = []string{"stderr"}
	cfg.Sampling = nil
	return cfg.Build()
}

// withLookup builds the lookup service for one command and closes it after.
func (a *App) withLookup(fn func(*service.Lookup) error) error {
	return a.runLookup(factory.NewLookup, fn)
}

// withLocalLookup is withLookup for commands that need no MDQ service.
func (a *App) withLocalLookup(fn func(*service.Lookup) error) error {
	return a.runLookup(factory.NewLocalLookup, fn)
}

type lookupBuilder func(*config.Config, ...factory.Option) (*service.Lookup, error)

func (a *App) runLookup(build lookupBuilder, fn func(*service.Lookup) error) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	logger, err := a.logger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	lookup, err := build(cfg,
		factory.WithLogger(logger),
		factory.WithUserAgent("mdqt/"+a.version),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := lookup.Close(); err != nil {
			logger.Warn("closing cache failed", zap.Error(err))
		}
	}()
	return fn(lookup)
}

func (a *App) requestOptions() service.RequestOptions {
	return service.RequestOptions{Refresh: a.flags.refresh, Explain: a.flags.explain}
}
