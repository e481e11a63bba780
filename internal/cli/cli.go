// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/squidbay/squidops-tui/internal/apiclient"
	"github.com/squidbay/squidops-tui/internal/config"
	"github.com/squidbay/squidops-tui/internal/export"
	"github.com/squidbay/squidops-tui/internal/logging"
	"github.com/squidbay/squidops-tui/internal/session"
	"github.com/squidbay/squidops-tui/internal/ui/console"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// KeyEnv supplies the admin key to the headless commands. The console
// always asks for it.
const KeyEnv = "SQUIDOPS_KEY"

// App holds the global flags and what PersistentPreRunE builds from them.
type App struct {
	// Global flags
	ConfigPath string
	APIURL     string
	Verbose    bool
	JSON       bool

	In  io.Reader
	Out io.Writer
	Err io.Writer

	// ReadSecret reads the admin key without echo.
	ReadSecret func(w io.Writer, prompt string) (string, error)

	// RunConsole starts the interactive console.
	RunConsole func(ctx context.Context, opts console.Options) error

	cfg     *config.Config
	cfgPath string
	logger  *logging.Logger
	lines   *lineReader

	// usedSecondFactor is set once login passes a second-factor step.
	usedSecondFactor bool
}

// NewApp returns an App wired to the process streams.
func NewApp() *App {
	return &App{
		In:         os.Stdin,
		Out:        os.Stdout,
		Err:        os.Stderr,
		ReadSecret: readPassword,
		RunConsole: runConsole,
	}
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	a := NewApp()
	root := a.RootCommand()
	root.SetArgs(args)
	cmd, err := root.ExecuteContextC(ctx)
	if err != nil {
		name := root.Name()
		if cmd != nil {
			name = cmd.CommandPath()
		}
		DisplayError(a.Err, name, err, a.JSON)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// RootCommand builds the squidops command tree.
func (a *App) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "squidops",
		Short: "SquidBay marketplace admin console",
		Long: `squidops is the operator console for the SquidBay agent marketplace.

Run without arguments to start the interactive console. The subcommands
work headless: they read the admin key from $SQUIDOPS_KEY or prompt for it,
and print tables or, with --json, one JSON object.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// The console draws on the terminal; its logs go to the file only.
			return a.setup(cmd.Root() != cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE: a.runRoot,
	}
	root.SetIn(a.In)
	root.SetOut(a.Out)
	root.SetErr(a.Err)

	pf := root.PersistentFlags()
	pf.StringVar(&a.ConfigPath, "config", "", "config file (default $SQUIDOPS_HOME/config.toml)")
	pf.StringVar(&a.APIURL, "api", "", "marketplace API base URL")
	pf.BoolVarP(&a.Verbose, "verbose", "v", false, "debug logging to stderr")
	pf.BoolVar(&a.JSON, "json", false, "print one JSON object")

	root.AddCommand(
		a.verifyCommand(),
		a.skillsCommand(),
		a.exportCommand(),
		a.configCommand(),
		a.versionCommand(),
	)
	return root
}

// setup loads config and opens the logger. stderr logging is only
// offered to headless commands.
func (a *App) setup(headless bool) error {
	cfg, path, err := a.loadConfig()
	if err != nil {
		return err
	}
	if a.APIURL != "" {
		cfg.API.BaseURL = a.APIURL
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg
	a.cfgPath = path

	level := cfg.Logging.Level
	if a.Verbose {
		level = "debug"
	}
	file := cfg.Logging.File
	if file == "" {
		dir, err := config.ConfigDir()
		if err != nil {
			return err
		}
		file = logging.DefaultPath(dir)
	}
	logger, err := logging.New(logging.Options{
		Level:  level,
		File:   file,
		Stderr: headless && a.Verbose,
	})
	if err != nil {
		return err
	}
	a.logger = logger
	config.SetGlobal(cfg)
	a.logger.Debug("CONFIG_LOADED", zap.String("path", path), zap.String("api", cfg.API.BaseURL))
	return nil
}

// loadConfig reads --config when given, else the default location. A
// default file that fails to parse is reported and the defaults are used;
// one that fails validation is fatal.
func (a *App) loadConfig() (*config.Config, string, error) {
	if a.ConfigPath != "" {
		cfg, err := config.LoadFromPath(a.ConfigPath)
		return cfg, a.ConfigPath, err
	}
	path, err := config.Path()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load()
	if cfg == nil {
		return nil, path, err
	}
	if err != nil {
		fmt.Fprintf(a.Err, "%s %v; using defaults\n", WarningStyle.Render("[WARN]"), err)
	}
	return cfg, path, nil
}

// newController builds an API client and session controller from config.
func (a *App) newController() *session.Controller {
	api := apiclient.New(a.cfg.API.BaseURL,
		apiclient.WithTimeout(a.cfg.API.Timeout()),
		apiclient.WithMaxRetries(a.cfg.API.MaxRetries),
		apiclient.WithRateLimit(a.cfg.API.RequestsPerSecond),
		apiclient.WithUserAgent("squidops/"+Version),
		apiclient.WithLogger(a.logger.Logger),
	)
	return session.New(api, session.Config{
		MaxAttempts:     a.cfg.Session.MaxAttempts,
		LockoutDuration: a.cfg.Session.LockoutDuration(),
		SessionTimeout:  a.cfg.Session.SessionTimeout(),
		IdleTimeout:     a.cfg.Session.IdleTimeout(),
	}, session.WithLogger(a.logger.Logger))
}

// login authenticates ctrl headlessly. The key comes from $SQUIDOPS_KEY or
// a hidden prompt; a second factor is read from the input stream, six
// digits as an authenticator code and anything else as a backup code.
func (a *App) login(ctx context.Context, ctrl *session.Controller) error {
	key := strings.TrimSpace(os.Getenv(KeyEnv))
	if key == "" {
		var err error
		key, err = a.ReadSecret(a.Err, "Admin key: ")
		if err != nil {
			return err
		}
	}
	if err := ctrl.Authenticate(ctx, key); err != nil {
		return err
	}
	if ctrl.State() != session.SecondFactorPending {
		return nil
	}

	code, err := a.readLine("Authenticator or backup code: ")
	if err != nil {
		ctrl.Logout()
		return err
	}
	if isTOTP(code) {
		err = ctrl.VerifySecondFactor(ctx, code)
	} else {
		err = ctrl.VerifyBackupCode(ctx, code)
	}
	if err != nil {
		ctrl.Logout()
		return err
	}
	a.usedSecondFactor = true
	return nil
}

func (a *App) readLine(prompt string) (string, error) {
	if a.lines == nil {
		a.lines = &lineReader{r: bufio.NewReader(a.In)}
	}
	return a.lines.readLine(a.Err, prompt)
}

func isTOTP(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// withSession runs fn with an authenticated controller and logs out after.
func (a *App) withSession(ctx context.Context, fn func(ctrl *session.Controller) error) error {
	ctrl := a.newController()
	defer ctrl.Close()
	if err := a.login(ctx, ctrl); err != nil {
		return err
	}
	defer ctrl.Logout()
	return fn(ctrl)
}

// =============================================================================
// CONSOLE
// =============================================================================

func (a *App) runRoot(cmd *cobra.Command, args []string) error {
	if a.JSON {
		return NewValidationError("flag", "--json", "the console has no JSON mode")
	}
	ctrl := a.newController()
	defer ctrl.Close()

	format, err := export.ParseFormat(a.cfg.Export.Format)
	if err != nil {
		format = export.FormatCSV
	}
	opts := console.Options{
		Controller:   ctrl,
		Host:         hostOf(a.cfg.API.BaseURL),
		Theme:        a.cfg.UI.Theme,
		DefaultTab:   a.cfg.UI.DefaultTab,
		ExportDir:    a.cfg.Export.Dir,
		ExportFormat: format,
		Logger:       a.logger.Logger,
		OnConfigReload: func(c *config.Config) {
			if err := a.logger.SetLevel(c.Logging.Level); err != nil {
				a.logger.Warn("LOG_LEVEL_INVALID", zap.Error(err))
			}
		},
	}
	if _, err := os.Stat(a.cfgPath); err == nil {
		opts.ConfigPath = a.cfgPath
	}
	err = a.RunConsole(cmd.Context(), opts)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runConsole(ctx context.Context, opts console.Options) error {
	if err := RequiresTTY("run the console"); err != nil {
		return err
	}
	if !IsStdoutTTY() {
		return &TTYRequiredError{Operation: "draw the console"}
	}
	return console.Run(ctx, opts)
}

// hostOf returns the host of a base URL for the header, or the URL itself.
func hostOf(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return base
	}
	return u.Host
}
