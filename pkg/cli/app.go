package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gorakshaai/goraksha/pkg/config"
	"github.com/gorakshaai/goraksha/pkg/data"
	"github.com/gorakshaai/goraksha/pkg/logging"
	urfave "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName     = "goraksha"
	homeDirName = ".goraksha"

	formatJSON = "json"
	formatYAML = "yaml"

	storeOpenTimeout = 30 * time.Second
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	formats = []string{formatJSON, formatYAML, "yml"}

	debugFlag = &urfave.BoolFlag{
		Name:    "debug",
		Usage:   "Prints verbose logs (optional, default: false)",
		Sources: urfave.EnvVars("GORAKSHA_DEBUG"),
	}

	configDirFlag = &urfave.StringFlag{
		Name:  "config",
		Usage: "Directory holding config.yaml (optional, defaults to $HOME/.goraksha)",
	}

	dbFlag = &urfave.StringFlag{
		Name:  "db",
		Usage: "SQLite file path or postgres:// DSN for stored predictions",
	}

	formatFlag = &urfave.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	initLogging(false)

	app := newApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	*config.Config
	Dir    string
	Debug  bool
	Format string
}

type appConfigKey struct{}

func newApp() *urfave.Command {
	return &urfave.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Usage:                 "Animal disease triage from observed symptoms",
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Flags: []urfave.Flag{
			debugFlag,
			configDirFlag,
			dbFlag,
			formatFlag,
		},
		Commands: []*urfave.Command{
			serverCmd,
			predictCmd,
			speciesCmd,
			historyCmd,
		},
		Before: func(ctx context.Context, cmd *urfave.Command) (context.Context, error) {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return ctx, err
			}
			return context.WithValue(ctx, appConfigKey{}, cfg), nil
		},
	}
}

// loadConfig layers the config file, GORAKSHA_* env vars, and flags.
func loadConfig(cmd *urfave.Command) (*appConfig, error) {
	debug := cmd.Bool(debugFlag.Name)
	if debug {
		initLogging(true)
	}

	format := cmd.String(formatFlag.Name)
	if !data.Contains(formats, format) {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	if format == "yml" {
		format = formatYAML
	}

	dir := cmd.String(configDirFlag.Name)
	if dir == "" {
		home, _, err := config.GetOrCreateHomeDir(homeDirName)
		if err != nil {
			return nil, fmt.Errorf("resolving home dir: %w", err)
		}
		dir = home
	}

	c, err := config.ReadOrCreate(dir)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	c.ApplyEnv()

	if cmd.IsSet(dbFlag.Name) {
		c.DB = cmd.String(dbFlag.Name)
	}
	if debug {
		c.LogLevel = "debug"
	}

	slog.Debug("config loaded", "dir", dir, "address", c.Address, "log_level", c.LogLevel)

	return &appConfig{
		Config: c,
		Dir:    dir,
		Debug:  debug,
		Format: format,
	}, nil
}

func getConfig(ctx context.Context, cmd *urfave.Command) (*appConfig, error) {
	if cfg, ok := ctx.Value(appConfigKey{}).(*appConfig); ok && cfg != nil {
		return cfg, nil
	}
	return loadConfig(cmd)
}

func openStore(ctx context.Context, cfg *appConfig) (*data.Store, error) {
	openCtx, cancel := context.WithTimeout(ctx, storeOpenTimeout)
	defer cancel()

	s, err := data.Open(openCtx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	slog.Debug("database opened", "driver", s.Driver())
	return s, nil
}

func initLogging(debug bool) {
	level := "info"
	if debug {
		level = "debug"
	}
	logging.SetDefaultCLILogger(level)
}

func encode(w io.Writer, format string, v any) error {
	if format == formatYAML {
		e := yaml.NewEncoder(w)
		defer e.Close()
		return e.Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
