package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/starford/ctxcache/internal"
	"github.com/starford/ctxcache/internal/apperr"
	"github.com/starford/ctxcache/internal/console"
	"github.com/starford/ctxcache/internal/models"
	pkgconfig "github.com/starford/ctxcache/pkg/config"
)

// Exit codes shared by every command.
const (
	exitOK             = 0
	exitFailure        = 1
	exitOrphaned       = 2
	exitNotARepository = 128
)

const (
	defaultSearchLimit = 20
	defaultConfigPath  = "config/config.yaml"
	configEnvVar       = "APP_CONFIG_FILE"
)

type app struct {
	stdout io.Writer
	stderr io.Writer
}

// runtime is the per-invocation state built from flags and configuration.
type runtime struct {
	cfg      *internal.Config
	logger   *slog.Logger
	closeLog func() error
	out      *console.Printer
	errOut   *console.Printer
}

func newCommand(stdout, stderr io.Writer) *cli.Command {
	a := &app{stdout: stdout, stderr: stderr}

	return &cli.Command{
		Name:      "context",
		Usage:     "Documentation cache that tracks which source files each document describes",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: defaultConfigPath,
				Value:       defaultConfigPath,
				Sources:     cli.EnvVars(configEnvVar),
			},
			&cli.StringFlag{
				Name:  "output",
				Usage: "Output format: human or json",
				Value: internal.OutputHuman,
			},
			&cli.StringFlag{
				Name:  "root",
				Usage: "Directory to start the .context search from (default: working directory)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "init",
				Usage:     "Initialize a new documentation cache",
				ArgsUsage: "[PATH]",
				Action:    a.init,
			},
			{
				Name:  "status",
				Usage: "Display the status of every document in the cache",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "invalid-only",
						Aliases: []string{"i"},
						Usage:   "Show stale and orphaned documents only",
					},
				},
				Action: a.status,
			},
			{
				Name:      "sync",
				Usage:     "Record the current fingerprints of the files each document mentions",
				ArgsUsage: "[PATH]",
				Action:    a.sync,
			},
			{
				Name:      "find",
				Usage:     "Find documents that reference the given source file(s)",
				ArgsUsage: "PATH...",
				Action:    a.find,
			},
			{
				Name:      "search",
				Usage:     "Search document slugs, titles, descriptions and bodies",
				ArgsUsage: "QUERY",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: defaultSearchLimit,
					},
				},
				Action: a.search,
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API and watch the cache for changes",
				Action: a.serve,
			},
			{
				Name:   "mcp",
				Usage:  "Start the MCP server on stdio",
				Action: a.mcp,
			},
		},
	}
}

func (a *app) setup(cmd *cli.Command) (*runtime, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cmd.IsSet("output") {
		cfg.App.Output = cmd.String("output")
	}
	if cmd.IsSet("root") {
		cfg.Context.Root = cmd.String("root")
	}

	format, err := console.ParseFormat(cfg.App.Output)
	if err != nil {
		return nil, err
	}

	logger, closeLog := internal.NewLogger(cfg.App, a.stderr)
	slog.SetDefault(logger)

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		out:      console.New(a.stdout, format),
		errOut:   console.New(a.stderr, format),
	}, nil
}

func exitCode(err error) int {
	if errors.Is(err, apperr.ErrNotARepository) {
		return exitNotARepository
	}
	return exitFailure
}

// fail reports err on stderr and turns it into an exit status.
func (rt *runtime) fail(err error) error {
	var invalid *apperr.InvalidReferencesError
	if errors.As(err, &invalid) {
		_ = rt.errOut.InvalidReferences(invalid)
	} else {
		_ = rt.errOut.Error(err)
	}
	return cli.Exit("", exitCode(err))
}

func exitWith(code int) error {
	if code == exitOK {
		return nil
	}
	return cli.Exit("", code)
}

// withSession runs fn against the cache located by the configuration.
func (a *app) withSession(cmd *cli.Command, fn func(rt *runtime, sess *internal.Session) error) error {
	rt, err := a.setup(cmd)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), exitFailure)
	}
	defer rt.closeLog()

	sess, err := internal.OpenSession(rt.cfg, rt.logger)
	if err != nil {
		return rt.fail(err)
	}
	defer sess.Close()

	return fn(rt, sess)
}

func (a *app) init(_ context.Context, cmd *cli.Command) error {
	rt, err := a.setup(cmd)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), exitFailure)
	}
	defer rt.closeLog()

	dir := "."
	if cmd.Args().Len() > 0 {
		dir = cmd.Args().First()
	}
	root, err := internal.InitCache(dir, rt.logger)
	if err != nil {
		return rt.fail(err)
	}
	_ = rt.out.Message("Initialized context cache at " + root)
	return nil
}

// statusExitCode is 2 when any document is orphaned, 1 when any is stale.
func statusExitCode(vs []models.Validation) int {
	worst := models.StatusValid
	for _, v := range vs {
		worst = models.Merge(worst, v.Status)
	}
	switch worst {
	case models.StatusOrphaned:
		return exitOrphaned
	case models.StatusStale:
		return exitFailure
	default:
		return exitOK
	}
}

func (a *app) status(ctx context.Context, cmd *cli.Command) error {
	return a.withSession(cmd, func(rt *runtime, sess *internal.Session) error {
		vs, err := sess.Service.Status(ctx, cmd.Bool("invalid-only"))
		if err != nil {
			return rt.fail(err)
		}
		if err := rt.out.Status(vs); err != nil {
			return rt.fail(err)
		}
		return exitWith(statusExitCode(vs))
	})
}

func (a *app) sync(ctx context.Context, cmd *cli.Command) error {
	return a.withSession(cmd, func(rt *runtime, sess *internal.Session) error {
		result, err := sess.Service.Sync(ctx, cmd.Args().First())
		if err != nil {
			return rt.fail(err)
		}
		if err := rt.out.Sync(result); err != nil {
			return rt.fail(err)
		}
		if len(result.Failed) > 0 {
			return exitWith(exitFailure)
		}
		return nil
	})
}

func (a *app) find(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() == 0 {
		return cli.Exit("Error: find requires at least one PATH", exitFailure)
	}
	return a.withSession(cmd, func(rt *runtime, sess *internal.Session) error {
		results, err := sess.Service.Find(ctx, cmd.Args().Slice())
		if err != nil {
			return rt.fail(err)
		}
		if err := rt.out.Find(results); err != nil {
			return rt.fail(err)
		}
		for _, r := range results {
			if len(r.Matches) > 0 {
				return nil
			}
		}
		return exitWith(exitFailure)
	})
}

func (a *app) search(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() == 0 {
		return cli.Exit("Error: search requires a QUERY", exitFailure)
	}
	return a.withSession(cmd, func(rt *runtime, sess *internal.Session) error {
		results, err := sess.Service.Search(ctx, cmd.Args().First(), int(cmd.Int("limit")))
		if err != nil {
			return rt.fail(err)
		}
		if err := rt.out.Search(results); err != nil {
			return rt.fail(err)
		}
		return nil
	})
}

func (a *app) serve(ctx context.Context, cmd *cli.Command) error {
	rt, err := a.setup(cmd)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), exitFailure)
	}
	defer rt.closeLog()

	if err := internal.Run(ctx, internal.WithConfig(rt.cfg), internal.WithLogger(rt.logger)); err != nil {
		return rt.fail(fmt.Errorf("app run error: %w", err))
	}
	return nil
}

func (a *app) mcp(ctx context.Context, cmd *cli.Command) error {
	rt, err := a.setup(cmd)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), exitFailure)
	}
	defer rt.closeLog()

	if err := internal.ServeMCP(ctx, internal.WithConfig(rt.cfg), internal.WithLogger(rt.logger)); err != nil {
		return rt.fail(err)
	}
	return nil
}
