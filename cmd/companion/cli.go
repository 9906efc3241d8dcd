package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/csm-companion/internal/backend"
	"github.com/hpungsan/csm-companion/internal/db"
	"github.com/hpungsan/csm-companion/internal/errors"
	"github.com/hpungsan/csm-companion/internal/gateway"
	"github.com/hpungsan/csm-companion/internal/overlay"
	"github.com/hpungsan/csm-companion/internal/pulse"
	"github.com/hpungsan/csm-companion/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(d *deps) *cli.App {
	app := &cli.App{
		Name:    "companion",
		Usage:   "Pulse checklist and guided engineering companion",
		Version: Version,
		Commands: []*cli.Command{
			evaluateCmd(d),
			pulseCmd(d),
			automationsCmd(d),
			templatesCmd(d),
			quickviewCmd(d),
			analyticsCmd(d),
			serveCmd(d),
			backendCmd(d),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// evaluateCmd creates the evaluate command.
func evaluateCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "evaluate",
		Usage: "Run the pulse checklist for a case event (reads event JSON from stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "pulse", Aliases: []string{"p"}, Usage: "Pulse record JSON file to evaluate instead of fetching"},
			&cli.BoolFlag{Name: "widget", Usage: "Output the widget layout instead of the view model"},
		},
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("case event must be piped via stdin"))
			}
			data, err := readStdin()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			var ev pulse.CaseEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				return outputError(errors.NewInvalidRequest("invalid case event: " + err.Error()))
			}
			if ev.ID == "" {
				return outputError(errors.NewInvalidRequest("case event id is required"))
			}

			opts := d.cfg.PulseOptions()
			var vm pulse.ViewModel
			if path := c.String("pulse"); path != "" {
				record, err := readRecordFile(path)
				if err != nil {
					return outputError(err)
				}
				vm = pulse.Evaluate(ev.Summary(), pulse.Found(record), opts)
			} else {
				vm, err = d.gateway().Evaluate(c.Context, &ev, opts)
				if err != nil {
					return outputError(err)
				}
			}

			if c.Bool("widget") {
				return outputJSON(overlay.BuildWidget(&vm, overlay.DefaultPrefs(), false))
			}
			return outputJSON(vm)
		},
	}
}

// pulseCmd creates the pulse command group.
func pulseCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "pulse",
		Usage: "Read and write case pulses",
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Fetch the pulse of a case",
				ArgsUsage: "<case_id>",
				Action: func(c *cli.Context) error {
					caseID := c.Args().First()
					if caseID == "" {
						return outputError(errors.NewInvalidRequest("case_id is required"))
					}
					return outputJSON(d.gateway().GetPulse(c.Context, caseID))
				},
			},
			{
				Name:      "update",
				Usage:     "Write pulse fields (reads a partial record from stdin, or use --set)",
				ArgsUsage: "<case_id>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "set", Usage: "field=text, wrapped as rich text; repeatable"},
				},
				Action: func(c *cli.Context) error {
					caseID := c.Args().First()
					if caseID == "" {
						return outputError(errors.NewInvalidRequest("case_id is required"))
					}

					var patch *pulse.Record
					if sets := c.StringSlice("set"); len(sets) > 0 {
						p, err := parseSets(sets)
						if err != nil {
							return outputError(err)
						}
						patch = p
					} else {
						if !stdinHasData() {
							return outputError(errors.NewInvalidRequest("pulse fields must be piped via stdin or given with --set"))
						}
						data, err := readStdin()
						if err != nil {
							return outputError(errors.NewInternal(err))
						}
						if err := json.Unmarshal([]byte(data), &patch); err != nil {
							return outputError(errors.NewInvalidRequest("invalid pulse record: " + err.Error()))
						}
					}

					out, err := d.gateway().UpdatePulse(c.Context, caseID, patch)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(out)
				},
			},
		},
	}
}

// automationsCmd creates the automations command group.
func automationsCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "automations",
		Usage: "Guided engineering automations",
		Subcommands: []*cli.Command{
			{
				Name:      "history",
				Usage:     "List runs for a case",
				ArgsUsage: "<correlation_id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return outputError(errors.NewInvalidRequest("correlation_id is required"))
					}
					runs, err := d.gateway().HistoryData(c.Context, id)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(runs)
				},
			},
			{
				Name:      "list",
				Usage:     "List automations for a component",
				ArgsUsage: "<component>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "product", Usage: "Product filter"},
				},
				Action: func(c *cli.Context) error {
					component := c.Args().First()
					if component == "" {
						return outputError(errors.NewInvalidRequest("component is required"))
					}
					list, err := d.gateway().AvailableAutomations(c.Context, component, c.String("product"))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(list)
				},
			},
			{
				Name:      "execute",
				Usage:     "Start an automation (options JSON from --options or stdin)",
				ArgsUsage: "<automation_id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "correlation-id", Aliases: []string{"c"}, Required: true, Usage: "Incident or case number"},
					&cli.StringFlag{Name: "component", Usage: "Component"},
					&cli.StringFlag{Name: "options", Usage: "Runtime options as JSON list or object"},
				},
				Action: func(c *cli.Context) error {
					automationID := c.Args().First()
					raw := c.String("options")
					if raw == "" && stdinHasData() {
						data, err := readStdin()
						if err != nil {
							return outputError(errors.NewInternal(err))
						}
						raw = data
					}
					options, err := gateway.DecodeRuntimeOptions(json.RawMessage(raw))
					if err != nil {
						return outputError(err)
					}
					run, err := d.gateway().ExecuteAutomation(c.Context, automationID, c.String("correlation-id"), c.String("component"), options)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(run)
				},
			},
			{
				Name:      "feedback",
				Usage:     "Rate a run (no flag clears the rating)",
				ArgsUsage: "<automation_id> <workflow_id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "up", Usage: "Thumbs up"},
					&cli.BoolFlag{Name: "down", Usage: "Thumbs down"},
				},
				Action: func(c *cli.Context) error {
					if c.Bool("up") && c.Bool("down") {
						return outputError(errors.NewInvalidRequest("--up and --down are exclusive"))
					}
					var vote *bool
					if c.Bool("up") || c.Bool("down") {
						v := c.Bool("up")
						vote = &v
					}
					out, err := d.gateway().AddFeedback(c.Context, c.Args().Get(0), c.Args().Get(1), vote)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(out)
				},
			},
		},
	}
}

// templatesCmd creates the templates command.
func templatesCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "templates",
		Usage: "List the host's case templates",
		Action: func(c *cli.Context) error {
			templates := d.gateway().Templates(c.Context)
			return outputJSON(map[string]any{
				"available": templates != nil,
				"templates": templates,
			})
		},
	}
}

// quickviewCmd creates the quickview command.
func quickviewCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:      "quickview",
		Usage:     "Open a URL in the quick view window",
		ArgsUsage: "<url>",
		Action: func(c *cli.Context) error {
			url := c.Args().First()
			if err := d.gateway().OpenQuickView(c.Context, url); err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"opened": url})
		},
	}
}

// analyticsCmd creates the analytics command.
func analyticsCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:      "analytics",
		Usage:     "Send a usage event",
		ArgsUsage: "<action>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "metadata", Usage: "Event metadata as a JSON object"},
		},
		Action: func(c *cli.Context) error {
			var metadata map[string]any
			if raw := c.String("metadata"); raw != "" {
				if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
					return outputError(errors.NewInvalidRequest("metadata must be a JSON object"))
				}
			}
			if err := d.gateway().SendAnalytics(c.Context, c.Args().First(), metadata); err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"sent": true})
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the widget preview server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Bind address (defaults to web_bind)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port (defaults to web_port)"},
		},
		Action: func(c *cli.Context) error {
			bind := d.cfg.WebBind
			if c.IsSet("bind") {
				bind = c.String("bind")
			}
			port := d.cfg.WebPort
			if c.IsSet("port") {
				port = c.Int("port")
			}

			// The gateway reports activity to the session, which reads pulses
			// through the gateway.
			var gw *gateway.Client
			session := overlay.NewSession(pulseSourceFunc(func(ctx context.Context, caseID string) pulse.Lookup {
				return gw.GetPulse(ctx, caseID)
			}), d.cfg.PulseOptions(), d.log)
			gw = d.gateway(gateway.WithActivity(session.Activity))

			srv, err := web.NewServer(session, Version, bind, port, d.log)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return web.Run(c.Context, srv, "companion preview", d.log)
		},
	}
}

// backendCmd creates the backend command.
func backendCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "backend",
		Usage: "Start the local backend emulator",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Bind address"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port (defaults to backend_port)"},
			&cli.StringFlag{Name: "seed", Usage: "YAML fixture file to load (defaults to backend_seed_path)"},
			&cli.DurationFlag{Name: "complete-after", Value: 30 * time.Second, Usage: "Delay before started runs complete; 0 leaves them running"},
		},
		Action: func(c *cli.Context) error {
			database, err := db.Init(d.baseDir)
			if err != nil {
				return outputError(errors.NewInternal(fmt.Errorf("initialize database: %w", err)))
			}
			defer database.Close()
			db.ConfigurePool(database, d.cfg)

			if err := seedBackend(database, d, c.String("seed")); err != nil {
				return outputError(err)
			}

			port := d.cfg.BackendPort
			if c.IsSet("port") {
				port = c.Int("port")
			}

			opts := backend.OptionsFromConfig(d.cfg, d.log)
			opts.CompleteAfter = c.Duration("complete-after")
			emu := backend.New(database, opts)
			defer emu.Close()

			return web.Run(c.Context, backend.NewHTTPServer(emu, c.String("bind"), port), "companion backend", d.log)
		},
		Subcommands: []*cli.Command{
			{
				Name:      "export",
				Usage:     "Snapshot the emulator database into a seed file",
				ArgsUsage: "[path]",
				Action: func(c *cli.Context) error {
					database, err := db.Init(d.baseDir)
					if err != nil {
						return outputError(errors.NewInternal(fmt.Errorf("initialize database: %w", err)))
					}
					defer database.Close()

					out, err := backend.Export(c.Context, database, backend.ExportInput{
						Path: c.Args().First(),
						Dir:  filepath.Join(d.baseDir, "exports"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(out)
				},
			},
		},
	}
}

// Helper functions

// pulseSourceFunc adapts a function to overlay.PulseSource.
type pulseSourceFunc func(ctx context.Context, caseID string) pulse.Lookup

func (f pulseSourceFunc) GetPulse(ctx context.Context, caseID string) pulse.Lookup {
	return f(ctx, caseID)
}

// outputJSON marshals result to stdout as JSON. Pulse fields are rich text,
// so HTML is written unescaped.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	cErr := errors.As(err)
	return cli.Exit(fmt.Sprintf("[%s] %s", cErr.Code, cErr.Message), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// readRecordFile loads a pulse record from a JSON file.
func readRecordFile(path string) (*pulse.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("read pulse file: %v", err))
	}
	var r pulse.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid pulse file: %v", err))
	}
	return &r, nil
}

// parseSets turns field=text pairs into a partial record, wrapping each text
// the way the case editor stores it.
func parseSets(sets []string) (*pulse.Record, error) {
	r := &pulse.Record{}
	for _, s := range sets {
		name, text, ok := strings.Cut(s, "=")
		if !ok {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("--set %q: expected field=text", s))
		}
		value := "<p>" + text + "</p>"
		if !r.SetField(strings.TrimSpace(name), &value) {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("--set %q: unknown field", s))
		}
	}
	return r, nil
}

// seedBackend loads fixtures into the emulator database. An explicit seed file
// is always applied; the built-in fixtures only fill an empty database.
func seedBackend(database *sql.DB, d *deps, path string) error {
	if path == "" {
		path = d.cfg.BackendSeedPath
	}
	if path == "" {
		n, err := db.CountAutomations(database)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
	}
	seed, err := backend.LoadSeed(path)
	if err != nil {
		return errors.NewInvalidRequest(err.Error())
	}
	if err := seed.Apply(database); err != nil {
		return errors.NewInternal(err)
	}
	d.log.Info("backend seeded", "automations", len(seed.Automations), "pulses", len(seed.Pulses))
	return nil
}
