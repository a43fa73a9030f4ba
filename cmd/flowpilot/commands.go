package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/rendis/flowpilot/internal/graph"
	"github.com/rendis/flowpilot/internal/logging"
	"github.com/rendis/flowpilot/internal/service"
	"github.com/rendis/flowpilot/internal/store"
	"github.com/rendis/flowpilot/pkg/schema"
)

var errRunFailed = errors.New("run failed")

func newRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a stored automation",
		ArgsUsage: "<automation-id>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "var", Usage: "Seed a variable (key=value), repeatable"},
			&cli.BoolFlag{Name: "json", Usage: "Print the execution log as JSON"},
		},
		Action: withRuntime(func(ctx context.Context, cmd *cli.Command, rt *runtime) error {
			id, err := requireArg(cmd, 0, "automation-id")
			if err != nil {
				return err
			}
			seed, err := parsePairs(cmd.StringSlice("var"))
			if err != nil {
				return err
			}

			log, runErr := rt.svc.Run(logging.WithAutomationID(ctx, id), id, seed)
			if log == nil {
				return runErr
			}
			if cmd.Bool("json") {
				if err := printJSON(log); err != nil {
					return err
				}
			} else {
				printLog(log)
			}
			if !log.Success {
				return errRunFailed
			}
			return nil
		}),
	}
}

func newValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate an automation document file",
		ArgsUsage: "<file.json>",
		Action: withRuntime(func(_ context.Context, cmd *cli.Command, rt *runtime) error {
			path, err := requireArg(cmd, 0, "file.json")
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			_, res := rt.svc.Validate(raw)
			printIssues(res)
			if !res.Valid() {
				return res.ToError()
			}
			fmt.Println("valid")
			return nil
		}),
	}
}

func newListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List stored automations",
		Action: withRuntime(func(ctx context.Context, _ *cli.Command, rt *runtime) error {
			list, err := rt.svc.List(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tNODES\tLAST RUN")
			for _, a := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", a.ID, a.Name, a.Status, len(a.Nodes), lastRun(a.LastRun))
			}
			return w.Flush()
		}),
	}
}

func newShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print an automation document",
		ArgsUsage: "<automation-id>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "runs", Usage: "Also print the latest N runs"},
		},
		Action: withRuntime(func(ctx context.Context, cmd *cli.Command, rt *runtime) error {
			id, err := requireArg(cmd, 0, "automation-id")
			if err != nil {
				return err
			}
			a, err := rt.svc.Get(ctx, id)
			if err != nil {
				return err
			}
			if n := cmd.Int("runs"); n > 0 {
				runs, err := rt.svc.Runs(ctx, id, n)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"automation": a, "runs": runs})
			}
			return printJSON(a)
		}),
	}
}

func newDeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "Delete an automation and its run history",
		ArgsUsage: "<automation-id>",
		Action: withRuntime(func(ctx context.Context, cmd *cli.Command, rt *runtime) error {
			id, err := requireArg(cmd, 0, "automation-id")
			if err != nil {
				return err
			}
			if err := rt.svc.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", id)
			return nil
		}),
	}
}

func newImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Store an automation from a file, a bundled example or a blank template",
		ArgsUsage: "[file.json]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "example", Usage: "Name of a bundled example"},
			&cli.BoolFlag{Name: "list-examples", Usage: "List bundled examples"},
			&cli.StringFlag{Name: "new", Usage: "Create a blank automation with this name"},
		},
		Action: withRuntime(func(ctx context.Context, cmd *cli.Command, rt *runtime) error {
			if cmd.Bool("list-examples") {
				for _, name := range store.Examples() {
					fmt.Println(name)
				}
				return nil
			}

			var a *schema.Automation
			switch {
			case cmd.String("example") != "":
				ex, err := store.LoadExample(cmd.String("example"))
				if err != nil {
					return err
				}
				a = ex
			case cmd.String("new") != "":
				a = schema.NewAutomation(cmd.String("new"))
			default:
				path, err := requireArg(cmd, 0, "file.json")
				if err != nil {
					return err
				}
				raw, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				doc, res := rt.svc.Validate(raw)
				if !res.Valid() {
					printIssues(res)
					return res.ToError()
				}
				a = doc
			}

			saved, res, err := rt.svc.Create(ctx, a)
			if res != nil {
				printIssues(res)
			}
			if err != nil {
				return err
			}
			fmt.Printf("created %s\n", saved.ID)
			return nil
		}),
	}
}

func newGraphCommand() *cli.Command {
	return &cli.Command{
		Name:      "graph",
		Usage:     "Render an automation as a diagram",
		ArgsUsage: "<automation-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Value: service.FormatMermaid, Usage: "mermaid, ascii or image"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Write to a file instead of stdout"},
			&cli.BoolFlag{Name: "run", Usage: "Overlay the latest run"},
		},
		Action: withRuntime(func(ctx context.Context, cmd *cli.Command, rt *runtime) error {
			id, err := requireArg(cmd, 0, "automation-id")
			if err != nil {
				return err
			}
			format := cmd.String("format")
			out, err := rt.svc.Diagram(ctx, id, format, cmd.Bool("run"))
			if err != nil {
				return err
			}
			if path := cmd.String("out"); path != "" {
				return os.WriteFile(path, out, 0o644)
			}
			if format == service.FormatImage {
				return errors.New("image output needs --out")
			}
			_, err = os.Stdout.Write(out)
			return err
		}),
	}
}

func newEdgeCommand() *cli.Command {
	return &cli.Command{
		Name:  "edge",
		Usage: "Edit automation edges",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Connect two nodes",
				ArgsUsage: "<automation-id> <source> <target>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "handle", Usage: "Branch of a condition source (if, else)"},
				},
				Action: withRuntime(func(ctx context.Context, cmd *cli.Command, rt *runtime) error {
					if cmd.NArg() != 3 {
						return errors.New("usage: flowpilot edge add <automation-id> <source> <target>")
					}
					edge, err := rt.svc.AddEdge(ctx, cmd.Args().Get(0), graph.EdgeRequest{
						Source: cmd.Args().Get(1),
						Target: cmd.Args().Get(2),
						Handle: schema.Handle(cmd.String("handle")),
					})
					if err != nil {
						return err
					}
					fmt.Printf("added %s\n", edge.ID)
					return nil
				}),
			},
			{
				Name:      "remove",
				Usage:     "Remove an edge by id",
				ArgsUsage: "<automation-id> <edge-id>",
				Action: withRuntime(func(ctx context.Context, cmd *cli.Command, rt *runtime) error {
					if cmd.NArg() != 2 {
						return errors.New("usage: flowpilot edge remove <automation-id> <edge-id>")
					}
					if err := rt.svc.RemoveEdge(ctx, cmd.Args().Get(0), cmd.Args().Get(1)); err != nil {
						return err
					}
					fmt.Printf("removed %s\n", cmd.Args().Get(1))
					return nil
				}),
			},
		},
	}
}

func newNodeCommand() *cli.Command {
	return &cli.Command{
		Name:  "node",
		Usage: "Edit automation nodes",
		Commands: []*cli.Command{
			{
				Name:      "delete",
				Usage:     "Delete a node and its edges",
				ArgsUsage: "<automation-id> <node-id>",
				Action: withRuntime(func(ctx context.Context, cmd *cli.Command, rt *runtime) error {
					if cmd.NArg() != 2 {
						return errors.New("usage: flowpilot node delete <automation-id> <node-id>")
					}
					a, err := rt.svc.DeleteNode(ctx, cmd.Args().Get(0), cmd.Args().Get(1))
					if err != nil {
						return err
					}
					fmt.Printf("deleted node %s, %d nodes left\n", cmd.Args().Get(1), len(a.Nodes))
					return nil
				}),
			},
		},
	}
}

func newCredentialsCommand() *cli.Command {
	return &cli.Command{
		Name:  "credentials",
		Usage: "Manage credentials used by type steps",
		Commands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Create or replace a credential",
				ArgsUsage: "<credential-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "type", Value: string(schema.CredentialUsernamePassword),
						Usage: "username_password, api_key, oauth_token or custom"},
					&cli.StringSliceFlag{Name: "value", Usage: "Credential field (key=value), repeatable"},
				},
				Action: withRuntime(func(ctx context.Context, cmd *cli.Command, rt *runtime) error {
					id, err := requireArg(cmd, 0, "credential-id")
					if err != nil {
						return err
					}
					values, err := parsePairs(cmd.StringSlice("value"))
					if err != nil {
						return err
					}
					c := &schema.Credential{
						ID:          id,
						Name:        cmd.String("name"),
						Type:        schema.CredentialType(cmd.String("type")),
						LastUpdated: time.Now().UTC(),
						Values:      values,
					}
					if err := rt.svc.SaveCredential(ctx, c); err != nil {
						return err
					}
					fmt.Printf("saved credential %s\n", id)
					return nil
				}),
			},
			{
				Name:  "list",
				Usage: "List credentials without their values",
				Action: withRuntime(func(ctx context.Context, _ *cli.Command, rt *runtime) error {
					creds, err := rt.svc.Credentials(ctx)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
					fmt.Fprintln(w, "ID\tNAME\tTYPE\tFIELDS\tUPDATED")
					for _, c := range creds {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Type,
							strings.Join(fieldNames(c.Values), ","), c.LastUpdated.Format(time.RFC3339))
					}
					return w.Flush()
				}),
			},
			{
				Name:      "delete",
				Usage:     "Delete a credential",
				ArgsUsage: "<credential-id>",
				Action: withRuntime(func(ctx context.Context, cmd *cli.Command, rt *runtime) error {
					id, err := requireArg(cmd, 0, "credential-id")
					if err != nil {
						return err
					}
					return rt.svc.DeleteCredential(ctx, id)
				}),
			},
		},
	}
}

func newSettingsCommand() *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Show or change app settings",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print app settings",
				Action: func(context.Context, *cli.Command) error {
					app, err := loadAppSettings()
					if err != nil {
						return err
					}
					return printJSON(app)
				},
			},
			{
				Name:      "set",
				Usage:     "Change one app setting (theme, notifications, downloadPath, debugMode)",
				ArgsUsage: "<key> <value>",
				Action: func(_ context.Context, cmd *cli.Command) error {
					if cmd.NArg() != 2 {
						return errors.New("usage: flowpilot settings set <key> <value>")
					}
					app, err := loadAppSettings()
					if err != nil {
						return err
					}
					if err := app.Set(cmd.Args().Get(0), cmd.Args().Get(1)); err != nil {
						return err
					}
					return saveAppSettings(app)
				},
			},
		},
	}
}

// --- Helpers ---

func requireArg(cmd *cli.Command, i int, name string) (string, error) {
	v := cmd.Args().Get(i)
	if v == "" {
		return "", fmt.Errorf("missing argument <%s>", name)
	}
	return v, nil
}

// parsePairs turns key=value strings into a map.
func parsePairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

func fieldNames(values map[string]string) []string {
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func lastRun(lr *schema.LastRun) string {
	if lr == nil {
		return "-"
	}
	state := "ok"
	if !lr.Success {
		state = "failed"
	}
	return fmt.Sprintf("%s %s (%dms)", lr.Timestamp.Format(time.RFC3339), state, lr.Duration)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printLog(log *schema.ExecutionLog) {
	for _, s := range log.Steps {
		mark := "ok  "
		if !s.Success {
			mark = "FAIL"
		}
		line := fmt.Sprintf("%s node %-4s %6dms", mark, s.NodeID, s.DurationMs)
		if s.Output != "" {
			line += "  " + s.Output
		}
		if s.Error != "" {
			line += "  " + s.Error
		}
		fmt.Println(line)
	}
	fmt.Printf("run %s: %s in %dms\n", log.ID, log.Status, log.Duration)
	if log.Error != nil {
		fmt.Printf("error: %s\n", log.Error.Error())
	}
}

func printIssues(res *schema.ValidationResult) {
	for _, e := range res.Errors {
		fmt.Fprintf(os.Stderr, "error   %s [%s] %s\n", e.Path, e.Code, e.Message)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "warning %s [%s] %s\n", w.Path, w.Code, w.Message)
	}
}
