package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/quire/internal/assembler"
	"github.com/hpungsan/quire/internal/draft"
	"github.com/hpungsan/quire/internal/errors"
	"github.com/hpungsan/quire/internal/ops"
	"github.com/hpungsan/quire/internal/web"
)

// maxStdinBytes caps piped input for draft and turn commands.
const maxStdinBytes = 1 << 20

// newCLIApp creates the CLI application with all commands.
func newCLIApp(svc *ops.Service, logger *zap.Logger) *cli.App {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &cli.App{
		Name:    "quire",
		Usage:   "Conversational journal drafting",
		Version: Version,
		Commands: []*cli.Command{
			sessionCmd(svc),
			contextCmd(svc),
			draftCmd(svc),
			finalizeCmd(svc),
			turnCmd(svc),
			taskCmd(svc),
			insightsCmd(svc),
			searchCmd(svc),
			entriesCmd(svc),
			templateCmd(svc),
			webCmd(svc, logger),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func userFlag() cli.Flag {
	return &cli.StringFlag{Name: "user", Aliases: []string{"u"}, EnvVars: []string{"QUIRE_USER"}, Usage: "User ID"}
}

func sessionFlag() cli.Flag {
	return &cli.StringFlag{Name: "session", Aliases: []string{"s"}, Required: true, Usage: "Session ID"}
}

func sessionInput(c *cli.Context) ops.SessionInput {
	return ops.SessionInput{UserID: c.String("user"), SessionID: c.String("session")}
}

// sessionCmd groups session lifecycle commands.
func sessionCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Start sessions and set user preferences",
		Subcommands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Start a conversation session",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{Name: "id", Usage: "Session ID (default: generated UUID)"},
				},
				Action: func(c *cli.Context) error {
					output, err := svc.StartSession(c.Context, ops.StartSessionInput{
						UserID:    c.String("user"),
						SessionID: c.String("id"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "pref",
				Usage:     "Set a user preference",
				ArgsUsage: "<key> [value]",
				Flags:     []cli.Flag{userFlag()},
				Action: func(c *cli.Context) error {
					output, err := svc.SetPreference(c.Context, ops.SetPreferenceInput{
						UserID: c.String("user"),
						Key:    c.Args().Get(0),
						Value:  strings.Join(c.Args().Tail(), " "),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// contextCmd prints the per-turn context bundle.
func contextCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "context",
		Usage: "Show the context bundle for the next turn",
		Flags: []cli.Flag{userFlag(), sessionFlag()},
		Action: func(c *cli.Context) error {
			output, err := svc.Context(c.Context, sessionInput(c))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// draftCmd groups draft inspection and editing.
func draftCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "draft",
		Usage: "Add to or show the session draft",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Merge a fragment into a section (fragment may be piped via stdin)",
				Flags: []cli.Flag{
					userFlag(),
					sessionFlag(),
					&cli.StringFlag{Name: "section", Usage: "Section name or alias"},
					&cli.StringFlag{Name: "fragment", Aliases: []string{"f"}, Usage: "Text to add"},
					&cli.StringFlag{Name: "raw", Usage: "The user's turn as spoken"},
					&cli.BoolFlag{Name: "json", Usage: `Read {"sections":{...},"hints":[...]} from stdin`},
				},
				Action: func(c *cli.Context) error {
					input := ops.StructureInput{
						UserID:    c.String("user"),
						SessionID: c.String("session"),
						RawText:   c.String("raw"),
					}

					if c.Bool("json") {
						if !stdinHasData() {
							return outputError(errors.NewInvalidRequest("--json requires sections piped via stdin"))
						}
						data, err := readStdin(maxStdinBytes)
						if err != nil {
							return outputError(err)
						}
						var body struct {
							Sections map[string]string `json:"sections"`
							Hints    []draft.Hint      `json:"hints"`
						}
						if err := json.Unmarshal([]byte(data), &body); err != nil {
							return outputError(errors.NewInvalidRequest(fmt.Sprintf("invalid sections JSON: %v", err)))
						}
						input.Sections = body.Sections
						input.Hints = body.Hints
					} else {
						fragment := c.String("fragment")
						if fragment == "" && stdinHasData() {
							data, err := readStdin(maxStdinBytes)
							if err != nil {
								return outputError(err)
							}
							fragment = data
						}
						if c.String("section") == "" || fragment == "" {
							return outputError(errors.NewInvalidRequest("--section and a fragment are required"))
						}
						input.Hints = []draft.Hint{{Section: c.String("section"), Fragment: fragment}}
					}

					output, err := svc.Structure(c.Context, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "show",
				Usage: "Show the session draft",
				Flags: []cli.Flag{userFlag(), sessionFlag()},
				Action: func(c *cli.Context) error {
					output, err := svc.Draft(c.Context, sessionInput(c))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// finalizeCmd commits the draft as an entry.
func finalizeCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "finalize",
		Usage: "Save the session draft as a journal entry",
		Flags: []cli.Flag{userFlag(), sessionFlag()},
		Action: func(c *cli.Context) error {
			output, err := svc.Finalize(c.Context, sessionInput(c))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// turnCmd applies a batch of invocations read from stdin.
func turnCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "turn",
		Usage: `Apply invocations piped via stdin as [{"op":...,"args":{...}}]`,
		Flags: []cli.Flag{userFlag(), sessionFlag()},
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("invocations must be piped via stdin"))
			}
			data, err := readStdin(maxStdinBytes)
			if err != nil {
				return outputError(err)
			}
			invocations, err := parseInvocations(data)
			if err != nil {
				return outputError(err)
			}

			output, err := svc.Turn(c.Context, ops.TurnInput{
				UserID:      c.String("user"),
				SessionID:   c.String("session"),
				Invocations: invocations,
			})
			if output != nil {
				if jerr := outputJSON(output); jerr != nil {
					return jerr
				}
			}
			if err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// taskCmd groups task commands.
func taskCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "task",
		Usage: "Create, complete and list tasks",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Create a task from a title or a spoken phrase",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Task title"},
					&cli.StringFlag{Name: "phrase", Aliases: []string{"p"}, Usage: `Phrase such as "I need to call mom"`},
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Task description"},
					&cli.IntFlag{Name: "priority", Usage: "Priority (1 is most urgent, 0 is unranked)"},
					&cli.StringFlag{Name: "due", Usage: "Due date (YYYY-MM-DD or RFC 3339)"},
				},
				Action: func(c *cli.Context) error {
					output, err := svc.CreateTask(c.Context, ops.CreateTaskInput{
						UserID:      c.String("user"),
						Title:       c.String("title"),
						Phrase:      c.String("phrase"),
						Description: c.String("description"),
						Priority:    c.Int("priority"),
						DueDate:     c.String("due"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "done",
				Usage:     "Complete a task by ID or approximate title",
				ArgsUsage: "[title]",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{Name: "id", Usage: "Task ID"},
				},
				Action: func(c *cli.Context) error {
					output, err := svc.CompleteTask(c.Context, ops.CompleteTaskInput{
						UserID: c.String("user"),
						ID:     c.String("id"),
						Title:  strings.Join(c.Args().Slice(), " "),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "list",
				Usage: "List pending tasks",
				Flags: []cli.Flag{
					userFlag(),
					&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "Include completed tasks"},
				},
				Action: func(c *cli.Context) error {
					output, err := svc.ListTasks(c.Context, ops.ListTasksInput{
						UserID:           c.String("user"),
						IncludeCompleted: c.Bool("all"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// insightsCmd prints an insights report.
func insightsCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "insights",
		Usage: "Report on recent entries",
		Flags: []cli.Flag{
			userFlag(),
			&cli.IntFlag{Name: "days", Aliases: []string{"d"}, Usage: "Window in days (default from config)"},
		},
		Action: func(c *cli.Context) error {
			output, err := svc.Insights(c.Context, ops.InsightsInput{
				UserID: c.String("user"),
				Days:   c.Int("days"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// searchCmd runs a full-text search.
func searchCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Full-text search across entries",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			userFlag(),
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum results (default 10, max 50)"},
		},
		Action: func(c *cli.Context) error {
			output, err := svc.Search(c.Context, ops.SearchInput{
				UserID: c.String("user"),
				Query:  strings.Join(c.Args().Slice(), " "),
				Limit:  c.Int("limit"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// entriesCmd groups entry browsing and export.
func entriesCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "entries",
		Usage: "List, show and export journal entries",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List entries, newest first",
				Flags: []cli.Flag{
					userFlag(),
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum results"},
					&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Pagination offset"},
				},
				Action: func(c *cli.Context) error {
					output, err := svc.ListEntries(c.Context, ops.ListEntriesInput{
						UserID: c.String("user"),
						Limit:  c.Int("limit"),
						Offset: c.Int("offset"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "show",
				Usage:     "Show one entry",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{userFlag()},
				Action: func(c *cli.Context) error {
					output, err := svc.FetchEntry(c.Context, ops.FetchEntryInput{
						UserID: c.String("user"),
						ID:     c.Args().First(),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "export",
				Usage: "Export entries to a JSONL file",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.quire/exports/<user>-<timestamp>.jsonl)"},
				},
				Action: func(c *cli.Context) error {
					output, err := svc.Export(c.Context, ops.ExportInput{
						UserID: c.String("user"),
						Path:   c.String("path"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// templateCmd shows or reloads the active template.
func templateCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "template",
		Usage: "Show or reload the journal template",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the active template",
				Action: func(c *cli.Context) error {
					return outputJSON(svc.TemplateShow())
				},
			},
			{
				Name:  "reload",
				Usage: "Re-read the template file",
				Action: func(c *cli.Context) error {
					output, err := svc.TemplateReload(c.Context)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// webCmd serves the read-only viewer.
func webCmd(svc *ops.Service, logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "web",
		Usage: "Serve the read-only journal viewer",
		Flags: []cli.Flag{
			userFlag(),
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Bind address"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8080, Usage: "Port"},
		},
		Action: func(c *cli.Context) error {
			srv, err := web.NewServer(svc, web.Options{
				Version: Version,
				Bind:    c.String("bind"),
				Port:    c.Int("port"),
				User:    c.String("user"),
				Logger:  logger.Named("web"),
			})
			if err != nil {
				return outputError(err)
			}

			stopWatch, err := svc.WatchTemplate(c.Context)
			if err != nil {
				logger.Warn("template watcher disabled", zap.Error(err))
			} else {
				defer stopWatch()
			}

			if err := web.Run(c.Context, srv, logger.Named("web")); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if qErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", qErr.Code, qErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most maxBytes from stdin.
func readStdin(maxBytes int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, maxBytes+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > maxBytes {
		return "", errors.NewInvalidRequest(fmt.Sprintf("stdin exceeds %d bytes", maxBytes))
	}
	return strings.TrimSpace(string(data)), nil
}

// parseInvocations decodes a JSON array of invocations.
func parseInvocations(s string) ([]assembler.Invocation, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.NewInvalidRequest("invocations are required")
	}
	var invocations []assembler.Invocation
	if err := json.Unmarshal([]byte(s), &invocations); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid invocations JSON: %v", err))
	}
	return invocations, nil
}
