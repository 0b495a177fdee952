package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"issueline/internal/app"
	"issueline/internal/config"
	"issueline/internal/domain"
	"issueline/internal/engine"
	"issueline/internal/events"
	"issueline/internal/server"
	"issueline/internal/tool"
)

// errReported marks a failure whose details were already printed.
var errReported = errors.New("reported")

var rootCmd = &cobra.Command{
	Use:   "il",
	Short: "issueline issue tracker",
	Long: `issueline keeps a dependency-aware issue queue in an append-only event log.
- Workspace: a directory with issueline.yml and the .issueline store (events.jsonl, lock, optional snapshot.db).
- Issues: open or closed, priority 0 (critical) to 4 (deferred), with a free-form type and metadata.
- Dependencies: "blocked blocks-on blocker" edges; cycles are rejected.
- Ready queue: open issues whose blockers are all closed, most urgent and oldest first.
- Event log: every change is one JSON line; view it with 'il log'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errReported) {
			color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ISSUELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "", "actor recorded on events (overrides store.actor)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(createCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(updateCmd())
	rootCmd.AddCommand(closeCmd())
	rootCmd.AddCommand(depCmd())
	rootCmd.AddCommand(readyCmd())
	rootCmd.AddCommand(blockedCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(toolCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create issueline.yml and the store directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			wrote, err := writeDefaultConfig(workspace, false)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"config":      config.Path(workspace),
						"config_new":  wrote,
						"store":       c.Engine.StoreDir(),
						"sequence_no": c.Engine.Sequence(),
					})
				}
				if wrote {
					success("wrote %s", config.Path(workspace))
				}
				success("store ready at %s (%d events)", c.Engine.StoreDir(), c.Engine.Sequence())
				return nil
			})
		},
	}
	return cmd
}

func createCmd() *cobra.Command {
	var (
		opts              engine.IssueCreateOptions
		priority, metaRaw string
	)
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Title = args[0]
			if priority != "" {
				p, err := domain.ParsePriority(priority)
				if err != nil {
					return err
				}
				opts.Priority = &p
			}
			if metaRaw != "" {
				if err := json.Unmarshal([]byte(metaRaw), &opts.Metadata); err != nil {
					return fmt.Errorf("--metadata must be a JSON object: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				issue, err := c.Engine.CreateIssue(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(issue)
				}
				success("created %s", issue.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&opts.Description, "description", "d", "", "description")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "priority 0-4 or name (critical, high, medium, low, deferred)")
	cmd.Flags().StringVarP(&opts.IssueType, "type", "t", "", "issue type (default from config)")
	cmd.Flags().StringVarP(&opts.Assignee, "assignee", "a", "", "assignee")
	cmd.Flags().StringVar(&opts.ParentID, "parent", "", "parent issue id")
	cmd.Flags().StringVar(&opts.DiscoveredFrom, "discovered-from", "", "issue this was discovered while working on")
	cmd.Flags().StringVar(&metaRaw, "metadata", "", "metadata as a JSON object")
	return cmd
}

type filterFlags struct {
	status, assignee, issueType, priority, parent string
}

func (f *filterFlags) register(cmd *cobra.Command, withStatus bool) {
	if withStatus {
		cmd.Flags().StringVar(&f.status, "status", "", "status filter (open|closed)")
	}
	cmd.Flags().StringVar(&f.assignee, "assignee", "", "assignee filter")
	cmd.Flags().StringVar(&f.issueType, "type", "", "issue type filter")
	cmd.Flags().StringVar(&f.priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&f.parent, "parent", "", "parent issue filter")
}

func (f filterFlags) filter() (domain.IssueFilter, error) {
	out := domain.IssueFilter{
		Status:    domain.Status(f.status),
		Assignee:  f.assignee,
		IssueType: f.issueType,
		ParentID:  f.parent,
	}
	if f.priority != "" {
		p, err := domain.ParsePriority(f.priority)
		if err != nil {
			return out, err
		}
		out.Priority = &p
	}
	return out, nil
}

func listCmd() *cobra.Command {
	var f filterFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := f.filter()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				issues, err := c.Engine.ListIssues(ctx, filter)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(issues)
				}
				printIssues(issues)
				return nil
			})
		},
	}
	f.register(cmd, true)
	return cmd
}

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an issue with its dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				issue, err := c.Engine.GetIssue(ctx, args[0])
				if err != nil {
					return err
				}
				blockers, err := c.Engine.Blockers(ctx, issue.ID)
				if err != nil {
					return err
				}
				dependents, err := c.Engine.Dependents(ctx, issue.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"issue":        issue,
						"dependencies": blockers,
						"dependents":   dependents,
					})
				}
				tw := newTable()
				tw.AppendRow(table.Row{"ID", issue.ID})
				tw.AppendRow(table.Row{"Title", issue.Title})
				tw.AppendRow(table.Row{"Status", issue.Status})
				tw.AppendRow(table.Row{"Priority", fmt.Sprintf("%d (%s)", issue.Priority, issue.Priority)})
				tw.AppendRow(table.Row{"Type", issue.IssueType})
				tw.AppendRow(table.Row{"Assignee", issue.Assignee})
				tw.AppendRow(table.Row{"Parent", issue.ParentID})
				tw.AppendRow(table.Row{"Discovered from", issue.DiscoveredFrom})
				tw.AppendRow(table.Row{"Created", issue.CreatedAt.Format(time.RFC3339)})
				tw.AppendRow(table.Row{"Updated", issue.UpdatedAt.Format(time.RFC3339)})
				if issue.ClosedAt != nil {
					tw.AppendRow(table.Row{"Closed", issue.ClosedAt.Format(time.RFC3339)})
					tw.AppendRow(table.Row{"Close reason", issue.CloseReason})
				}
				if len(issue.Metadata) > 0 {
					b, _ := json.Marshal(issue.Metadata)
					tw.AppendRow(table.Row{"Metadata", string(b)})
				}
				if issue.Description != "" {
					tw.AppendRow(table.Row{"Description", issue.Description})
				}
				tw.Render()
				if len(blockers) > 0 {
					fmt.Println("\nBlocked by:")
					printIssues(blockers)
				}
				if len(dependents) > 0 {
					fmt.Println("\nBlocks:")
					printIssues(dependents)
				}
				return nil
			})
		},
	}
	return cmd
}

func updateCmd() *cobra.Command {
	var (
		title, description, priority, issueType, assignee, metaRaw string
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update issue fields",
		Long:  "Only the flags given are changed. --metadata merges into existing metadata; a null value removes a key.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := map[string]any{}
			for flag, key := range map[string]string{
				"title":       "title",
				"description": "description",
				"priority":    "priority",
				"type":        "issue_type",
				"assignee":    "assignee",
			} {
				if !cmd.Flags().Changed(flag) {
					continue
				}
				val, _ := cmd.Flags().GetString(flag)
				fields[key] = val
			}
			if cmd.Flags().Changed("metadata") {
				var meta map[string]any
				if err := json.Unmarshal([]byte(metaRaw), &meta); err != nil {
					return fmt.Errorf("--metadata must be a JSON object: %w", err)
				}
				fields["metadata"] = meta
			}
			return withEngine(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				issue, err := c.Engine.UpdateIssueFields(ctx, args[0], fields, "")
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(issue)
				}
				success("updated %s", issue.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "new description")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "new priority")
	cmd.Flags().StringVarP(&issueType, "type", "t", "", "new issue type")
	cmd.Flags().StringVarP(&assignee, "assignee", "a", "", "new assignee (empty clears)")
	cmd.Flags().StringVar(&metaRaw, "metadata", "", "metadata changes as a JSON object")
	return cmd
}

func closeCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "close <id>",
		Short: "Close an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				issue, err := c.Engine.CloseIssue(ctx, args[0], engine.CloseOptions{Reason: reason})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(issue)
				}
				success("closed %s", issue.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "close reason")
	return cmd
}

func depCmd() *cobra.Command {
	dep := &cobra.Command{Use: "dep", Short: "Manage dependencies"}
	dep.AddCommand(&cobra.Command{
		Use:   "add <blocked> <blocker>",
		Short: "Record that <blocked> cannot start until <blocker> is closed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				d, err := c.Engine.AddDependency(ctx, args[0], args[1], "")
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				success("%s is blocked by %s", d.BlockedID, d.BlockerID)
				return nil
			})
		},
	})
	dep.AddCommand(&cobra.Command{
		Use:   "list <id>",
		Short: "List what an issue depends on and what depends on it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				blockers, err := c.Engine.Blockers(ctx, args[0])
				if err != nil {
					return err
				}
				dependents, err := c.Engine.Dependents(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"dependencies": blockers, "dependents": dependents})
				}
				fmt.Println("Blocked by:")
				printIssues(blockers)
				fmt.Println("\nBlocks:")
				printIssues(dependents)
				return nil
			})
		},
	})
	return dep
}

func readyCmd() *cobra.Command {
	var (
		f     filterFlags
		limit int
	)
	cmd := &cobra.Command{
		Use:   "ready",
		Short: "List open issues with no open blockers",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := f.filter()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				issues, err := c.Engine.GetReadyIssues(ctx, engine.ReadyOptions{Filter: filter, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(issues)
				}
				printIssues(issues)
				return nil
			})
		},
	}
	f.register(cmd, false)
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of issues (0 = all)")
	return cmd
}

func blockedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocked",
		Short: "List open issues waiting on open blockers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				entries, err := c.Engine.GetBlockedIssues(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "P", "Title", "Blocked by"})
				for _, b := range entries {
					ids := make([]string, 0, len(b.Blockers))
					for _, blocker := range b.Blockers {
						ids = append(ids, blocker.ID)
					}
					tw.AppendRow(table.Row{b.Issue.ID, int(b.Issue.Priority), b.Issue.Title, strings.Join(ids, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	var (
		issueID string
		n       int
	)
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show committed events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				evts, err := c.Engine.Events(ctx, issueID)
				if err != nil {
					return err
				}
				if n > 0 && len(evts) > n {
					evts = evts[len(evts)-n:]
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				printEvents(evts)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&issueID, "issue", "", "only events touching this issue")
	cmd.Flags().IntVar(&n, "n", 0, "show only the last n events")
	return cmd
}

func snapshotCmd() *cobra.Command {
	snap := &cobra.Command{Use: "snapshot", Short: "Manage the derived sqlite snapshot"}
	snap.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Persist the current index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				saved, err := c.Engine.SaveSnapshot(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"saved": saved, "sequence_no": c.Engine.Sequence()})
				}
				if saved {
					success("snapshot saved at sequence %d", c.Engine.Sequence())
				} else {
					fmt.Printf("snapshot already current at sequence %d\n", c.Engine.Sequence())
				}
				return nil
			})
		},
	})
	snap.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Check the stored snapshot against a replay of the log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				status, err := c.Engine.VerifySnapshot(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if err := printJSON(status); err != nil {
						return err
					}
				} else {
					tw := newTable()
					tw.AppendRow(table.Row{"Present", status.Present})
					tw.AppendRow(table.Row{"Valid", status.Valid})
					tw.AppendRow(table.Row{"Last sequence", status.LastSeq})
					tw.AppendRow(table.Row{"Log offset", status.LogOffset})
					if !status.SavedAt.IsZero() {
						tw.AppendRow(table.Row{"Saved", status.SavedAt.Format(time.RFC3339)})
					}
					if status.Reason != "" {
						tw.AppendRow(table.Row{"Reason", status.Reason})
					}
					tw.Render()
				}
				if status.Present && !status.Valid {
					return errReported
				}
				return nil
			})
		},
	})
	return snap
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect or create issueline.yml"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := app.ResolveConfig(viper.GetString("workspace"), overrides())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(resolved)
			}
			b, err := resolved.YAML()
			if err != nil {
				return err
			}
			fmt.Print(string(b))
			return nil
		},
	})
	var force bool
	initSub := &cobra.Command{
		Use:   "init",
		Short: "Write a default issueline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			wrote, err := writeDefaultConfig(workspace, force)
			if err != nil {
				return err
			}
			if !wrote {
				return fmt.Errorf("%s already exists; use --force to overwrite", config.Path(workspace))
			}
			success("wrote %s", config.Path(workspace))
			return nil
		},
	}
	initSub.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfg.AddCommand(initSub)
	return cfg
}

func toolCmd() *cobra.Command {
	var paramsRaw string
	cmd := &cobra.Command{
		Use:   "tool <operation>",
		Short: "Run an issue_manager tool operation and print the JSON result",
		Long:  "Operations: " + strings.Join(tool.Operations(), ", "),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]any{}
			if paramsRaw != "" {
				if err := json.Unmarshal([]byte(paramsRaw), &params); err != nil {
					return fmt.Errorf("--params must be a JSON object: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				t := tool.Tool{Store: c.Engine, Actor: c.Config.Store.Actor, Logger: c.Logger}
				res := t.Execute(ctx, tool.Request{Operation: args[0], Params: params})
				if err := printJSON(res); err != nil {
					return err
				}
				if !res.Success {
					return errReported
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&paramsRaw, "params", "", "operation parameters as a JSON object")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngineOverrides(cmd.Context(), overrides(), func(ctx context.Context, c *app.Context) error {
				if addr == "" {
					addr = c.Config.Server.Addr
				}
				if basePath == "" {
					basePath = c.Config.Server.BasePath
				}
				handler, err := server.New(server.Config{
					Engine:   c.Engine,
					BasePath: basePath,
					Logger:   c.Logger,
					Actor:    c.Config.Store.Actor,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					return c.Engine.Watch(gctx)
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
				c.Logger.Info("serving", "addr", addr, "base_path", basePath)
				fmt.Printf("Serving issueline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n", addr, basePath, basePath, basePath)
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	return cmd
}

func overrides() app.Overrides {
	return app.Overrides{
		Actor:    viper.GetString("actor"),
		LogLevel: viper.GetString("log-level"),
	}
}

// withEngine opens the workspace for one command. Without --log-level the
// CLI only logs warnings so that table output stays readable.
func withEngine(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	ov := overrides()
	if ov.LogLevel == "" {
		ov.LogLevel = "warn"
	}
	return withEngineOverrides(ctx, ov, fn)
}

func withEngineOverrides(ctx context.Context, ov app.Overrides, fn func(context.Context, *app.Context) error) error {
	c, err := app.OpenEngine(ctx, viper.GetString("workspace"), ov)
	if err != nil {
		return err
	}
	err = fn(ctx, c)
	return errors.Join(err, c.Close())
}

// writeDefaultConfig writes issueline.yml unless it exists and force is
// false. It reports whether the file was written.
func writeDefaultConfig(workspace string, force bool) (bool, error) {
	path := config.Path(workspace)
	if _, err := os.Stat(path); err == nil && !force {
		return false, nil
	}
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func printIssues(issues []domain.Issue) {
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "P", "Type", "Status", "Assignee", "Title"})
	for _, i := range issues {
		tw.AppendRow(table.Row{i.ID, int(i.Priority), i.IssueType, i.Status, i.Assignee, i.Title})
	}
	tw.Render()
}

func printEvents(evts []events.Event) {
	tw := newTable()
	tw.AppendHeader(table.Row{"Seq", "Time", "Actor", "Type", "Issues"})
	for _, e := range evts {
		tw.AppendRow(table.Row{e.Seq, e.Timestamp.Format(time.RFC3339), e.Actor, e.Type, strings.Join(e.IssueIDs(), ", ")})
	}
	tw.Render()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func success(format string, args ...any) {
	color.New(color.FgGreen).Printf(format+"\n", args...)
}
