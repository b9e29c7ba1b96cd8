package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"trackline/internal/config"
	"trackline/internal/db"
	"trackline/internal/domain"
	"trackline/internal/engine"
	"trackline/internal/migrate"
	"trackline/internal/query"
	"trackline/internal/repo"
	"trackline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Trackline CLI",
	Long: `Trackline tracks activities and their tasks.
An activity's status is never set by hand: it is derived from its tasks
(no tasks or no completed tasks = pending, all completed = completed,
anything in between = in_progress). Listing supports free-text search
over title and description, date range and status filters, and
sortable columns; all filters combine with AND.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TRACKLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func activityCmd() *cobra.Command {
	act := &cobra.Command{
		Use:   "activity",
		Short: "Manage activities",
		Long:  "Activities are the tracked units of work. Each owns a task checklist that drives its derived status.",
	}
	act.AddCommand(activityListCmd())
	act.AddCommand(activitySearchCmd())
	act.AddCommand(activityCreateCmd())
	act.AddCommand(activityShowCmd())
	act.AddCommand(activityUpdateCmd())
	act.AddCommand(activityDeleteCmd())
	return act
}

func activityListCmd() *cobra.Command {
	var raw query.Criteria
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List activities",
		Long:  "Filter by free-text search, date range, and status; sort by created_at, title, start_date, end_date, or status. Filters combine with AND.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if limit <= 0 {
					limit = e.Config.List.PageSize
				}
				items, _, err := e.ListActivities(ctx, raw, limit, offset)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				if len(items) == 0 {
					fmt.Println("No activities found matching your criteria.")
					return nil
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Tasks", "Start", "End", "Created"})
				for _, a := range items {
					done := 0
					for _, t := range a.Tasks {
						if t.Completed {
							done++
						}
					}
					tw.AppendRow(table.Row{
						a.ID, a.Title, string(query.Status(a)),
						fmt.Sprintf("%d/%d", done, len(a.Tasks)),
						dateCell(a.StartDate), dateCell(a.EndDate), a.CreatedAt,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&raw.Search, "search", "", "free-text search over title and description")
	cmd.Flags().StringVar(&raw.StartDate, "start-date", "", "inclusive start date lower bound (YYYY-MM-DD)")
	cmd.Flags().StringVar(&raw.EndDate, "end-date", "", "inclusive end date upper bound (YYYY-MM-DD)")
	cmd.Flags().StringVar(&raw.Status, "status", "", "status filter (pending, in_progress, completed)")
	cmd.Flags().StringVar(&raw.Sort, "sort", "", "sort field (created_at, title, start_date, end_date, status)")
	cmd.Flags().StringVar(&raw.Direction, "direction", "", "sort direction (asc, desc)")
	cmd.Flags().IntVar(&limit, "limit", 0, "max results (default from config)")
	cmd.Flags().IntVar(&offset, "offset", 0, "results to skip")
	return cmd
}

func activitySearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Interactive search over activities",
		Long:  "Reads search terms line by line from stdin and re-renders matches after the configured debounce interval. An empty line exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				all, _, err := e.ListActivities(ctx, query.Criteria{}, 0, 0)
				if err != nil {
					return err
				}
				delay := time.Duration(e.Config.Search.DebounceMS) * time.Millisecond
				searcher := query.NewSearcher(delay, func(items []domain.Activity, spec query.Spec) {
					if len(items) == 0 {
						fmt.Println("No activities found matching your criteria.")
						return
					}
					for _, a := range items {
						fmt.Printf("%4d  %-12s %s\n", a.ID, query.Status(a), a.Title)
					}
				})
				defer searcher.Stop()
				searcher.SetSnapshot(all)

				scanner := bufio.NewScanner(os.Stdin)
				fmt.Println("type to search, empty line to quit")
				for scanner.Scan() {
					line := strings.TrimSpace(scanner.Text())
					if line == "" {
						break
					}
					searcher.Submit(query.Criteria{Search: line})
				}
				return scanner.Err()
			})
		},
	}
	return cmd
}

func activityCreateCmd() *cobra.Command {
	var opts engine.ActivityCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateActivity(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.URL, "url", "", "reference URL")
	cmd.Flags().StringVar(&opts.StartDate, "start-date", "", "start date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&opts.EndDate, "end-date", "", "end date (YYYY-MM-DD or RFC 3339)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func activityShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an activity with its tasks and derived status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GetActivity(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("Activity %d: %s [%s]\n", a.ID, a.Title, query.Status(a))
				if a.Description != "" {
					fmt.Printf("  %s\n", a.Description)
				}
				if a.URL != nil {
					fmt.Printf("  url: %s\n", *a.URL)
				}
				fmt.Printf("  dates: %s .. %s\n", dateCell(a.StartDate), dateCell(a.EndDate))
				for _, t := range a.Tasks {
					mark := " "
					if t.Completed {
						mark = "x"
					}
					fmt.Printf("  [%s] %d %s\n", mark, t.ID, t.Title)
				}
				return nil
			})
		},
	}
	return cmd
}

func activityUpdateCmd() *cobra.Command {
	var title, description, url, startDate, endDate string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an activity",
		Long:  "Only flags you pass change; pass an empty value to clear url or a date.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			opts := engine.ActivityUpdateOptions{ID: id, ActorID: viper.GetString("actor-id")}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			if cmd.Flags().Changed("url") {
				opts.URL = &url
			}
			if cmd.Flags().Changed("start-date") {
				opts.StartDate = &startDate
			}
			if cmd.Flags().Changed("end-date") {
				opts.EndDate = &endDate
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.UpdateActivity(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&url, "url", "", "reference URL (empty clears)")
	cmd.Flags().StringVar(&startDate, "start-date", "", "start date (empty clears)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "end date (empty clears)")
	return cmd
}

func activityDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an activity and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteActivity(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks within an activity",
	}
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskDoneCmd())
	task.AddCommand(taskUndoneCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskAddCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "add <activity-id>",
		Short: "Add a task to an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			opts.ActivityID = id
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.AddTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <activity-id>",
		Short: "List an activity's tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tasks, err := r.ListTasks(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Done", "Created"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Completed, t.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func taskDoneCmd() *cobra.Command {
	return taskToggleCmd("done", "Mark a task completed", true)
}

func taskUndoneCmd() *cobra.Command {
	return taskToggleCmd("undone", "Mark a task not completed", false)
}

func taskToggleCmd(use, short string, completed bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <activity-id> <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			activityID, err := parseID(args[0])
			if err != nil {
				return err
			}
			taskID, err := parseID(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.SetTaskCompleted(ctx, activityID, taskID, completed, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("Activity %d is now %s\n", a.ID, query.Status(a))
				return nil
			})
		},
	}
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <activity-id> <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			activityID, err := parseID(args[0])
			if err != nil {
				return err
			}
			taskID, err := parseID(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteTask(ctx, activityID, taskID, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show activity counts per derived status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				counts, err := e.Stats(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				for _, s := range []domain.Status{domain.StatusPending, domain.StatusInProgress, domain.StatusCompleted} {
					fmt.Printf("%s: %d\n", s, counts[s])
				}
				return nil
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err == nil {
				err = cfg.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") {
				addr = cfg.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") {
				basePath = cfg.Server.BasePath
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("TRACKLINE_JWT_SECRET")}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Trackline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func dateCell(v *string) string {
	if v == nil {
		return "-"
	}
	return *v
}
