package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"blinkworks/internal/app"
	"blinkworks/internal/config"
	"blinkworks/internal/db"
	"blinkworks/internal/domain"
	"blinkworks/internal/engine"
	"blinkworks/internal/repo"
	"blinkworks/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "bw",
	Short: "Blinkworks CLI",
	Long: `Blinkworks runs a creative-task marketplace.
- Clients submit briefs (tasks). Admins review them, ask for missing info, then
  either push them to the marketplace or assign a designer directly.
- Designers claim marketplace tasks, upload files and links, and submit the
  delivery for review.
- Admins and clients review deliveries: approve, request a revision or reject.
  An approved delivery is frozen; the client then approves the work.
- Every change is written to the event log; view it with 'bw log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return app.LoadEnv(workspace)
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BLINKWORKS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "acting user id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(deliveryCmd())
	rootCmd.AddCommand(overviewCmd())
	rootCmd.AddCommand(logCmd())
}

func initCmd() *cobra.Command {
	var platformID string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create blinkworks.yml and a JWT secret in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(platformID)), 0o644); err != nil {
				return err
			}
			if viper.GetString("jwt-secret") == "" {
				secret, err := randomHex(32)
				if err != nil {
					return err
				}
				if err := app.SetEnvValue(workspace, "BLINKWORKS_JWT_SECRET", secret); err != nil {
					return err
				}
				fmt.Printf("Wrote BLINKWORKS_JWT_SECRET to %s\n", filepath.Join(workspace, app.EnvFile))
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&platformID, "platform", "blinkworks", "platform id")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate blinkworks.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return c
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				authCfg := server.AuthConfig{
					JWTSecret: viper.GetString("jwt-secret"),
					DevLogin:  devLogin,
					Logger:    rt.Logger,
				}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("BLINKWORKS_JWT_SECRET is required for bearer auth; run bw init")
				}
				handler, err := server.New(server.Config{
					Engine:    rt.Engine,
					BasePath:  basePath,
					Auth:      authCfg,
					RateLimit: rt.RateLimit(),
					Files:     rt.Files,
					FilesPath: rt.Config.Storage.Local.BaseURL,
				})
				if err != nil {
					return err
				}
				go server.NewWebhookDispatcher(rt.Engine.Repo, rt.Config, rt.Logger).Run(ctx)

				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Blinkworks API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable POST /auth/dev/login (development only)")
	return cmd
}

func workerCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process background cleanup jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if rt.Config.Redis.Addr == "" {
					return fmt.Errorf("redis.addr is not configured")
				}
				fmt.Printf("Worker consuming from %s\n", rt.Config.Redis.Addr)
				return rt.Worker().Run(ctx, app.RedisOpt(rt.Config), concurrency)
			})
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "parallel jobs")
	return cmd
}

func userCmd() *cobra.Command {
	c := &cobra.Command{Use: "user", Short: "Manage users"}
	c.AddCommand(userCreateCmd())
	c.AddCommand(userListCmd())
	return c
}

func userCreateCmd() *cobra.Command {
	var in engine.CreateUserInput
	var role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user (the first user must be an admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.ActorID = viper.GetString("actor-id")
			in.Role = domain.Role(role)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateUser(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}
	cmd.Flags().StringVar(&in.ID, "id", "", "user id (generated if omitted)")
	cmd.Flags().StringVar(&role, "role", "", "client, designer or admin")
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func userListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				users, err := e.ListUsers(ctx, viper.GetString("actor-id"), domain.Role(role))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := newTable("ID", "Role", "Name", "Email", "Created")
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Role, u.Name, u.Email, u.CreatedAt.Format(time.RFC3339)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	c := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var userID, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key; the raw key is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID := viper.GetString("actor-id")
			if userID == "" {
				userID = actorID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				raw, key, err := e.CreateAPIKey(ctx, userID, name, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "user_id": key.UserID, "name": key.Name, "key": raw})
				}
				fmt.Printf("API key %s for %s:\n%s\n", key.ID, key.UserID, raw)
				return nil
			})
		},
	}
	create.Flags().StringVar(&userID, "user", "", "owner of the key (defaults to the actor)")
	create.Flags().StringVar(&name, "name", "", "key label")
	c.AddCommand(create)
	return c
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks are client briefs. They flow SUBMITTED -> IN_REVIEW -> IN_PROGRESS -> READY_FOR_REVIEW -> APPROVED -> COMPLETED, with INFO_REQUESTED and REVISION_REQUESTED loops and CANCELLED as an exit.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskActionCmd("submit <id>", "Submit a draft", func(ctx context.Context, e engine.Engine, id, actor string, _ []string) (domain.Task, error) {
		return e.SubmitDraft(ctx, id, actor)
	}))
	task.AddCommand(taskMarketplaceCmd())
	task.AddCommand(taskAssignCmd())
	task.AddCommand(taskActionCmd("request-info <id> <feedback...>", "Ask the client for missing information", func(ctx context.Context, e engine.Engine, id, actor string, rest []string) (domain.Task, error) {
		return e.RequestInfo(ctx, id, actor, strings.Join(rest, " "))
	}))
	task.AddCommand(taskActionCmd("claim <id>", "Claim a marketplace task", func(ctx context.Context, e engine.Engine, id, actor string, _ []string) (domain.Task, error) {
		return e.Claim(ctx, id, actor)
	}))
	task.AddCommand(taskActionCmd("approve <id>", "Admin sign-off on a submitted delivery", func(ctx context.Context, e engine.Engine, id, actor string, _ []string) (domain.Task, error) {
		return e.ApproveWork(ctx, id, actor)
	}))
	task.AddCommand(taskActionCmd("cancel <id> [reason...]", "Cancel a task", func(ctx context.Context, e engine.Engine, id, actor string, rest []string) (domain.Task, error) {
		return e.CancelTask(ctx, id, actor, strings.Join(rest, " "))
	}))
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskEventsCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var in engine.CreateTaskInput
	var taskType, priority, deadline string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task as the acting client",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.ActorID = viper.GetString("actor-id")
			in.Type = domain.TaskType(taskType)
			in.Priority = domain.Priority(priority)
			if deadline != "" {
				d, err := time.Parse(time.RFC3339, deadline)
				if err != nil {
					return fmt.Errorf("--deadline: %w", err)
				}
				in.Deadline = &d
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "title")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&taskType, "type", string(domain.TypeStaticDesign), "task type")
	cmd.Flags().StringVar(&priority, "priority", string(domain.PriorityMedium), "low, medium, high or urgent")
	cmd.Flags().StringVar(&in.BrandID, "brand", "", "brand id")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (RFC3339)")
	cmd.Flags().StringArrayVar(&in.Requirements.ReferenceLinks, "reference-link", nil, "reference URL (repeatable)")
	cmd.Flags().StringVar(&in.Requirements.MustInclude, "must-include", "", "elements that must appear")
	cmd.Flags().StringVar(&in.Requirements.MustExclude, "must-exclude", "", "elements that must not appear")
	cmd.Flags().BoolVar(&in.Draft, "draft", false, "keep the task as a private draft")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var in engine.ListTasksInput
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks visible to the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.ListTasks(ctx, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				now := time.Now()
				tw := newTable("ID", "Title", "Status", "Priority", "Client", "Designer", "Deadline")
				for _, t := range tasks {
					designer := ""
					if t.AssignedDesigner != nil {
						designer = *t.AssignedDesigner
					} else if t.InMarketplace() {
						designer = "(marketplace)"
					}
					deadline := ""
					if t.Deadline != nil {
						deadline = t.Deadline.Format("2006-01-02")
						if t.Overdue(now) {
							deadline += " !"
						}
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, t.UserID, designer, deadline})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&in.OwnerID, "client", "", "client filter (admin)")
	cmd.Flags().StringVar(&in.AssigneeID, "designer", "", "designer filter (admin)")
	cmd.Flags().BoolVar(&in.Marketplace, "marketplace", false, "only claimable tasks")
	cmd.Flags().IntVar(&in.Limit, "limit", 100, "max rows")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
}

// taskActionCmd builds a command that applies one engine operation to args[0].
func taskActionCmd(use, short string, op func(ctx context.Context, e engine.Engine, id, actor string, rest []string) (domain.Task, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := op(ctx, e, args[0], viper.GetString("actor-id"), args[1:])
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
}

func taskMarketplaceCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "marketplace <id>",
		Short: "Push a reviewed task to the marketplace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SendToMarketplace(ctx, args[0], viper.GetString("actor-id"), notes)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "admin notes for designers")
	return cmd
}

func taskAssignCmd() *cobra.Command {
	var designer, notes string
	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Assign a designer directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.AssignDesigner(ctx, args[0], viper.GetString("actor-id"), designer, notes)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&designer, "designer", "", "designer user id")
	cmd.Flags().StringVar(&notes, "notes", "", "admin notes")
	_ = cmd.MarkFlagRequired("designer")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task that has not started",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteTask(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func taskEventsCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "events <id>",
		Short: "Show the audit trail of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				evts, err := e.TaskEvents(ctx, args[0], viper.GetString("actor-id"), n)
				if err != nil {
					return err
				}
				return printEvents(evts)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 50, "number of events")
	return cmd
}

func deliveryCmd() *cobra.Command {
	d := &cobra.Command{Use: "delivery", Short: "Manage designer deliveries"}
	d.AddCommand(deliveryFileCmd())
	d.AddCommand(deliveryLinkCmd())
	d.AddCommand(deliveryRemoveCmd())
	d.AddCommand(deliverySubmitCmd())
	d.AddCommand(deliveryReviewCmd())
	return d
}

func deliveryFileCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "add-file <task-id> <path>",
		Short: "Upload a file to the task delivery",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			st, err := f.Stat()
			if err != nil {
				return err
			}
			name := filepath.Base(args[1])
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.AddDeliveryFile(ctx, engine.AddFileInput{
					TaskID:      args[0],
					ActorID:     viper.GetString("actor-id"),
					Name:        name,
					ContentType: mime.TypeByExtension(filepath.Ext(name)),
					Description: description,
					Size:        st.Size(),
					Body:        f,
				})
				if err != nil {
					return err
				}
				return printJSON(t.DesignerDeliveries)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "file description")
	return cmd
}

func deliveryLinkCmd() *cobra.Command {
	var in engine.AddLinkInput
	cmd := &cobra.Command{
		Use:   "add-link <task-id> <url>",
		Short: "Attach a link to the task delivery",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.TaskID, in.URL = args[0], args[1]
			in.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.AddDeliveryLink(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(t.DesignerDeliveries)
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "link label (defaults to the URL)")
	cmd.Flags().StringVar(&in.Description, "description", "", "link description")
	return cmd
}

func deliveryRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <task-id> <delivery-id>",
		Short: "Remove a file or link from the delivery",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.RemoveDelivery(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(t.DesignerDeliveries)
			})
		},
	}
}

func deliverySubmitCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "submit <task-id>",
		Short: "Submit the delivery for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var notesPtr *string
			if cmd.Flags().Changed("notes") {
				notesPtr = &notes
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SubmitDelivery(ctx, args[0], viper.GetString("actor-id"), notesPtr)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "notes for the reviewer")
	return cmd
}

func deliveryReviewCmd() *cobra.Command {
	var decision, feedback string
	cmd := &cobra.Command{
		Use:   "review <task-id>",
		Short: "Approve, reject or request a revision of a submitted delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.ReviewDelivery(ctx, engine.ReviewInput{
					TaskID:   args[0],
					ActorID:  viper.GetString("actor-id"),
					Decision: domain.DeliveryStatus(strings.ToUpper(decision)),
					Feedback: feedback,
				})
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&decision, "decision", "", "APPROVED, REVISION_REQUESTED or REJECTED")
	cmd.Flags().StringVar(&feedback, "feedback", "", "feedback for the designer")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

func overviewCmd() *cobra.Command {
	o := &cobra.Command{Use: "overview", Short: "Workload dashboards (admin)"}
	o.AddCommand(&cobra.Command{
		Use:   "designers",
		Short: "Per-designer workload",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rows, err := e.DesignerWorkload(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := newTable("Designer", "Name", "Active", "Completed", "Overdue", "Total", "Avg days", "Level")
				for _, r := range rows {
					tw.AppendRow(table.Row{r.DesignerID, r.Name, r.Active, r.Completed, r.Overdue, r.Total, avgDays(r.AvgCompletionDays), r.Level})
				}
				tw.Render()
				return nil
			})
		},
	})
	o.AddCommand(&cobra.Command{
		Use:   "clients",
		Short: "Per-client overview",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rows, err := e.ClientOverview(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := newTable("Client", "Name", "Active", "Completed", "Overdue", "Total", "Avg days", "Priority", "Designer")
				for _, r := range rows {
					tw.AppendRow(table.Row{r.ClientID, r.Name, r.Active, r.Completed, r.Overdue, r.Total, avgDays(r.AvgCompletionDays), r.Priority, r.AssignedDesignerName})
				}
				tw.Render()
				return nil
			})
		},
	})
	return o
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	var f repo.EventFilter
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				evts, err := e.RecentEvents(ctx, viper.GetString("actor-id"), f)
				if err != nil {
					return err
				}
				return printEvents(evts)
			})
		},
	}
	tail.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	tail.Flags().StringVar(&f.Type, "type", "", "event type filter")
	tail.Flags().StringVar(&f.TaskID, "task", "", "task id filter")
	tail.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind filter")
	l.AddCommand(tail)
	return l
}

// --- helpers ---

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	rt, err := app.Open(ctx, viper.GetString("workspace"), nil)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
		return fn(ctx, rt.Engine)
	})
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func printEvents(evts []domain.Event) error {
	if viper.GetBool("json") {
		return printJSON(evts)
	}
	tw := newTable("ID", "Time", "Type", "Task", "Actor", "Payload")
	for _, ev := range evts {
		tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.TaskID, ev.ActorID, ev.Payload})
	}
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func avgDays(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
