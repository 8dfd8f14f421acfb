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

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"aicompass/internal/app"
	"aicompass/internal/catalog"
	"aicompass/internal/config"
	"aicompass/internal/db"
	"aicompass/internal/domain"
	"aicompass/internal/engine"
	"aicompass/internal/selection"
	"aicompass/internal/server"
	"aicompass/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:   "compass",
	Short: "AI Compass CLI",
	Long: `AI Compass runs AI-maturity assessments.
- Assessment: an owner creates one per company; it carries an invite token and an expiry.
- Invite: the respondent opens /invite/{token}, answers the questionnaire and completes it.
- Catalog: pillars, metrics and questions; each answer is 1-5 and scores roll up to a 0-100 composite.
- Lifecycle: active -> cancelled or completed. Both exits close the invite for good.
- Event log: every accepted write, view with 'compass assessment events'.`,
	SilenceUsage: true,
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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("COMPASS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("owner", "local-owner", "owner identifier")
	rootCmd.PersistentFlags().String("catalog", "", "benchmark catalog YAML (defaults to the embedded catalog)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("owner", rootCmd.PersistentFlags().Lookup("owner"))
	_ = viper.BindPFlag("catalog", rootCmd.PersistentFlags().Lookup("catalog"))
	_ = viper.BindEnv("catalog", "COMPASS_CATALOG_FILE")
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(assessmentCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(tokenCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.Workspace = viper.GetString("workspace")
			cfg.CatalogFile = viper.GetString("catalog")
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.BasePath = basePath
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("COMPASS_JWT_SECRET is required for bearer auth")
			}
			logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.LogDev)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTelEndpoint)
			if err != nil {
				return fmt.Errorf("setup tracing: %w", err)
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()
				if err := shutdownTracing(sctx); err != nil {
					logger.Warn("tracer shutdown", zap.Error(err))
				}
			}()

			rt, err := app.Open(ctx, app.Options{
				Workspace:   cfg.Workspace,
				CatalogFile: cfg.CatalogFile,
				InviteDays:  cfg.InviteDays,
				Logger:      logger,
			})
			if err != nil {
				return err
			}
			defer rt.Close()

			handler, err := server.New(server.Config{
				Engine:   rt.Engine,
				BasePath: cfg.BasePath,
				Auth:     server.AuthConfig{JWTSecret: cfg.JWTSecret},
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()
				srv.Shutdown(sctx)
			}()
			logger.Info("serving",
				zap.String("addr", cfg.Addr),
				zap.String("base_path", cfg.BasePath),
				zap.String("catalog_version", rt.Catalog.Version))
			fmt.Printf("Serving AI Compass API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", cfg.Addr, cfg.BasePath, cfg.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func assessmentCmd() *cobra.Command {
	a := &cobra.Command{Use: "assessment", Short: "Manage assessments"}
	a.AddCommand(assessmentCreateCmd())
	a.AddCommand(assessmentListCmd())
	a.AddCommand(assessmentShowCmd())
	a.AddCommand(assessmentUpdateCmd())
	a.AddCommand(assessmentResultsCmd())
	a.AddCommand(assessmentEventsCmd())
	return a
}

func assessmentCreateCmd() *cobra.Command {
	var company, industry, size string
	var inviteDays int
	var answers []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an assessment and print its invite token",
		RunE: func(cmd *cobra.Command, args []string) error {
			qualification, err := parseAnswers(answers)
			if err != nil {
				return err
			}
			opts := engine.CreateOptions{
				OwnerID:         viper.GetString("owner"),
				CompanyName:     company,
				CompanyIndustry: industry,
				CompanySize:     size,
				Qualification:   qualification,
			}
			if cmd.Flags().Changed("invite-days") {
				opts.InviteDays = &inviteDays
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateAssessment(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"id":                a.ID,
					"invite_token":      a.InviteToken,
					"invite_expires_at": a.InviteExpiresAt,
				})
			})
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "company name")
	cmd.Flags().StringVar(&industry, "industry", "", "company industry")
	cmd.Flags().StringVar(&size, "size", "", "company size")
	cmd.Flags().IntVar(&inviteDays, "invite-days", engine.DefaultInviteDays, "days until the invite expires")
	cmd.Flags().StringArrayVar(&answers, "answer", nil, "qualification answer as question=value (repeatable)")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

func assessmentListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your assessments, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListAssessments(ctx, viper.GetString("owner"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Company", "Status", "Progress", "Expires"})
				for _, a := range items {
					pct := 0
					if a.Progress != nil {
						pct = a.Progress.Percent
					}
					tw.AppendRow(table.Row{a.ID, a.CompanyName, a.Status, fmt.Sprintf("%d%%", pct), a.InviteExpiresAt.Format(time.RFC3339)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func assessmentShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an assessment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GetAssessment(ctx, viper.GetString("owner"), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func assessmentUpdateCmd() *cobra.Command {
	var status, company, industry, size string
	var inviteDays int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update, cancel or complete an assessment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.UpdateOptions{ID: args[0], OwnerID: viper.GetString("owner")}
			if cmd.Flags().Changed("status") {
				opts.Status = &status
			}
			if cmd.Flags().Changed("invite-days") {
				opts.InviteDays = &inviteDays
			}
			if cmd.Flags().Changed("company") {
				opts.CompanyName = &company
			}
			if cmd.Flags().Changed("industry") {
				opts.CompanyIndustry = &industry
			}
			if cmd.Flags().Changed("size") {
				opts.CompanySize = &size
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.UpdateAssessment(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "active|cancelled|completed")
	cmd.Flags().IntVar(&inviteDays, "invite-days", 0, "extend the invite to now plus this many days")
	cmd.Flags().StringVar(&company, "company", "", "company name")
	cmd.Flags().StringVar(&industry, "industry", "", "company industry")
	cmd.Flags().StringVar(&size, "size", "", "company size")
	return cmd
}

func assessmentResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results <id>",
		Short: "Score an assessment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				summary, err := e.Results(ctx, viper.GetString("owner"), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(summary)
				}
				printSummary(summary)
				return nil
			})
		},
	}
	return cmd
}

func assessmentEventsCmd() *cobra.Command {
	var limit int
	var cursor int64
	cmd := &cobra.Command{
		Use:   "events <id>",
		Short: "List the event log of an assessment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListEvents(ctx, viper.GetString("owner"), args[0], limit, cursor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Channel", "Payload"})
				for _, ev := range items {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.Channel, ev.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max events")
	cmd.Flags().Int64Var(&cursor, "cursor", 0, "return events after this id")
	return cmd
}

func catalogCmd() *cobra.Command {
	c := &cobra.Command{Use: "catalog", Short: "Inspect the benchmark catalog"}
	c.AddCommand(catalogShowCmd())
	c.AddCommand(catalogValidateCmd())
	return c
}

func catalogShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show pillars and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := catalog.Load(viper.GetString("catalog"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(b)
			}
			fmt.Printf("%s %s\n", b.Name, b.Version)
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Pillar", "Weight", "Metric", "Weight", "Questions"})
			for _, p := range b.Pillars {
				for _, m := range p.Metrics {
					tw.AppendRow(table.Row{p.ID, p.Weight, m.ID, m.Weight, len(m.Questions)})
				}
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func catalogValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a catalog YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = viper.GetString("catalog")
			}
			b, err := catalog.Load(file)
			if viper.GetBool("json") {
				out := map[string]any{"ok": err == nil}
				if err != nil {
					out["error"] = err.Error()
				} else {
					out["pillars"] = len(b.Pillars)
					out["metrics"] = b.MetricCount()
				}
				return printJSON(out)
			}
			if err != nil {
				return err
			}
			fmt.Printf("catalog %s %s ok: %d pillars, %d metrics\n", b.Name, b.Version, len(b.Pillars), b.MetricCount())
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "catalog file (defaults to --catalog)")
	return cmd
}

func tokenCmd() *cobra.Command {
	t := &cobra.Command{Use: "token", Short: "Owner bearer tokens"}
	t.AddCommand(tokenMintCmd())
	return t
}

func tokenMintCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint an owner bearer token signed with COMPASS_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("COMPASS_JWT_SECRET is required")
			}
			token, err := server.SignOwnerToken(secret, viper.GetString("owner"), ttl, time.Now())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"token": token})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	rt, err := app.Open(ctx, app.Options{
		Workspace:   viper.GetString("workspace"),
		CatalogFile: viper.GetString("catalog"),
	})
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt.Engine)
}

func parseAnswers(in []string) ([]selection.Answer, error) {
	out := make([]selection.Answer, 0, len(in))
	for _, raw := range in {
		q, v, ok := strings.Cut(raw, "=")
		if !ok || strings.TrimSpace(q) == "" {
			return nil, fmt.Errorf("invalid --answer %q, want question=value", raw)
		}
		out = append(out, selection.Answer{QuestionID: strings.TrimSpace(q), Value: strings.TrimSpace(v)})
	}
	return out, nil
}

func printSummary(s domain.ScoreSummary) {
	fmt.Printf("Composite %.1f (%s)\n", s.CompositeScore, s.MaturityBand)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Pillar", "Name", "Score"})
	for _, p := range s.PillarScores {
		tw.AppendRow(table.Row{p.PillarID, p.PillarName, fmt.Sprintf("%.1f", p.Score)})
	}
	tw.Render()
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
