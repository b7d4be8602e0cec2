package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/audit"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/ipc"
)

// Identity flags for the one-shot commands.
var (
	actorUser     string
	actorRole     string
	actorTenant   string
	actorTimezone string
	confirmToken  string
	runsLimit     int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Starts the HTTP API on the configured listen address.

Endpoints:
  POST /api/v1/handle        run a command
  POST /api/v1/detect        classify text without side effects
  GET  /api/v1/audit         list the tenant's audit chain (owner, admin)
  GET  /api/v1/audit/verify  verify the tenant's audit chain (owner, admin)
  GET  /api/v1/runs          request history
  GET  /metrics              Prometheus metrics`,
	RunE: runServe,
}

var detectCmd = &cobra.Command{
	Use:   "detect [text]",
	Short: "Classify text and print the ranked intents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDetect,
}

var handleCmd = &cobra.Command{
	Use:   "handle [text]",
	Short: "Run a command end to end and print the result",
	Long: `Classifies the text, compiles its flow and runs it under the policy engine.

Sensitive actions stop with status confirmation_required and a token. Pass the
token back with --confirm to proceed. Confirmation tokens only survive between
invocations when confirm.driver is redis.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHandle,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the per-tenant audit chain",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every audit event of a tenant",
	RunE:  runAuditList,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Recompute the hash chain of a tenant",
	RunE:  runAuditVerify,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Print the request history of a tenant",
	RunE:  runRuns,
}

func init() {
	for _, c := range []*cobra.Command{detectCmd, handleCmd} {
		c.Flags().StringVar(&actorUser, "user", "cli", "acting user id")
		c.Flags().StringVar(&actorRole, "role", string(domain.RoleOwner), "acting role")
		c.Flags().StringVar(&actorTimezone, "tz", "UTC", "IANA timezone for dates")
	}
	for _, c := range []*cobra.Command{detectCmd, handleCmd, auditCmd, runsCmd} {
		flags := c.Flags()
		if c == auditCmd {
			flags = c.PersistentFlags()
		}
		flags.StringVar(&actorTenant, "tenant", "default", "tenant id")
	}
	handleCmd.Flags().StringVar(&confirmToken, "confirm", "", "confirmation token from a previous run")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to print")

	auditCmd.AddCommand(auditListCmd, auditVerifyCmd)
	rootCmd.AddCommand(runsCmd)
}

func cliActor() domain.ActorContext {
	return domain.ActorContext{
		UserID:   actorUser,
		Role:     domain.Role(actorRole),
		TenantID: actorTenant,
		Timezone: actorTimezone,
		NowISO:   time.Now().UTC().Format(time.RFC3339),
		Channel:  domain.ChannelCLI,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	srv := ipc.NewServer(s.handler(cfg, logger), cfg.ListenAddr, s.registry)
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("no auth.jwt_secret configured, trusting X-Spine-* identity headers")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("spine listening", zap.String("addr", cfg.ListenAddr), zap.String("version", version))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runDetect(cmd *cobra.Command, args []string) error {
	s, err := buildStack(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	intents, err := s.orch.Detect(strings.Join(args, " "), cliActor())
	if err != nil {
		return err
	}
	if intents == nil {
		intents = []domain.Intent{}
	}
	return printJSON(cmd.OutOrStdout(), intents)
}

func runHandle(cmd *cobra.Command, args []string) error {
	s, err := buildStack(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.orch.Handle(cmd.Context(), strings.Join(args, " "), cliActor(), confirmToken)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func runAuditList(cmd *cobra.Command, args []string) error {
	s, err := buildStack(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	events, err := s.chain.List(cmd.Context(), actorTenant)
	if err != nil {
		return err
	}
	if events == nil {
		events = []domain.AuditEvent{}
	}
	return printJSON(cmd.OutOrStdout(), events)
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	s, err := buildStack(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	events, err := s.chain.List(cmd.Context(), actorTenant)
	if err != nil {
		return err
	}
	idx, err := audit.Verify(actorTenant, events)
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "tenant %s: chain broken at event %d: %v\n", actorTenant, idx, err)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "tenant %s: %d events, chain intact\n", actorTenant, len(events))
	return nil
}

func runRuns(cmd *cobra.Command, args []string) error {
	s, err := buildStack(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	runs := []domain.RunRecord{}
	if s.runs != nil {
		got, err := s.runs.ListRuns(cmd.Context(), actorTenant, runsLimit)
		if err != nil {
			return err
		}
		if got != nil {
			runs = got
		}
	} else {
		fmt.Fprintln(os.Stderr, "run history needs audit.driver sqlite or postgres")
	}
	return printJSON(cmd.OutOrStdout(), runs)
}
