// Package cli is the chatclient command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"chat-client/internal/app"
	"chat-client/internal/config"
	"chat-client/internal/observability"
	"chat-client/internal/rabbitmq"
	"chat-client/internal/session"
	"chat-client/internal/telemetry"
)

const AppName = "chatclient"

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "Headless client for the chat backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.Version = version
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.AddCommand(
		NewLoginCmd(),
		NewLogoutCmd(),
		NewWatchCmd(),
		NewChatCmd(),
		NewSearchCmd(),
		NewNotificationsCmd(),
		NewConversationsCmd(),
		NewServeFakeCmd(),
	)
	return cmd
}

// env is everything a command needs, built from the environment.
type env struct {
	cfg       config.Config
	sessions  *session.Store
	publisher rabbitmq.Publisher
	client    *app.Client
	metrics   *http.Server
	tracing   func(context.Context) error
}

func setup(ctx context.Context) (*env, error) {
	cfg := config.Load()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, AppName)
	if err != nil {
		return nil, err
	}

	sessions, err := session.Open(cfg.SessionDSN)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	log.Printf("event publisher mode=%s reason=%q", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	observability.SetPublisher(publisher)
	emitter := telemetry.NewAuditEmitter(publisher, "audit.chat-client", AppName, cfg.Environment)

	e := &env{
		cfg:       cfg,
		sessions:  sessions,
		publisher: publisher,
		tracing:   shutdownTracing,
		client: app.New(app.Config{
			APIBaseURL:  cfg.APIBaseURL,
			WSBaseURL:   cfg.WSBaseURL,
			DeviceID:    cfg.DeviceID,
			DialRetries: cfg.DialRetries,
			HTTPTimeout: cfg.HTTPTimeout,
		}, sessions, app.WithAuditor(emitter)),
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		e.metrics = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := e.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics server error: %v", err)
			}
		}()
	}
	return e, nil
}

// signedIn is setup plus a resumed session.
func signedIn(cmd *cobra.Command) (*env, error) {
	e, err := setup(cmd.Context())
	if err != nil {
		return nil, err
	}
	if err := e.client.Resume(cmd.Context()); err != nil {
		e.Close()
		if errors.Is(err, session.ErrNoSession) {
			return nil, fmt.Errorf("not signed in, run %s login first", AppName)
		}
		return nil, err
	}
	return e, nil
}

func (e *env) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e.client.Close()
	if e.metrics != nil {
		_ = e.metrics.Shutdown(ctx)
	}
	if err := e.publisher.Close(); err != nil {
		log.Printf("publisher close: %v", err)
	}
	if err := e.sessions.Close(); err != nil {
		log.Printf("session store close: %v", err)
	}
	if err := e.tracing(ctx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
}

func writeCommandError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
	return err
}
