package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/taskdesk/domain-service/internal/contracts"
	"github.com/taskdesk/domain-service/internal/domain"
	"github.com/taskdesk/domain-service/internal/eventstore"
	"github.com/taskdesk/domain-service/internal/messaging"
	"github.com/taskdesk/domain-service/internal/platform/config"
	"github.com/taskdesk/domain-service/internal/platform/dbpool"
	"github.com/taskdesk/domain-service/internal/platform/metrics"
	"github.com/taskdesk/domain-service/internal/platform/natsutil"
	"github.com/taskdesk/domain-service/internal/readmodel"
	"golang.org/x/sync/errgroup"
)

const redeliveryDelay = 5 * time.Second

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg config.Worker
	if err := config.Load(&cfg); err != nil {
		log.Fatal(err)
	}

	pool, err := dbpool.New(runCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	tasks := eventstore.NewTaskStore(pool)
	users := eventstore.NewUserStore(pool)
	records := eventstore.NewRecordStore(pool)
	if err := waitForPostgres(runCtx, pool, 30*time.Second, tasks.EnsureSchema, users.EnsureSchema, records.EnsureSchema); err != nil {
		log.Fatal(err)
	}

	client, err := natsutil.ConnectJetStreamWithRetry(cfg.NATSURL, 20*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	dispatcher := domain.NewResilientDispatcher(
		natsutil.EventQueue{JS: client.JS},
		readmodel.NewClient(cfg.ReadModelBaseURL),
	)
	coordinator := domain.NewCoordinator(records, cfg.IdempotencyLease)
	service := domain.NewService(tasks, users, coordinator, dispatcher)

	commandsProcessed := metrics.NewCounterVec(metrics.Opts{
		Name: "commands_processed_total",
		Help: "Commands consumed from the command stream by outcome.",
	}, []string{"entity_type", "type", "outcome"})
	metrics.Default.MustRegister(commandsProcessed)

	sub, err := client.JS.QueueSubscribe(messaging.CommandSubjects, "domain-service", func(msg *nats.Msg) {
		var env contracts.CommandEnvelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Printf("discarding malformed command envelope: %v", err)
			commandsProcessed.WithLabelValues("", "", "malformed").Inc()
			_ = msg.Term()
			return
		}

		cmd, err := domain.ParseCommand(env)
		if err != nil {
			log.Printf("discarding unparseable command: %v", err)
			commandsProcessed.WithLabelValues(env.Command.EntityType, env.Command.Type, "rejected").Inc()
			_ = msg.Term()
			return
		}

		handleCtx, cancel := context.WithTimeout(runCtx, cfg.HandleTimeout)
		defer cancel()

		switch err := service.Handle(handleCtx, cmd); {
		case err == nil:
			commandsProcessed.WithLabelValues(cmd.EntityType, cmd.Type, "ok").Inc()
			_ = msg.Ack()
		case errors.Is(err, domain.ErrCommandInFlight):
			commandsProcessed.WithLabelValues(cmd.EntityType, cmd.Type, "in_flight").Inc()
			_ = msg.NakWithDelay(redeliveryDelay)
		default:
			log.Printf("command %s failed: %v", cmd.IdempotencyKey, err)
			commandsProcessed.WithLabelValues(cmd.EntityType, cmd.Type, "error").Inc()
			_ = msg.Nak()
		}
	}, nats.ManualAck())
	if err != nil {
		log.Fatal(err)
	}

	log.Println("domain service consuming subject:", sub.Subject)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.DefaultHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		_ = sub.Drain()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
}

func waitForPostgres(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration, ensure ...func(context.Context) error) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = pool.Ping(attemptCtx)
		for _, fn := range ensure {
			if lastErr != nil {
				break
			}
			lastErr = fn(attemptCtx)
		}
		cancel()

		if lastErr == nil {
			return nil
		}
		log.Printf("waiting for postgres readiness: %v", lastErr)
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}
