package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tier-cli/internal/config"
	"github.com/sells-group/tier-cli/internal/events"
	"github.com/sells-group/tier-cli/internal/model"
	"github.com/sells-group/tier-cli/internal/tier"
)

// errInvalidTrigger marks a trigger whose source cannot be decoded.
var errInvalidTrigger = errors.New("invalid trigger")

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Process recalculation triggers from the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "consume", true)
		if err != nil {
			return err
		}
		defer env.Close()

		consumer := events.NewConsumer(env.Redis, consumerConfig(cfg.Queue),
			events.NewDeadLetters(env.Redis, cfg.Queue.DLQStream),
			triggerHandler(env.Service),
		)
		if err := consumer.EnsureGroup(ctx); err != nil {
			return err
		}

		zap.L().Info("consuming triggers",
			zap.String("stream", cfg.Queue.Stream),
			zap.String("group", cfg.Queue.Group),
			zap.String("consumer", cfg.Queue.Consumer),
		)
		err = consumer.Run(ctx)

		s := consumer.Stats()
		zap.L().Info("consumer stopped",
			zap.Int64("processed", s.Processed),
			zap.Int64("failed", s.Failed),
			zap.Int64("terminal", s.Terminal),
			zap.Int64("dead_lettered", s.DeadLettered),
		)
		return err
	},
}

func consumerConfig(q config.QueueConfig) events.ConsumerConfig {
	return events.ConsumerConfig{
		Stream:        q.Stream,
		Group:         q.Group,
		Consumer:      q.Consumer,
		BatchSize:     q.BatchSize,
		Concurrency:   q.Concurrency,
		Block:         time.Duration(q.BlockMs) * time.Millisecond,
		MaxDeliveries: q.MaxDeliveries,
		ReclaimIdle:   time.Duration(q.ReclaimIdleSecs) * time.Second,
		Terminal:      terminal,
	}
}

func terminal(err error) bool {
	return errors.Is(err, errInvalidTrigger) || tier.IsTerminal(err)
}

// recalculator is the slice of tier.Service the trigger handler drives.
type recalculator interface {
	Recalculate(ctx context.Context, crn string, src model.RecalculationSource) (*tier.Outcome, error)
}

func triggerHandler(svc recalculator) events.Handler {
	return func(ctx context.Context, t events.Trigger) error {
		src, err := t.Source()
		if err != nil {
			return eris.Wrapf(errInvalidTrigger, "%s: %v", t.CRN, err)
		}
		if t.CRN == "" {
			return eris.Wrap(errInvalidTrigger, "missing crn")
		}
		_, err = svc.Recalculate(ctx, t.CRN, src)
		return err
	}
}

func init() {
	rootCmd.AddCommand(consumeCmd)
}
