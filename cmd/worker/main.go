package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"docchat/internal/bootstrap"
	"docchat/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx)
	if err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("close resources failed: %v", err)
		}
	}()

	cfg := app.Config
	awaiting := worker.NewAwaitingWorker(
		app.Log,
		app.MQConn,
		app.Topology,
		app.Orchestrator,
		app.Publisher,
		cfg.Worker.Concurrency,
		cfg.RabbitMQ.MaxRedeliveries,
	)
	if err := awaiting.Start(ctx); err != nil {
		app.Log.Fatal("start awaiting worker failed", "error", err)
	}

	sweeper := worker.NewSweeper(app.Log, app.Chats,
		cfg.Worker.ProcessingLease(), cfg.Worker.AwaitingRepublishAfter())
	if err := sweeper.Start(cfg.Worker.SweepSchedule); err != nil {
		awaiting.Close()
		app.Log.Fatal("start sweeper failed", "error", err)
	}

	app.Log.Info("worker running", "queue", app.Topology.Main, "concurrency", cfg.Worker.Concurrency)
	<-ctx.Done()

	app.Log.Info("worker stopping")
	sweeper.Stop()
	awaiting.Close()
}
