package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcelsud/webhook-pipeline/config"
	internalchi "github.com/marcelsud/webhook-pipeline/internal/http/chi"
	"github.com/marcelsud/webhook-pipeline/providers"
	"github.com/marcelsud/webhook-pipeline/webhook"
	webhookredis "github.com/marcelsud/webhook-pipeline/webhook/redis"
	"github.com/marcelsud/webhook-pipeline/webhook/signature"
)

const TIMEOUT = 30 * time.Second

/* The gateway's composition root: dependencies are constructed here and
 * injected downward. Imports go in one direction only: the application
 * imports the business layer, which imports the storage layer.
 */

func main() {
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		return
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	repo, err := webhookredis.NewRepository(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer repo.Close(ctx)

	registry := providers.NewRegistry()
	if err := registry.Load(cfg.ProvidersFile); err != nil {
		fmt.Println(err)
		return
	}

	verifiers, err := signature.FromProviders(registry)
	if err != nil {
		fmt.Println(err)
		return
	}

	s := webhook.NewService(repo, registry, verifiers, cfg.MaxBodyBytes)
	r := internalchi.Handlers(ctx, s, cfg.MaxBodyBytes)

	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         ":" + cfg.Port,
		Handler:      r,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown)
	fmt.Printf("Gateway listening on port %s\n", cfg.Port)
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		fmt.Println(err)
		return
	}
	err = <-errShutdown
	if err != nil {
		fmt.Println(err)
		return
	}
}

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), TIMEOUT)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		fmt.Printf("\nShutting down server...\n")
		errShutdown <- nil
	case context.DeadlineExceeded:
		errShutdown <- fmt.Errorf("forcing the server closed")
	default:
		errShutdown <- fmt.Errorf("forcing the server closed")
	}
}
