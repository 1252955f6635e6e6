package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc/health"

	"order-desk/backend/internal/bootstrap"
	"order-desk/backend/internal/config"
	healthhandler "order-desk/backend/internal/health/handler"
	"order-desk/backend/internal/server"
)

const readinessInterval = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, cfg, "server")
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer app.Close()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	hs := health.NewServer()
	checker := healthhandler.NewChecker(hs, app.Store, app.Authorizer)
	go checker.Run(ctx, readinessInterval)

	s := server.NewGRPCServer(server.Deps{Health: hs})

	go func() {
		log.Printf("gRPC server listening on %s (docstore %s)", cfg.GRPCAddr, cfg.DocstoreDriver)
		if err := s.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down gRPC server...")
	cancel()
	s.GracefulStop()
	log.Println("gRPC server stopped")
}
