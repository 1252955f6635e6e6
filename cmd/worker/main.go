// Worker deletes expired, unused invite codes every INVITE_PURGE_INTERVAL. Used codes are kept as the record of
// who joined. Run one worker per document store.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"order-desk/backend/internal/bootstrap"
	"order-desk/backend/internal/config"
)

const purgeTimeout = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DocstoreDriver == config.DriverMemory {
		log.Fatal("worker: DOCSTORE_DRIVER=memory is private to one process; set postgres or redis")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("worker: shutting down...")
		cancel()
	}()

	app, err := bootstrap.New(ctx, cfg, "worker")
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer app.Close()

	interval := cfg.InvitePurgeInterval()
	log.Printf("worker: purging expired invite codes every %s", interval)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		purge(ctx, app)
		select {
		case <-ctx.Done():
			log.Println("worker: stopped")
			return
		case <-t.C:
		}
	}
}

func purge(ctx context.Context, app *bootstrap.App) {
	ctx, cancel := context.WithTimeout(ctx, purgeTimeout)
	defer cancel()
	n, err := app.Invites.PurgeExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("worker: purge failed: %v", err)
		}
		return
	}
	if n > 0 {
		log.Printf("worker: purged %d expired invite codes", n)
	}
}
