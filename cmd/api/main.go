package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"counselhub.org/internal/audit"
	"counselhub.org/internal/auth"
	"counselhub.org/internal/httpapi"
	"counselhub.org/internal/obs"
	"counselhub.org/internal/policy"
	"counselhub.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("COUNSELHUB_PG_DSN")
	if dsn == "" {
		log.Fatal("COUNSELHUB_PG_DSN is required")
	}
	secret := os.Getenv("COUNSELHUB_AUTH_SECRET")
	if secret == "" {
		log.Fatal("COUNSELHUB_AUTH_SECRET is required")
	}

	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	codec, err := auth.NewTokenCodec([]byte(secret))
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	identities := auth.NewPGIdentityStore(store.DB())

	api := httpapi.New(httpapi.Config{
		Version:       version,
		AuthService:   auth.NewService(identities, codec),
		Resolver:      auth.NewResolver(codec, identities),
		Scheduler:     store,
		Engine:        policy.NewEngine(policy.DefaultConfig()),
		Recorder:      audit.NewRecorder(audit.NewPGSink(store.DB())),
		ReadyProbe:    httpapi.ReadyProbe{DB: store.DB()},
		SecureCookies: getenv("COUNSELHUB_SECURE_COOKIES", "true") == "true",
	})

	srv := &http.Server{
		Addr:              getenv("COUNSELHUB_ADDR", ":8080"),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting counselhub-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
