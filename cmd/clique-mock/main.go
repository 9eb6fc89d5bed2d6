package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clique/tui/internal/mockapi"
	"github.com/sirupsen/logrus"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4000", "Listen address")
	ttl := flag.Duration("token-ttl", time.Minute, "Access token lifetime")
	pushEvery := flag.Duration("push-every", 20*time.Second, "Interval between generated notifications (0 disables)")
	matchPct := flag.Int("match-pct", 30, "Share of generated notifications that are matches")
	verbose := flag.Bool("v", false, "Log every request")
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	srv := mockapi.NewServer(mockapi.Options{TokenTTL: *ttl, Log: log})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *pushEvery > 0 {
		mockapi.NewGenerator(srv, *pushEvery, *matchPct).Start(ctx)
	}

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		srv.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	log.WithFields(logrus.Fields{
		"addr":      *addr,
		"token_ttl": ttl.String(),
		"password":  mockapi.DefaultPassword,
	}).Info("mock backend listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("server error")
		os.Exit(1)
	}
}
