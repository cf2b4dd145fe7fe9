// Command catchmail runs the mail-sink daemon: an SMTP receiver that accepts and captures every
// message delivered to it, and an HTTP query surface (with a live SSE push channel) for inspecting
// the captured corpus.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nwaters/catchmail/internal/config"
	"github.com/nwaters/catchmail/internal/httpapi"
	"github.com/nwaters/catchmail/internal/mail"
	"github.com/nwaters/catchmail/internal/smtp"
	"github.com/nwaters/catchmail/internal/sse"
	"github.com/nwaters/catchmail/internal/store"
	"github.com/nwaters/catchmail/internal/supervisor"
	"github.com/nwaters/catchmail/lalog"
)

func main() {
	configFile := flag.String("config", "", "optional JSON configuration file")
	flag.Parse()

	base := config.Default()
	if *configFile != "" {
		var err error
		base, err = config.LoadFile(*configFile)
		if err != nil {
			lalog.DefaultLogger.Abort("main", nil, "%v", err)
		}
	}
	cfg, err := config.ParseFlags(base, flag.Args())
	if err != nil {
		lalog.DefaultLogger.Abort("main", nil, "%v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sup := supervisor.New()
	broker := store.New()
	bus := sse.NewBus()
	newMail := make(chan *mail.Mail, 16)

	sup.Spawn(ctx, "mail-repository-broker", broker.Run)
	sup.Spawn(ctx, "sse-bus", bus.Run)

	if _, err := bus.StartHeartbeat(ctx); err != nil {
		lalog.DefaultLogger.Abort("main", nil, "%v", err)
	}

	bridge := &supervisor.IngestionBridge{In: newMail, Broker: broker, Bus: bus}
	sup.Spawn(ctx, "ingestion-bridge", bridge.Run)

	listener := &smtp.Listener{
		Port:              cfg.SMTPPort,
		Banner:            cfg.BannerName,
		AdvertiseSTARTTLS: cfg.AdvertiseSTARTTLS,
		Out:               newMail,
	}
	sup.Spawn(ctx, "smtp-listener", listener.Run)

	server := httpapi.NewServer(broker, bus)
	mux := http.NewServeMux()
	server.Routes(mux)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("localhost:%d", cfg.HTTPPort),
		Handler: mux,
	}
	sup.Spawn(ctx, "http-query-surface", func(ctx context.Context) error {
		go func() {
			<-ctx.Done()
			httpSrv.Close()
		}()
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	lalog.DefaultLogger.Info("main", nil, "catchmail listening: smtp=%d http=%d banner=%q", cfg.SMTPPort, cfg.HTTPPort, cfg.BannerName)
	<-ctx.Done()
}
