package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"mellium.im/sasl"
	"mellium.im/xmpp"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/mux"

	router "github.com/volklabs/focus/internal/adapters/http"
	"github.com/volklabs/focus/internal/adapters/xmppmuc"
	"github.com/volklabs/focus/internal/app"
	"github.com/volklabs/focus/internal/config"
	"github.com/volklabs/focus/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	origin, err := jid.Parse(cfg.JID)
	if err != nil {
		log.Fatal().Err(err).Str("jid", cfg.JID).Msg("bad client jid")
	}
	roomJID, err := jid.Parse(cfg.Room)
	if err != nil {
		log.Fatal().Err(err).Str("room", cfg.Room).Msg("bad room jid")
	}

	session, err := xmpp.DialClientSession(ctx, origin,
		xmpp.StartTLS(&tls.Config{ServerName: origin.Domainpart()}),
		xmpp.SASL("", cfg.Password, sasl.ScramSha256, sasl.ScramSha1, sasl.Plain),
		xmpp.BindResource(),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("xmpp dial failed")
	}

	transport := xmppmuc.New(session, roomJID, cfg.IQWait)

	go func() {
		if err := session.Serve(mux.New("jabber:client", transport.Option())); err != nil {
			log.Error().Err(err).Msg("session serve ended")
		}
	}()

	room := core.NewChatRoom(transport, roomJID, cfg.Nickname, func() {
		log.Info().Str("room", cfg.Room).Msg("room removed")
	})
	conference := app.NewConferenceSources()
	room.AddListener(conference)

	joinCtx, joinCancel := context.WithTimeout(ctx, 2*cfg.IQWait)
	err = room.Join(joinCtx)
	joinCancel()
	if err != nil {
		log.Fatal().Err(err).Str("room", cfg.Room).Msg("join failed")
	}

	r := router.SetupRouter(cfg, room)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		log.Info().Str("addr", addr).Msg("focus debug server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	room.Leave()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := session.Close(); err != nil {
		log.Error().Err(err).Msg("session close")
	}
	log.Info().Msg("Focus exited gracefully")
}
