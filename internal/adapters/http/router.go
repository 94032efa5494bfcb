// Package http exposes the read-only debug surface of the focus client.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/volklabs/focus/internal/config"
	"github.com/volklabs/focus/internal/core"
)

// SetupRouter wires the introspection routes. Everything served here is
// a snapshot; nothing mutates room state.
func SetupRouter(cfg *config.Config, room *core.ChatRoom) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "room_state": room.State().String()})
	})

	debug := r.Group("/debug")

	// GET /debug/room — the full observable room snapshot.
	debug.GET("/room", func(c *gin.Context) {
		c.JSON(http.StatusOK, room.Debug())
	})

	// GET /debug/room/members — member snapshots only.
	debug.GET("/room/members", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"count":         room.MemberCount(),
			"audio_senders": room.AudioSendersCount(),
			"video_senders": room.VideoSendersCount(),
			"members":       room.Members(),
		})
	})

	log.Info().Str("module", "adapters.http").Str("room", room.RoomJID().String()).Msg("router setup")
	return r
}
