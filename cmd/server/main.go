package main

import (
	"github.com/englefamily/Django-CRF-Chat/internal/bus"
	"github.com/englefamily/Django-CRF-Chat/internal/config"
	"github.com/englefamily/Django-CRF-Chat/internal/db"
	clog "github.com/englefamily/Django-CRF-Chat/internal/log"
	"github.com/englefamily/Django-CRF-Chat/internal/presence"
	"github.com/englefamily/Django-CRF-Chat/internal/registry"
	"github.com/englefamily/Django-CRF-Chat/internal/server"
	"github.com/englefamily/Django-CRF-Chat/internal/service"
	"github.com/englefamily/Django-CRF-Chat/internal/ws"

	"github.com/rs/zerolog/log"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接数据库并启动 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env)

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	var b bus.Bus
	switch cfg.BroadcastDriver {
	case "redis":
		rb, err := bus.NewRedis(cfg.RedisAddr)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis bus connect")
		}
		defer rb.Close()
		b = rb
	default:
		b = bus.NewMemory()
	}
	log.Info().Str("driver", cfg.BroadcastDriver).Msg("broadcast bus ready")

	// tracker 和 roomSvc 互相引用：存在性检查晚绑定即可。
	var roomSvc *service.RoomService
	tracker := presence.NewTracker(func(roomID uint) bool { return roomSvc.Exists(roomID) })
	roomSvc = service.NewRoomService(gdb, tracker)
	msgSvc := service.NewMessageService(gdb, b)
	userSvc := service.NewUserService(gdb, cfg)
	reg := registry.New()

	h := server.NewHandler(userSvc, roomSvc, msgSvc)
	r := server.SetupRouter(cfg, h, ws.Deps{
		DB:       gdb,
		Cfg:      cfg,
		Bus:      b,
		Tracker:  tracker,
		Registry: reg,
		Rooms:    roomSvc,
		Messages: msgSvc,
	})
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
