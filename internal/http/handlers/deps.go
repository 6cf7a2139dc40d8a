package handlers

import (
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"goodscommunity/internal/blob"
	"goodscommunity/internal/config"
	"goodscommunity/internal/mail"
	"goodscommunity/internal/notify"
	"goodscommunity/internal/repos"
	"goodscommunity/internal/services"
	"goodscommunity/internal/session"
)

type Deps struct {
	Config   config.Config
	Sessions session.Store
	Hub      *notify.Hub

	AuthHandler         *AuthHandler
	ProductHandler      *ProductHandler
	EmailHandler        *EmailHandler
	NotificationHandler *NotificationHandler
	HomeHandler         *HomeHandler
}

func NewDeps(db *sqlx.DB, cfg config.Config, sessions session.Store, blobs blob.Store, mailer mail.Sender, hub *notify.Hub, logger *zap.Logger) *Deps {
	if logger == nil {
		logger = zap.NewNop()
	}
	memberRepo := repos.NewMemberRepo(db)
	productRepo := repos.NewProductRepo(db)
	keyRepo := repos.NewAuthKeyRepo(db)

	memberSvc := services.NewMemberService(memberRepo, blobs, hub, logger.Named("members"))
	productSvc := services.NewProductService(productRepo, blobs, hub, logger.Named("products"))
	emailSvc := services.NewEmailService(keyRepo, mailer, cfg.AuthKey.TTL, logger.Named("email"))

	return &Deps{
		Config:   cfg,
		Sessions: sessions,
		Hub:      hub,

		AuthHandler:    &AuthHandler{Members: memberSvc, Sessions: sessions, CookieSecure: cfg.HTTP.CookieSecure},
		ProductHandler: &ProductHandler{Products: productSvc},
		EmailHandler:   &EmailHandler{Email: emailSvc},
		NotificationHandler: &NotificationHandler{
			Hub:       hub,
			Sessions:  sessions,
			Heartbeat: cfg.HTTP.SSEHeartbeat,
			Log:       logger.Named("sse"),
		},
		HomeHandler: &HomeHandler{Products: productSvc, Sessions: sessions},
	}
}
