package server

import (
	"database/sql"

	"github.com/rs/zerolog"

	"billcard/internal/cache"
	"billcard/internal/config"
	"billcard/internal/ledger"
	"billcard/internal/websocket"
)

// App holds shared dependencies for the application.
type App struct {
	DB     *sql.DB
	Hub    *websocket.Hub
	Engine *ledger.Engine
	Cache  *cache.Store
	Loader *cache.Loader
	Config config.Config
	Log    zerolog.Logger
}
