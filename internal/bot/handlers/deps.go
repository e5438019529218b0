package handlers

import (
	"log/slog"

	"github.com/textilepro/businessbot/internal/config"
	"github.com/textilepro/businessbot/internal/database"
	"github.com/textilepro/businessbot/internal/gemini"
	"github.com/textilepro/businessbot/internal/loopdetect"
	"github.com/textilepro/businessbot/internal/router"
)

// HandlerDeps provides dependencies for Telegram update handlers.
type HandlerDeps struct {
	Logger       *slog.Logger
	Config       *config.Config
	Store        database.Store
	Router       *router.Router
	Detector     *loopdetect.Detector
	GeminiClient gemini.Client
}
