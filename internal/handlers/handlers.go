package handlers

import (
	"github.com/rs/zerolog"

	"github.com/hiremebahamas/hirebahamas-api/internal/auth"
	"github.com/hiremebahamas/hirebahamas-api/internal/config"
	"github.com/hiremebahamas/hirebahamas-api/internal/database"
)

// Handlers struct holds all dependencies for our handlers.
type Handlers struct {
	DB       *database.Router      // Read/write routing over primary and replica
	DBConfig config.DatabaseConfig // For health diagnostics
	Tokens   *auth.TokenIssuer
	Log      zerolog.Logger
}
