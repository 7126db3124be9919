package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/hiremebahamas/hirebahamas-api/internal/database"
)

const sessionKey = "dbSession"

var errRequestFailed = errors.New("request failed")

// DBRead gives every request behind it its own read session (replica when
// healthy, primary otherwise).
func DBRead(r *database.Router, log zerolog.Logger) gin.HandlerFunc {
	return withSession(r.DBRead, log)
}

// DBWrite gives every request behind it its own primary session.
func DBWrite(r *database.Router, log zerolog.Logger) gin.HandlerFunc {
	return withSession(r.DBWrite, log)
}

// ReadYourWrites routes the request's reads to the primary. Put it before
// DBRead on endpoints that must see writes made moments earlier.
func ReadYourWrites() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(database.WithPrimary(c.Request.Context()))
		c.Next()
	}
}

// Session returns the request's session. It panics when no DBRead/DBWrite
// middleware ran, which is a routing bug.
func Session(c *gin.Context) *database.Session {
	return c.MustGet(sessionKey).(*database.Session)
}

func withSession(acquire func(context.Context) (*database.Session, error), log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := acquire(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Str("path", c.FullPath()).Msg("could not acquire database session")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "database unavailable"})
			return
		}
		c.Set(sessionKey, s)

		defer func() {
			if p := recover(); p != nil {
				_ = s.Close(errRequestFailed)
				panic(p)
			}
			// Handlers that need the commit to succeed before answering
			// call Session(c).Commit() themselves; this is then a no-op.
			var cause error
			if len(c.Errors) > 0 || c.Writer.Status() >= http.StatusBadRequest {
				cause = errRequestFailed
			}
			if err := s.Close(cause); err != nil {
				log.Error().Err(err).Stringer("role", s.Role()).Msg("failed to release database session")
			}
		}()

		c.Next()
	}
}
