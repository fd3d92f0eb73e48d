// Package session is the Session Bootstrap: it keeps the participant identity
// in the signed cookie session and hands it to the signaling layer.
package session

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dkeye/meshroom/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const identityKey = "identity"

var ErrNoIdentity = errors.New("no identity in session")

// CookieIdentity reads and writes the identity of the current request's session.
type CookieIdentity struct{}

// CurrentIdentity returns the identity bound to the request, if any.
func (CookieIdentity) CurrentIdentity(c *gin.Context) (domain.Identity, bool) {
	s := sessions.Default(c)
	raw, ok := s.Get(identityKey).(string)
	if !ok {
		return "", false
	}
	id, err := domain.NewIdentity(raw)
	if err != nil {
		return "", false
	}
	return id, true
}

// SignIn validates the display name and stores it in the session.
func (CookieIdentity) SignIn(c *gin.Context, raw string) (domain.Identity, error) {
	id, err := domain.NewIdentity(raw)
	if err != nil {
		return "", err
	}
	s := sessions.Default(c)
	s.Set(identityKey, string(id))
	if err := s.Save(); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	log.Info().Str("module", "adapters.session").Str("identity", string(id)).Msg("signed in")
	return id, nil
}

func (CookieIdentity) SignOut(c *gin.Context) error {
	s := sessions.Default(c)
	s.Clear()
	s.Options(sessions.Options{Path: "/", MaxAge: -1})
	return s.Save()
}

// RequireIdentity aborts with 401 when the session carries no identity.
func (ci CookieIdentity) RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := ci.CurrentIdentity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrNoIdentity.Error()})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}
