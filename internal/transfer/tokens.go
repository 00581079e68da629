package transfer

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/store"
)

// SigningLink is a public signing token with its URL.
type SigningLink struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EnsureToken returns the movement's valid signing link on behalf of actor,
// issuing one if needed.
func (s *Service) EnsureToken(ctx context.Context, actor model.Actor, movementID int64) (*SigningLink, error) {
	if _, err := s.authorize(ctx, actor, movementID, "issuing signing link"); err != nil {
		return nil, err
	}
	return s.ensureToken(ctx, movementID)
}

func (s *Service) ensureToken(ctx context.Context, movementID int64) (*SigningLink, error) {
	tok, created, err := store.EnsureToken(ctx, s.DB, movementID, s.tokenTTL(), s.now())
	if err != nil {
		return nil, err
	}
	if created {
		s.Log.WithFields(logrus.Fields{
			"movement_id": movementID,
			"expires_at":  tok.ExpiresAt,
		}).Info("issued signing link")
	}
	return &SigningLink{
		Token:     tok.Token,
		URL:       s.SigningURL(tok.Token),
		ExpiresAt: tok.ExpiresAt,
	}, nil
}

// SigningURL returns the public signing page URL for token.
func (s *Service) SigningURL(token string) string {
	return strings.TrimRight(s.PublicBaseURL, "/") + "/public/sign?token=" + url.QueryEscape(token)
}
