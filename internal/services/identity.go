package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Identity is the Discord user behind a dashboard token
type Identity struct {
	UserID   int64
	Username string
}

// IdentityVerifier resolves a bearer token to a Discord user
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// DiscordIdentityVerifier calls GET /users/@me with the user's OAuth token
type DiscordIdentityVerifier struct {
	timeout time.Duration
}

// NewDiscordIdentityVerifier creates a verifier with a per-call timeout
func NewDiscordIdentityVerifier(timeout time.Duration) *DiscordIdentityVerifier {
	return &DiscordIdentityVerifier{timeout: timeout}
}

// Verify looks the token up. A rejected token yields ErrUnauthenticated,
// any other failure ErrExternalDependency.
func (v *DiscordIdentityVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthenticated
	}

	session, err := discordgo.New("Bearer " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %v: %w", err, ErrExternalDependency)
	}
	session.Client = &http.Client{Timeout: v.timeout}
	session.MaxRestRetries = 0

	user, err := session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil &&
			(restErr.Response.StatusCode == http.StatusUnauthorized || restErr.Response.StatusCode == http.StatusForbidden) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("discord identity: %v: %w", err, ErrExternalDependency)
	}

	id, err := strconv.ParseInt(user.ID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("discord returned user id %q: %w", user.ID, ErrExternalDependency)
	}
	return &Identity{UserID: id, Username: user.Username}, nil
}
