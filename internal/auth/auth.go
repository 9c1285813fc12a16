package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"projectflow/backend/internal/config"
	"projectflow/backend/internal/repository"
	"projectflow/backend/pkg/models"

	"github.com/coreos/go-oidc"
	"golang.org/x/oauth2"
)

// DevEmail is the actor used when authentication is bypassed in DEV.
const DevEmail = "dev@localhost"

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Auth contains configuration and helpers for performing OpenID Connect
// authentication with an Okta tenant, and resolves the authenticated actor
// to a User record.
type Auth struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	apiVerifier  *oidc.IDTokenVerifier
	users        repository.UserStore
	logger       Logger
	devMode      bool
	authBypass   bool
}

// New creates a new Auth object using values from the application
// configuration. It establishes a connection to the provider and prepares an
// ID token verifier.
func New(ctx context.Context, cfg *config.Config, users repository.UserStore, logger Logger) (*Auth, error) {
	isDev := cfg.IsDev()
	shouldBypass := isDev && cfg.DevModeBypass

	var oauth2Config *oauth2.Config
	var verifier *oidc.IDTokenVerifier
	var apiVerifier *oidc.IDTokenVerifier

	if !shouldBypass {
		if cfg.Auth.OktaDomain == "" || cfg.Auth.ClientID == "" ||
			cfg.Auth.ClientSecret == "" || cfg.Auth.RedirectURL == "" {
			return nil, errors.New("auth configuration is incomplete")
		}

		provider, err := oidc.NewProvider(ctx, cfg.Auth.OktaDomain)
		if err != nil {
			return nil, err
		}

		oauth2Config = &oauth2.Config{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.Auth.RedirectURL,
			Scopes:       []string{ScopeOpenID, ScopeProfile, ScopeEmail},
		}

		verifier = provider.Verifier(&oidc.Config{ClientID: cfg.Auth.ClientID})

		// Access tokens carry the API audience, not the client ID.
		apiVerifier = provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	}

	return &Auth{
		oauth2Config: oauth2Config,
		verifier:     verifier,
		apiVerifier:  apiVerifier,
		users:        users,
		logger:       logger,
		devMode:      isDev,
		authBypass:   shouldBypass,
	}, nil
}

const (
	sessionCookie  = "id_token"
	stateCookie    = "oauthstate"
	verifierCookie = "pkce_verifier"
)

func (a *Auth) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   !a.devMode,
		SameSite: http.SameSiteLaxMode,
	})
}

// LoginHandler starts the authorization code flow. The state and PKCE
// verifier are kept in short-lived cookies until the callback.
func (a *Auth) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if a.authBypass {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	state, err := generateState()
	if err != nil {
		a.logError("generating oauth state", "error", err)
		http.Error(w, "failed to generate state", http.StatusInternalServerError)
		return
	}
	verifier := oauth2.GenerateVerifier()

	a.setCookie(w, stateCookie, state, 600)
	a.setCookie(w, verifierCookie, verifier, 600)

	http.Redirect(w, r, a.oauth2Config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), http.StatusTemporaryRedirect)
}

// CallbackHandler completes the code exchange, verifies the ID token and
// stores it as the session cookie.
func (a *Auth) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if a.authBypass {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	q := r.URL.Query()
	state, err := r.Cookie(stateCookie)
	if err != nil || q.Get("state") == "" || q.Get("state") != state.Value {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	verifier, err := r.Cookie(verifierCookie)
	if err != nil {
		http.Error(w, "missing pkce verifier", http.StatusBadRequest)
		return
	}
	a.setCookie(w, stateCookie, "", -1)
	a.setCookie(w, verifierCookie, "", -1)

	token, err := a.oauth2Config.Exchange(r.Context(), q.Get("code"), oauth2.VerifierOption(verifier.Value))
	if err != nil {
		a.logError("token exchange failed", "error", err)
		http.Error(w, "token exchange failed", http.StatusInternalServerError)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		http.Error(w, "no id_token in token response", http.StatusInternalServerError)
		return
	}
	if _, err := a.verifier.Verify(r.Context(), rawIDToken); err != nil {
		a.logError("id token rejected", "error", err)
		http.Error(w, "failed to verify id token", http.StatusUnauthorized)
		return
	}

	a.setCookie(w, sessionCookie, rawIDToken, 0)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type identity struct {
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Scp   scopeList `json:"scp"`
	Scope scopeList `json:"scope"`

	bearer bool
}

func (i identity) scopes() []string {
	return append(slices.Clone(i.Scp), i.Scope...)
}

var errNoSession = errors.New("no session")

// identify extracts the caller from a bearer access token or the session
// cookie.
func (a *Auth) identify(r *http.Request) (identity, error) {
	if a.authBypass {
		return identity{Email: DevEmail, Name: "Local Developer"}, nil
	}

	raw, verifier, bearer := "", a.apiVerifier, false
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		raw, bearer = strings.TrimPrefix(h, "Bearer "), true
	} else {
		c, err := r.Cookie(sessionCookie)
		if err != nil {
			return identity{}, errNoSession
		}
		raw, verifier = c.Value, a.verifier
	}

	token, err := verifier.Verify(r.Context(), raw)
	if err != nil {
		return identity{}, fmt.Errorf("invalid token: %w", err)
	}
	var who identity
	if err := token.Claims(&who); err != nil {
		return identity{}, fmt.Errorf("failed to parse token claims: %w", err)
	}
	if !strings.Contains(who.Email, "@") {
		return identity{}, errors.New("invalid email format in token")
	}
	who.bearer = bearer
	return who, nil
}

// RequireAuth rejects requests without a valid bearer token or session
// cookie and stores the acting User in the request context. Users seen for
// the first time are provisioned from their token claims.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		who, err := a.identify(r)
		if errors.Is(err, errNoSession) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		user, err := a.resolveUser(r.Context(), who)
		if err != nil {
			a.logError("failed to resolve user", "email", who.Email, "error", err)
			http.Error(w, "failed to resolve user", http.StatusInternalServerError)
			return
		}
		if !user.IsActive {
			http.Error(w, "inactive user", http.StatusForbidden)
			return
		}

		ctx := WithUser(r.Context(), user)
		if who.bearer {
			ctx = WithScopes(ctx, who.scopes())
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) resolveUser(ctx context.Context, who identity) (*models.User, error) {
	user, err := a.users.GetUserByEmail(ctx, who.Email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	user = &models.User{Email: who.Email, FullName: who.Name, IsActive: true}
	if err := a.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	if a.logger != nil {
		a.logger.Info("provisioned user", "user_id", user.ID, "email", user.Email)
	}
	return user, nil
}

func (a *Auth) logError(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Error(msg, args...)
	}
}

// LogoutHandler drops the session cookie.
func (a *Auth) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	a.setCookie(w, sessionCookie, "", -1)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
