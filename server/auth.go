package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"clawfeed/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	sessionCookie = "session"
	sessionTTL    = 30 * 24 * time.Hour
)

// Google's OAuth2 endpoints, spelled out to avoid pulling in the wider
// Google SDK for two URLs.
var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

const googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// oauthState round-trips the caller's origin through the OAuth dance so the
// callback can redirect back to the right frontend.
type oauthState struct {
	Origin      string `json:"origin"`
	RedirectURI string `json:"redirectUri"`
}

func (a *api) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.config.GoogleClientID,
		ClientSecret: a.config.GoogleClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     googleEndpoint,
	}
}

func (a *api) authEnabled() bool {
	return a.config.GoogleClientID != "" && a.config.GoogleClientSecret != ""
}

// withUser resolves the session cookie to a user and stashes it in locals.
// Requests without a valid session pass through anonymously.
func (a *api) withUser(c *fiber.Ctx) error {
	if sessionId := c.Cookies(sessionCookie); sessionId != "" {
		user, err := a.store.GetSessionUser(c.Context(), sessionId)
		if err != nil {
			log.WithFields(log.Fields{
				"error": err,
			}).Error("Error resolving session")
		} else if user != nil {
			c.Locals("user", user)
			c.Locals("session", sessionId)
		}
	}
	return c.Next()
}

func currentUser(c *fiber.Ctx) *models.User {
	if user, ok := c.Locals("user").(*models.User); ok {
		return user
	}
	return nil
}

func (a *api) getAuthConfig(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"authEnabled": a.authEnabled()})
}

func (a *api) googleRedirect(c *fiber.Ctx) error {
	if !a.authEnabled() {
		return c.Status(503).JSON(fiber.Map{"error": "auth not configured"})
	}

	origin := c.Query("origin")
	if origin == "" {
		origin = c.Get("Referer")
	}
	if origin == "" {
		origin = a.config.BaseURL
	}
	origin = strings.TrimSuffix(origin, "/")
	redirectURI := origin + "/api/auth/callback"

	stateJSON, err := json.Marshal(oauthState{Origin: origin, RedirectURI: redirectURI})
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "state encoding failed"})
	}
	state := base64.RawURLEncoding.EncodeToString(stateJSON)

	authURL := a.oauthConfig(redirectURI).AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "select_account"))
	return c.Redirect(authURL, fiber.StatusFound)
}

func (a *api) googleCallback(c *fiber.Ctx) error {
	code := c.Query("code")
	if code == "" {
		return c.Status(400).JSON(fiber.Map{"error": "missing code"})
	}

	origin := strings.TrimSuffix(a.config.BaseURL, "/")
	redirectURI := origin + "/api/auth/callback"
	if stateRaw := c.Query("state"); stateRaw != "" {
		if stateJSON, err := base64.RawURLEncoding.DecodeString(stateRaw); err == nil {
			var state oauthState
			if err := json.Unmarshal(stateJSON, &state); err == nil {
				if state.Origin != "" {
					origin = state.Origin
				}
				if state.RedirectURI != "" {
					redirectURI = state.RedirectURI
				}
			}
		}
	}

	conf := a.oauthConfig(redirectURI)
	token, err := conf.Exchange(c.Context(), code)
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Error("Token exchange failed")
		return c.Status(500).JSON(fiber.Map{"error": "token exchange failed"})
	}

	googleUser, err := fetchGoogleUser(c, conf, token)
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Error("Userinfo request failed")
		return c.Status(500).JSON(fiber.Map{"error": "userinfo request failed"})
	}

	user, err := a.store.UpsertUser(c.Context(), googleUser.Id, googleUser.Email, googleUser.Name, googleUser.Picture)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "user upsert failed"})
	}

	sessionId := uuid.New().String()
	expires := time.Now().UTC().Add(sessionTTL)
	if err := a.store.CreateSession(c.Context(), models.Session{
		Id:        sessionId,
		UserId:    user.Id,
		ExpiresAt: expires.Format("2006-01-02 15:04:05"),
	}); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "session creation failed"})
	}

	c.Cookie(&fiber.Cookie{
		Name:     sessionCookie,
		Value:    sessionId,
		Expires:  expires,
		Path:     "/",
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	log.WithFields(log.Fields{
		"user": user.Id,
		"slug": user.Slug,
	}).Info("User logged in")

	return c.Redirect(origin+"/", fiber.StatusFound)
}

type googleUser struct {
	Id      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func fetchGoogleUser(c *fiber.Ctx, conf *oauth2.Config, token *oauth2.Token) (*googleUser, error) {
	client := conf.Client(c.Context(), token)
	resp, err := client.Get(googleUserinfoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	var user googleUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, err
	}
	if user.Id == "" {
		return nil, fmt.Errorf("userinfo response missing id")
	}
	return &user, nil
}

func (a *api) getMe(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return c.Status(401).JSON(fiber.Map{"error": "not authenticated"})
	}
	return c.JSON(fiber.Map{"user": user})
}

func (a *api) logout(c *fiber.Ctx) error {
	if sessionId, ok := c.Locals("session").(string); ok && sessionId != "" {
		if err := a.store.DeleteSession(c.Context(), sessionId); err != nil {
			log.WithFields(log.Fields{
				"error": err,
			}).Error("Error deleting session")
		}
	}

	c.Cookie(&fiber.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		Path:     "/",
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.JSON(fiber.Map{"ok": true})
}

// validAPIKey authorizes machine clients via bearer token or query param.
// An unset server key rejects everything.
func (a *api) validAPIKey(c *fiber.Ctx) bool {
	if a.config.APIKey == "" {
		return false
	}
	bearer := strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
	return bearer == a.config.APIKey || c.Query("api_key") == a.config.APIKey
}
