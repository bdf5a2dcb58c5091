package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"heimdall/internal/application"
	"heimdall/internal/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type Config struct {
	BaseURL           string `env:"URL"`
	Realm             string `env:"REALM"`
	ClientID          string `env:"OIDC_CLIENT_ID"`
	ClientSecret      string `env:"OIDC_CLIENT_SECRET"`
	AdminClientID     string `env:"ADMIN_CLIENT_ID"`
	AdminClientSecret string `env:"ADMIN_CLIENT_SECRET"`
	RedirectURL       string `env:"REDIRECT_URL"`
}

// Client talks to one Keycloak realm: the OIDC endpoints for the member's
// authorization-code flow and the admin REST API (service account with
// client credentials) for reading user attributes.
type Client struct {
	oauth   oauth2.Config
	oidc    *http.Client
	admin   *http.Client
	baseURL string
	realm   string
}

func NewClient(cfg *Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	realmURL := fmt.Sprintf("%s/realms/%s", base, cfg.Realm)

	oauthCfg := oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{"openid", "profile", "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  realmURL + "/protocol/openid-connect/auth",
			TokenURL: realmURL + "/protocol/openid-connect/token",
		},
	}

	adminCreds := clientcredentials.Config{
		ClientID:     cfg.AdminClientID,
		ClientSecret: cfg.AdminClientSecret,
		TokenURL:     realmURL + "/protocol/openid-connect/token",
	}
	admin := adminCreds.Client(context.Background())
	admin.Timeout = 15 * time.Second

	return &Client{
		oauth:   oauthCfg,
		oidc:    &http.Client{Timeout: 15 * time.Second},
		admin:   admin,
		baseURL: base,
		realm:   cfg.Realm,
	}
}

func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ResolveCode exchanges an authorization code for the subject id and the
// attributes Keycloak holds for that subject.
func (c *Client) ResolveCode(ctx context.Context, code string) (*application.Identity, error) {
	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	subjectID, err := c.fetchSubject(ctx, token)
	if err != nil {
		return nil, err
	}

	attrs, err := c.FetchAttributes(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	return &application.Identity{SubjectID: subjectID, Attributes: attrs}, nil
}

func (c *Client) fetchSubject(ctx context.Context, token *oauth2.Token) (string, error) {
	url := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/userinfo", c.baseURL, c.realm)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	token.SetAuthHeader(req)

	resp, err := c.oidc.Do(req)
	if err != nil {
		return "", fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, body)
	}

	var claims struct {
		Sub string `json:"sub"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return "", fmt.Errorf("failed to decode userinfo: %w", err)
	}
	if claims.Sub == "" {
		return "", fmt.Errorf("userinfo response missing subject")
	}
	return claims.Sub, nil
}

// FetchAttributes reads a user's attribute map through the admin API.
func (c *Client) FetchAttributes(ctx context.Context, subjectID string) (models.Attributes, error) {
	url := fmt.Sprintf("%s/admin/realms/%s/users/%s", c.baseURL, c.realm, subjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.admin.Do(req)
	if err != nil {
		return nil, fmt.Errorf("admin user request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("admin user request returned %d: %s", resp.StatusCode, body)
	}

	var user struct {
		Attributes map[string][]string `json:"attributes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user representation: %w", err)
	}

	if user.Attributes == nil {
		return models.Attributes{}, nil
	}
	return models.Attributes(user.Attributes), nil
}
