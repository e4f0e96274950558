package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"erpnext-bridge/internal/config"
	"erpnext-bridge/internal/frappe"
)

// Whitelisted ERPNext methods of the authorization code flow.
const (
	AuthorizeMethod = "frappe.integrations.oauth2.authorize"
	TokenMethod     = "frappe.integrations.oauth2.get_token"
	TestMethod      = "frappe.auth.get_logged_user"
)

// MethodCaller invokes whitelisted backend methods.
type MethodCaller interface {
	GetMethod(ctx context.Context, dottedPath string, params url.Values) (map[string]any, error)
	PostMethod(ctx context.Context, dottedPath string, form url.Values) (map[string]any, error)
	MethodURL(dottedPath string, params url.Values) string
}

// Token is the backend's token response.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Provider runs the OAuth2 authorization code flow against ERPNext.
type Provider struct {
	methods MethodCaller
	cfg     config.OAuthConfig
	state   *StateSigner
	logger  *zap.Logger
}

func NewProvider(methods MethodCaller, cfg config.OAuthConfig, logger *zap.Logger) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("oauth provider: client id is required")
	}
	signer, err := NewStateSigner(cfg.ClientSecret, cfg.StateTTL())
	if err != nil {
		return nil, fmt.Errorf("oauth provider: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{methods: methods, cfg: cfg, state: signer, logger: logger}, nil
}

func (p *Provider) scope() string {
	if p.cfg.Scope == "" {
		return "all"
	}
	return p.cfg.Scope
}

// AuthorizeURL returns the page the user approves access on, and the
// state it carries.
func (p *Provider) AuthorizeURL(redirectURI string) (string, string, error) {
	state, err := p.state.Issue(redirectURI)
	if err != nil {
		return "", "", err
	}
	params := url.Values{}
	params.Set("client_id", p.cfg.ClientID)
	params.Set("state", state)
	params.Set("response_type", "code")
	params.Set("scope", p.scope())
	params.Set("redirect_uri", redirectURI)
	return p.methods.MethodURL(AuthorizeMethod, params), state, nil
}

// ExchangeCode verifies state and trades the authorization code for a token.
func (p *Provider) ExchangeCode(ctx context.Context, code, state, redirectURI string) (*Token, error) {
	if _, err := p.state.Verify(state, redirectURI); err != nil {
		p.logger.Warn("rejected oauth state", zap.Error(err))
		return nil, fmt.Errorf("verify state: %w", err)
	}
	form := p.form("authorization_code", redirectURI)
	form.Set("code", code)
	return p.requestToken(ctx, form)
}

// Refresh trades a refresh token for a new access token.
func (p *Provider) Refresh(ctx context.Context, refreshToken, redirectURI string) (*Token, error) {
	form := p.form("refresh_token", redirectURI)
	form.Set("refresh_token", refreshToken)
	return p.requestToken(ctx, form)
}

// Test returns the user the access token in ctx belongs to.
func (p *Provider) Test(ctx context.Context) (string, error) {
	resp, err := p.methods.GetMethod(ctx, TestMethod, nil)
	if err != nil {
		return "", fmt.Errorf("test connection: %w", err)
	}
	user, ok := resp["message"].(string)
	if !ok || user == "" {
		return "", &frappe.Error{Kind: frappe.KindAuthExpired, Message: "credentials are not valid"}
	}
	return user, nil
}

func (p *Provider) form(grantType, redirectURI string) url.Values {
	form := url.Values{}
	form.Set("grant_type", grantType)
	form.Set("client_id", p.cfg.ClientID)
	if p.cfg.ClientSecret != "" {
		form.Set("client_secret", p.cfg.ClientSecret)
	}
	if redirectURI != "" {
		form.Set("redirect_uri", redirectURI)
	}
	return form
}

func (p *Provider) requestToken(ctx context.Context, form url.Values) (*Token, error) {
	resp, err := p.methods.PostMethod(ctx, TokenMethod, form)
	if err != nil {
		return nil, fmt.Errorf("request token: %w", err)
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode token response: %w", err)
	}
	var tok Token
	if err := json.Unmarshal(raw, &tok); err != nil || tok.AccessToken == "" {
		return nil, &frappe.Error{Kind: frappe.KindMalformedResponse, Message: "token response has no access_token"}
	}
	p.logger.Info("oauth token issued", zap.String("grant_type", form.Get("grant_type")))
	return &tok, nil
}
