// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/pquerna/otp"

	"github.com/squidbay/squidops-tui/internal/listview"
	"github.com/squidbay/squidops-tui/internal/session"
)

// Scheduler limits accepted by the server.
const (
	DefaultMaxPostsPerDay   = 3
	DefaultMaxRepliesPerDay = 10
	MaxPostsPerDayLimit     = 20
	MaxRepliesPerDayLimit   = 50
)

// maskedPrefix marks a token field that still shows the stored value.
const maskedPrefix = "****"

// PlatformSettings is the server-side configuration shown in the settings tab.
// Secrets are never returned; only whether one is set and its last digits.
type PlatformSettings struct {
	CloudflareTokenSet    bool
	CloudflareTokenSuffix string
	CloudflareZoneID      string
	MaxPostsPerDay        int
	MaxRepliesPerDay      int
	APIBaseURL            string
}

// MaskedToken is what the token field shows before editing.
func (p PlatformSettings) MaskedToken() string {
	if !p.CloudflareTokenSet {
		return ""
	}
	return maskedPrefix + p.CloudflareTokenSuffix
}

type wireSettings struct {
	CloudflareToken       any     `json:"cloudflare_token"`
	CloudflareTokenSuffix string  `json:"cloudflare_token_suffix"`
	CloudflareZoneID      string  `json:"cloudflare_zone_id"`
	MaxPostsPerDay        FlexInt `json:"max_posts_per_day"`
	MaxRepliesPerDay      FlexInt `json:"max_replies_per_day"`
	APIBaseURL            string  `json:"api_base_url"`
}

func (w wireSettings) normalize() PlatformSettings {
	p := PlatformSettings{
		CloudflareTokenSet:    truthy(w.CloudflareToken),
		CloudflareTokenSuffix: w.CloudflareTokenSuffix,
		CloudflareZoneID:      w.CloudflareZoneID,
		MaxPostsPerDay:        int(w.MaxPostsPerDay),
		MaxRepliesPerDay:      int(w.MaxRepliesPerDay),
		APIBaseURL:            w.APIBaseURL,
	}
	if p.MaxPostsPerDay == 0 {
		p.MaxPostsPerDay = DefaultMaxPostsPerDay
	}
	if p.MaxRepliesPerDay == 0 {
		p.MaxRepliesPerDay = DefaultMaxRepliesPerDay
	}
	return p
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	default:
		return true
	}
}

// FetchSettings reads /admin/settings. Servers without the endpoint get
// defaults; only a dead session is an error.
func FetchSettings(ctx context.Context, b Backend) (PlatformSettings, error) {
	var w wireSettings
	if err := getAdmin(ctx, b, "/admin/settings", &w); err != nil {
		if session.IsSessionExpired(err) || ctx.Err() != nil {
			return PlatformSettings{}, err
		}
		w = wireSettings{}
	}
	return w.normalize(), nil
}

// =============================================================================
// TWO-FACTOR SETUP
// =============================================================================

// TwoFactorSetup is a pending authenticator enrollment. It takes effect only
// after EnableTwoFactor accepts a code from it.
type TwoFactorSetup struct {
	Key *otp.Key
}

// Secret is the base32 secret for manual entry.
func (s TwoFactorSetup) Secret() string { return s.Key.Secret() }

// URL is the otpauth:// URL an authenticator app can import.
func (s TwoFactorSetup) URL() string { return s.Key.URL() }

const (
	totpIssuer  = "SquidBay"
	totpAccount = "admin"
)

// parseSetup turns the setup response into a key. The server may send an
// otpauth URL, an image URL for a QR code, or only the secret.
func parseSetup(secret, rawURL string) (*otp.Key, error) {
	if strings.HasPrefix(rawURL, "otpauth://") {
		return otp.NewKeyFromURL(rawURL)
	}
	if secret == "" {
		return nil, errors.New("2fa setup: server returned no secret")
	}
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", totpIssuer)
	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + totpIssuer + ":" + totpAccount,
		RawQuery: v.Encode(),
	}
	return otp.NewKeyFromURL(u.String())
}

// ValidateTOTPCode checks the shape of a six-digit authenticator code.
func ValidateTOTPCode(code string) error {
	if len(code) != 6 || strings.Trim(code, "0123456789") != "" {
		return errors.New("enter a 6-digit code")
	}
	return nil
}

// =============================================================================
// PANEL
// =============================================================================

// Settings is the settings tab.
type Settings struct {
	backend Backend
	opts    options

	mu      sync.Mutex
	current PlatformSettings
	loaded  bool
	pending *TwoFactorSetup
}

// NewSettings creates the settings tab over b.
func NewSettings(b Backend, opts ...Option) *Settings {
	return &Settings{backend: b, opts: buildOptions(opts)}
}

// Load refreshes the platform settings.
func (s *Settings) Load(ctx context.Context) error {
	p, err := FetchSettings(ctx, s.backend)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.current, s.loaded = p, true
	s.mu.Unlock()
	return nil
}

// Current returns the last loaded settings.
func (s *Settings) Current() (PlatformSettings, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.loaded
}

// Pending returns the enrollment started by SetupTwoFactor, if any.
func (s *Settings) Pending() *TwoFactorSetup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// SetupTwoFactor starts authenticator enrollment.
func (s *Settings) SetupTwoFactor(ctx context.Context) (*TwoFactorSetup, error) {
	var resp struct {
		Secret     string `json:"secret"`
		QRURL      string `json:"qr_url"`
		OTPAuthURL string `json:"otpauth_url"`
	}
	if err := s.backend.AuthorizedJSON(ctx, http.MethodPost, "/admin/2fa/setup", nil, &resp); err != nil {
		return nil, fmt.Errorf("2fa setup: %w", err)
	}
	key, err := parseSetup(resp.Secret, firstNonEmpty(resp.OTPAuthURL, resp.QRURL))
	if err != nil {
		return nil, err
	}
	setup := &TwoFactorSetup{Key: key}
	s.mu.Lock()
	s.pending = setup
	s.mu.Unlock()
	return setup, nil
}

// EnableTwoFactor confirms the pending enrollment with a code from it.
func (s *Settings) EnableTwoFactor(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if err := ValidateTOTPCode(code); err != nil {
		return &listview.ValidationError{Action: "enable-2fa", Err: err}
	}
	if s.Pending() == nil {
		return &listview.ValidationError{Action: "enable-2fa", Err: errors.New("start 2FA setup first")}
	}
	if err := s.backend.AuthorizedJSON(ctx, http.MethodPost, "/admin/2fa/verify", map[string]string{"code": code}, nil); err != nil {
		return &listview.ActionError{Action: "enable-2fa", Err: err}
	}
	s.backend.Audit("enable_2fa", "2FA enabled")
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
	return nil
}

// DisableTwoFactor turns the second factor off.
func (s *Settings) DisableTwoFactor(ctx context.Context) error {
	if err := s.backend.AuthorizedJSON(ctx, http.MethodPost, "/admin/2fa/disable", nil, nil); err != nil {
		return &listview.ActionError{Action: "disable-2fa", Err: err}
	}
	s.backend.Audit("disable_2fa", "2FA disabled")
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
	return nil
}

// RegenerateBackupCodes replaces every backup code and returns the new set.
// They are shown once; nothing here keeps them.
func (s *Settings) RegenerateBackupCodes(ctx context.Context) ([]string, error) {
	var resp struct {
		Codes []string `json:"codes"`
	}
	if err := s.backend.AuthorizedJSON(ctx, http.MethodPost, "/admin/2fa/backup-codes", nil, &resp); err != nil {
		return nil, &listview.ActionError{Action: "backup-codes", Err: err}
	}
	s.backend.Audit("gen_backup_codes", "Generated new 2FA backup codes")
	return resp.Codes, nil
}

// SaveCloudflare stores analytics credentials. A token still showing the
// masked value is left unchanged.
func (s *Settings) SaveCloudflare(ctx context.Context, token, zoneID string) error {
	token, zoneID = strings.TrimSpace(token), strings.TrimSpace(zoneID)
	if token == "" && zoneID == "" {
		return &listview.ValidationError{Action: "save-cloudflare", Err: errors.New("enter token and zone ID")}
	}
	body := map[string]string{}
	if token != "" && !strings.HasPrefix(token, maskedPrefix) {
		body["cloudflare_token"] = token
	}
	if zoneID != "" {
		body["cloudflare_zone_id"] = zoneID
	}
	if err := s.backend.AuthorizedJSON(ctx, http.MethodPut, "/admin/settings", body, nil); err != nil {
		return &listview.ActionError{Action: "save-cloudflare", Err: err}
	}
	s.backend.Audit("save_cf_config", "Updated Cloudflare config")

	s.mu.Lock()
	if _, ok := body["cloudflare_token"]; ok {
		s.current.CloudflareTokenSet = true
		s.current.CloudflareTokenSuffix = token[max(0, len(token)-4):]
	}
	if zoneID != "" {
		s.current.CloudflareZoneID = zoneID
	}
	s.mu.Unlock()
	return nil
}

// SaveScheduler sets the marketing bot's daily limits.
func (s *Settings) SaveScheduler(ctx context.Context, posts, replies int) error {
	if posts < 0 || posts > MaxPostsPerDayLimit {
		return &listview.ValidationError{Action: "save-scheduler", Err: fmt.Errorf("posts per day must be 0-%d", MaxPostsPerDayLimit)}
	}
	if replies < 0 || replies > MaxRepliesPerDayLimit {
		return &listview.ValidationError{Action: "save-scheduler", Err: fmt.Errorf("replies per day must be 0-%d", MaxRepliesPerDayLimit)}
	}
	body := map[string]int{"max_posts_per_day": posts, "max_replies_per_day": replies}
	if err := s.backend.AuthorizedJSON(ctx, http.MethodPut, "/admin/scheduler/config", body, nil); err != nil {
		return &listview.ActionError{Action: "save-scheduler", Err: err}
	}
	s.backend.Audit("save_scheduler_config", fmt.Sprintf("Updated scheduler: %d posts, %d replies", posts, replies))

	s.mu.Lock()
	s.current.MaxPostsPerDay, s.current.MaxRepliesPerDay = posts, replies
	s.mu.Unlock()
	return nil
}
