// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package apitest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, s *Server, method, path, key string, body any) (*http.Response, Record) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("x-squidbay-key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out Record
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestServer_RequiresKeyOnAdminRoutes(t *testing.T) {
	s := NewServer(WithSeed())
	defer s.Close()

	resp, body := do(t, s, "GET", "/admin/skills", "wrong", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "Invalid admin key", body["error"])

	resp, body = do(t, s, "GET", "/admin/skills", DefaultAdminKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["skills"], 6)
	require.Equal(t, 2, s.Hits("/admin/skills"))
}

func TestServer_PublicSkillsHideInactive(t *testing.T) {
	s := NewServer(WithSeed())
	defer s.Close()

	_, body := do(t, s, "GET", "/skills?limit=500", "", nil)
	require.Len(t, body["skills"], 5)
}

func TestServer_TOTPFlow(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXP"
	s := NewServer(WithTOTP(secret), WithBackupCodes("BACKUP-1"))
	defer s.Close()

	_, body := do(t, s, "GET", "/admin/verify", DefaultAdminKey, nil)
	require.Equal(t, true, body["totp_enabled"])

	resp, _ := do(t, s, "POST", "/admin/2fa/verify", DefaultAdminKey, Record{"code": "000000"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	resp, _ = do(t, s, "POST", "/admin/2fa/verify", DefaultAdminKey, Record{"code": code})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, s, "POST", "/admin/2fa/verify", DefaultAdminKey, Record{"backup_code": "BACKUP-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, s, "POST", "/admin/2fa/verify", DefaultAdminKey, Record{"backup_code": "BACKUP-1"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "backup codes are single use")
}

func TestServer_ModerateRequiresReason(t *testing.T) {
	s := NewServer(WithSeed())
	defer s.Close()

	resp, _ := do(t, s, "PUT", "/admin/reviews/r-1/moderate", DefaultAdminKey, Record{"reason": ""})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, s, "PUT", "/admin/reviews/r-1/moderate", DefaultAdminKey, Record{"reason": "spam"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 0, s.Review("r-1")["is_active"])

	resp, _ = do(t, s, "PUT", "/admin/reviews/r-1/moderate", DefaultAdminKey, Record{"restore": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, s.Review("r-1")["is_active"])
	require.NotContains(t, s.Review("r-1"), "moderation_reason")
}

func TestServer_DisableRoute(t *testing.T) {
	s := NewServer(WithSeed())
	defer s.Close()

	s.Disable("/admin/skills", http.StatusNotFound)
	resp, _ := do(t, s, "GET", "/admin/skills", DefaultAdminKey, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_AuditLog(t *testing.T) {
	s := NewServer()
	defer s.Close()

	resp, _ := do(t, s, "POST", "/admin/audit-log", DefaultAdminKey, Record{"action": "login", "detail": "Admin logged in"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, s.AuditLog(), 1)
	require.Equal(t, "login", s.AuditLog()[0].Action)
}

func TestServer_OperationsRoutes(t *testing.T) {
	bare := NewServer()
	defer bare.Close()
	resp, body := do(t, bare, "GET", "/admin/cloudflare/analytics?period=24h", DefaultAdminKey, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "Cloudflare API token not configured", body["error"])

	s := NewServer(WithSeed())
	defer s.Close()
	resp, _ = do(t, s, "GET", "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, s, "GET", "/scheduler/status", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "scheduler status is public")

	resp, body = do(t, s, "GET", "/admin/cloudflare/analytics?period=90d", DefaultAdminKey, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "Invalid period", body["error"])

	resp, _ = do(t, s, "POST", "/admin/github/issues/42/ack", DefaultAdminKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "issues ack by number too")
	require.Equal(t, true, s.Issue("9001")["acknowledged"])

	resp, _ = do(t, s, "POST", "/admin/github/issues/404/ack", DefaultAdminKey, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
