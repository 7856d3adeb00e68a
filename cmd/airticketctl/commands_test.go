package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Domenick1991/airticket/config"
	"github.com/Domenick1991/airticket/internal/auth"
	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/Domenick1991/airticket/internal/gateway"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Auth.JWTSecret = "ctl-secret"
	cfg.Gateway.PartnerCode = "AIRTICKET"
	cfg.Gateway.AccessKey = "ak"
	cfg.Gateway.SecretKey = "sk"
	return cfg
}

func loaderFor(cfg *config.Config) configLoader {
	return func() (*config.Config, error) { return cfg, nil }
}

func TestTokenCmd(t *testing.T) {
	cfg := testConfig()
	cmd := tokenCmd(loaderFor(cfg))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--email", "ops@example.com", "--role", "staff"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))

	claims, err := auth.NewService(cfg.Auth).Parse(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, domain.RoleStaff, claims.Role)
	assert.Equal(t, "ops@example.com", claims.Email)
}

func TestTokenCmd_UnknownRole(t *testing.T) {
	cmd := tokenCmd(loaderFor(testConfig()))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--role", "pilot"})

	assert.EqualError(t, cmd.ExecuteContext(context.Background()), `unknown role "pilot"`)
}

func TestCallbackCmd(t *testing.T) {
	cfg := testConfig()
	logger, _ := test.NewNullLogger()
	verifier := gateway.NewClient(cfg.Gateway, logger)

	var received gateway.Callback
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := verifier.VerifyCallback(received); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cmd := callbackCmd(loaderFor(cfg))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--url", srv.URL, "--order", "K7QX2ABC-1", "--request", "req-1", "--amount", "1500000", "--trans", "42"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "204")
	assert.Equal(t, "K7QX2ABC-1", received.OrderID)
	assert.Equal(t, int64(1500000), received.Amount)
	assert.Equal(t, "AIRTICKET", received.PartnerCode)
}
