package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/learnhub/learnhub/internal/app"
	"github.com/learnhub/learnhub/internal/models"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()
	cfg, err := app.LoadConfig(t.TempDir())
	require.NoError(t, err)
	cfg.Database.Path = filepath.Join(t.TempDir(), "learnhub.sqlite")
	_, err = app.ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	return cfg
}

func TestBootstrapRuntimeWiresRouter(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.BootstrapAdmin = app.BootstrapAdminSeed{Username: "root", Email: "root@example.com", Password: "root-password"}

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.Nil(t, stack.Scheduler)
	require.Nil(t, stack.Kafka)
	require.Nil(t, stack.Redis)

	var admin models.User
	require.NoError(t, stack.DB.Where("username = ?", "root").Take(&admin).Error)
	require.Equal(t, models.RoleAdmin, admin.Role)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	stack.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.NoError(t, stack.Shutdown(context.Background(), zap.NewNop()))
	require.NoError(t, stack.Shutdown(context.Background(), zap.NewNop()))
}

func TestBootstrapRuntimeStartsScheduler(t *testing.T) {
	cfg := testConfig(t)
	cfg.Maintenance.Scheduler.Enabled = true

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, stack.Scheduler)
	require.Equal(t, "Asia/Kolkata", stack.Scheduler.Location().String())
	require.NoError(t, stack.Shutdown(context.Background(), zap.NewNop()))
}

func TestBootstrapRuntimeRejectsBadTimezone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Maintenance.Scheduler.Enabled = true
	cfg.Maintenance.DailyReset.Timezone = "Mars/Olympus_Mons"

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestBootstrapRuntimeRequiresSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWT.Secret = " "

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestLoadApplicationConfig(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)

	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("server:\n  port: 9100\n"), 0o600))

	cfg, err := loadApplicationConfig(file)
	require.NoError(t, err)
	require.Equal(t, 9100, cfg.Server.Port)
}

func TestBootstrapRuntimeWarnsWithoutTriggerSecret(t *testing.T) {
	cfg := testConfig(t)
	core, logs := observer.New(zapcore.WarnLevel)

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.New(core))
	require.NoError(t, err)
	require.NoError(t, stack.Shutdown(context.Background(), zap.NewNop()))
	require.Equal(t, 1, logs.FilterMessageSnippet("maintenance.trigger.secret").Len())

	cfg = testConfig(t)
	cfg.Maintenance.Trigger.Secret = "cron-secret"
	core, logs = observer.New(zapcore.WarnLevel)

	stack, err = bootstrapRuntime(context.Background(), cfg, zap.New(core))
	require.NoError(t, err)
	require.NoError(t, stack.Shutdown(context.Background(), zap.NewNop()))
	require.Zero(t, logs.FilterMessageSnippet("maintenance.trigger.secret").Len())
}
