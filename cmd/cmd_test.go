package cmd

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/minuteswatch/internal/config"
	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

func testConfig() config.Config {
	return config.Config{
		Server:   config.ServerConfig{Port: 8080, ReadHeaderTimeoutSeconds: 5},
		Logging:  config.LoggingConfig{Development: true, Level: "error"},
		Auth:     config.AuthConfig{JWTSecret: "0123456789abcdef0123456789abcdef", JWTIssuer: "test", TokenTTLMinutes: 60, CookieName: "access_token", BcryptCost: 4},
		Scraper:  config.ScraperConfig{ContextChars: 100, RequestTimeoutSeconds: 5, QueueDepth: 1, RetentionDays: 30},
		Storage:  config.StorageConfig{Backend: "memory"},
		Entities: config.EntitiesConfig{Backend: "none"},
	}
}

func withConfig(t *testing.T, cfg config.Config) {
	t.Helper()
	prev := loadConfig
	loadConfig = func(string) (config.Config, error) { return cfg, nil }
	t.Cleanup(func() { loadConfig = prev })
}

func TestRootRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "scrape", "migrate", "user"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}

func TestUserCreate(t *testing.T) {
	withConfig(t, testConfig())
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"user", "create", "--username", "clerk", "--password", "clerk-pass", "--role", "admin"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "created user clerk")
	assert.Contains(t, out.String(), "role admin")
}

func TestUserCreateRejectsShortPassword(t *testing.T) {
	withConfig(t, testConfig())
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"user", "create", "--username", "clerk", "--password", "short"})
	require.Error(t, root.ExecuteContext(context.Background()))
}

func TestScrapeRequiresArchiveURL(t *testing.T) {
	withConfig(t, testConfig())
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"scrape"})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scraper.archive_url")
}

func TestMigrateRequiresDSN(t *testing.T) {
	withConfig(t, testConfig())
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"migrate", "up"})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db.dsn")
}

func TestBuildServicesWithoutArchiveSkipsPipeline(t *testing.T) {
	svc, err := buildServices(context.Background(), testConfig(), zap.NewNop(), true)
	require.NoError(t, err)
	defer svc.Close()
	assert.NotNil(t, svc.store)
	assert.NotNil(t, svc.auth)
	assert.Nil(t, svc.pipeline)
}

func TestBuildServicesWiresPipeline(t *testing.T) {
	cfg := testConfig()
	cfg.Scraper.ArchiveURL = "https://board.example.gov/minutes"
	cfg.Storage.ProcessedDir = t.TempDir()
	svc, err := buildServices(context.Background(), cfg, zap.NewNop(), true)
	require.NoError(t, err)
	defer svc.Close()
	assert.NotNil(t, svc.pipeline)
}

func TestScheduleSubmitsUntilCanceled(t *testing.T) {
	sub := &recordingSubmitter{calls: make(chan struct{}, 8)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		schedule(ctx, 5*time.Millisecond, sub, zap.NewNop())
		close(done)
	}()
	<-sub.calls
	<-sub.calls
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("schedule did not stop after cancel")
	}
}

type recordingSubmitter struct{ calls chan struct{} }

func (r *recordingSubmitter) Submit(_ context.Context, trigger minutes.RunTrigger) (minutes.Run, error) {
	select {
	case r.calls <- struct{}{}:
	default:
	}
	return minutes.Run{ID: "scheduled", Trigger: trigger}, nil
}
