package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const sample = `
server:
  addr: ":9090"
  read_timeout: 5s
storage:
  driver: SQLite
  sqlite:
    path: /tmp/lifecycle.db
company:
  name: Acme Corp
  address: 1 Main St
  email: contact@acme.test
hr:
  manager_name: Priya
  manager_email: priya@acme.test
  team_emails:
    - hr@acme.test
    - " "
    - people@acme.test
integrations:
  gateway_url: http://gateway.local/
  timeout: 3s
auth:
  override_actors: [priya@acme.test]
log:
  level: debug
`

func TestLoadConfig_File(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "/tmp/lifecycle.db", cfg.Storage.SQLite.Path)
	assert.Equal(t, "http://gateway.local", cfg.Integrations.GatewayURL)
	assert.Equal(t, 3*time.Second, cfg.Integrations.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"priya@acme.test"}, cfg.Auth.OverrideActors)
	assert.False(t, cfg.Server.TLS.Enable)
	assert.Equal(t, "certs/server.crt", cfg.Server.TLS.CertFile)

	company := cfg.Company()
	assert.Equal(t, "Acme Corp", company.Name)
	assert.Equal(t, "HR Manager", company.HRManagerTitle)
	assert.Equal(t, "priya@acme.test", company.HRManagerEmail)
	assert.Equal(t, []string{"hr@acme.test", "people@acme.test"}, company.HRTeamEmails)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("HRL_STORAGE_DRIVER", "postgres")
	t.Setenv("HRL_STORAGE_POSTGRES_HOST", "db.internal")
	t.Setenv("HRL_COMPANY_NAME", "Globex")

	cfg, err := LoadConfig(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "Globex", cfg.CompanyInfo.Name)
	assert.Contains(t, cfg.PostgresDSN(), "host=db.internal")
	assert.Contains(t, cfg.PostgresDSN(), "port=5432")
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{
			name: "unknown driver",
			body: "storage:\n  driver: mongo\ncompany:\n  name: Acme\n",
			msg:  "unknown storage driver",
		},
		{
			name: "missing company name",
			body: "storage:\n  driver: memory\n",
			msg:  "company.name is required",
		},
		{
			name: "empty sqlite path",
			body: "storage:\n  driver: sqlite\n  sqlite:\n    path: \"\"\ncompany:\n  name: Acme\n",
			msg:  "storage.sqlite.path",
		},
		{
			name: "tls without key",
			body: "server:\n  tls:\n    enable: true\n    key_file: \"\"\ncompany:\n  name: Acme\n",
			msg:  "server.tls.cert_file and server.tls.key_file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HRL_COMPANY_NAME", "Initech")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "Initech", cfg.Company().Name)
	assert.Empty(t, cfg.Company().HRTeamEmails)
}
