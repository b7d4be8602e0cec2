package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

// validYAML returns a configuration exercising every section.
func validYAML() string {
	return `
listen_addr: ":8088"
log:
  level: debug
audit:
  driver: sqlite
  dsn: /tmp/spine.db
confirm:
  driver: redis
  ttl: 2m
redis:
  addr: redis:6379
rate_limit:
  per_minute: 30
  burst: 10
router:
  top_n: 3
policy:
  high_risk_actions: ["payments.*"]
  read_only_roles:
    viewer: ["booking.*"]
  rules:
    - name: no-sms-payments
      expr: channel == "sms" && action.startsWith("payments.")
      reason: payments are not available over sms
auth:
  jwt_secret: 0123456789abcdef0123
`
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "spine.yaml")
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func assertConfigInvalid(t *testing.T, err error, wantSubstr string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	engineErr, ok := err.(*domain.EngineError)
	if !ok {
		t.Fatalf("expected EngineError, got %T", err)
	}
	if engineErr.Code != domain.ErrConfigInvalid.Code {
		t.Errorf("Code = %d, want %d", engineErr.Code, domain.ErrConfigInvalid.Code)
	}
	if !strings.Contains(engineErr.Message, wantSubstr) {
		t.Errorf("message %q does not mention %q", engineErr.Message, wantSubstr)
	}
}

func TestLoad_Valid(t *testing.T) {
	path := writeConfig(t, t.TempDir(), validYAML())

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8088" {
		t.Errorf("ListenAddr = %q, want :8088", cfg.ListenAddr)
	}
	if cfg.Audit.Driver != DriverSQLite || cfg.Audit.DSN != "/tmp/spine.db" {
		t.Errorf("Audit = %+v", cfg.Audit)
	}
	if cfg.Confirm.TTL != 2*time.Minute {
		t.Errorf("Confirm.TTL = %v, want 2m", cfg.Confirm.TTL)
	}
	if cfg.RateLimit.PerMinute != 30 || cfg.RateLimit.Burst != 10 {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Router.TopN != 3 {
		t.Errorf("Router.TopN = %d, want 3", cfg.Router.TopN)
	}
	if len(cfg.Policy.Rules) != 1 || cfg.Policy.Rules[0].Name != "no-sms-payments" {
		t.Errorf("Policy.Rules = %+v", cfg.Policy.Rules)
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != ":9800" {
		t.Errorf("ListenAddr = %q, want :9800", cfg.ListenAddr)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Audit.Driver != DriverMemory || cfg.Confirm.Driver != DriverMemory || cfg.RateLimit.Driver != DriverMemory {
		t.Errorf("drivers not defaulted to memory: %+v %+v %+v", cfg.Audit, cfg.Confirm, cfg.RateLimit)
	}
	if cfg.Confirm.TTL != 5*time.Minute {
		t.Errorf("Confirm.TTL = %v, want 5m", cfg.Confirm.TTL)
	}
	if cfg.RateLimit.PerMinute != 60 {
		t.Errorf("RateLimit.PerMinute = %d, want 60", cfg.RateLimit.PerMinute)
	}
	if cfg.Router.TopN != 5 {
		t.Errorf("Router.TopN = %d, want 5", cfg.Router.TopN)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/spine.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "log: [not: valid")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML, got nil")
	}
}

func TestLoad_UnknownField(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "budget_cap_usd: 10\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), validYAML())
	t.Setenv("SPINE_LISTEN_ADDR", ":7000")
	t.Setenv("SPINE_RATE_LIMIT_PER_MINUTE", "120")
	t.Setenv("SPINE_CONFIRM_TTL", "30s")
	t.Setenv("SPINE_AUDIT_DRIVER", "postgres")
	t.Setenv("SPINE_AUDIT_DSN", "postgres://spine@localhost/spine?sslmode=disable")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":7000" {
		t.Errorf("ListenAddr = %q, want :7000", cfg.ListenAddr)
	}
	if cfg.RateLimit.PerMinute != 120 {
		t.Errorf("RateLimit.PerMinute = %d, want 120", cfg.RateLimit.PerMinute)
	}
	if cfg.RateLimit.Burst != 10 {
		t.Errorf("RateLimit.Burst = %d, want 10 from file", cfg.RateLimit.Burst)
	}
	if cfg.Confirm.TTL != 30*time.Second {
		t.Errorf("Confirm.TTL = %v, want 30s", cfg.Confirm.TTL)
	}
	if cfg.Audit.Driver != DriverPostgres {
		t.Errorf("Audit.Driver = %q, want postgres", cfg.Audit.Driver)
	}
}

func TestLoad_MissingDSN(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "audit:\n  driver: sqlite\n")

	_, err := Load(path)
	assertConfigInvalid(t, err, "audit.dsn")
}

func TestLoad_CollectsAllProblems(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
log:
  level: loud
confirm:
  driver: etcd
rate_limit:
  burst: -1
policy:
  privileged_roles: [root]
  rules:
    - name: missing-expr
auth:
  jwt_secret: short
`)

	_, err := Load(path)
	for _, want := range []string{"log.level", "confirm.driver", "rate_limit.burst", "unknown role \"root\"", "policy.rules[0]", "jwt_secret"} {
		assertConfigInvalid(t, err, want)
	}
	if !errors.Is(err, domain.ErrConfigInvalid) {
		t.Error("expected errors.Is(err, ErrConfigInvalid)")
	}
}

func TestPolicyConfig_MergesOverDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), validYAML())
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	pc := cfg.PolicyConfig()
	if len(pc.HighRiskActions) != 1 || pc.HighRiskActions[0] != "payments.*" {
		t.Errorf("HighRiskActions = %v", pc.HighRiskActions)
	}
	if got := pc.DeniedActions[domain.RoleViewer]; len(got) != 1 || got[0] != "booking.*" {
		t.Errorf("viewer denied = %v", got)
	}
	if len(pc.PrivilegedNamespaces) != 2 {
		t.Errorf("PrivilegedNamespaces should keep defaults, got %v", pc.PrivilegedNamespaces)
	}
	if len(pc.Rules) != 1 {
		t.Errorf("Rules = %v", pc.Rules)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	if err := os.WriteFile(p, []byte("SPINE_ROUTER_TOP_N=2\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("SPINE_ROUTER_TOP_N", "")
	os.Unsetenv("SPINE_ROUTER_TOP_N")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), p); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Router.TopN != 2 {
		t.Errorf("Router.TopN = %d, want 2 from .env", cfg.Router.TopN)
	}
}
