package internal

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
}

func TestVaultPathRequired(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Vault.Path = ""
	err := cfg.Validate()
	if err == nil || !strings.HasPrefix(err.Error(), "vault:") {
		t.Fatalf("expected vault error, got %v", err)
	}
}

func TestGraphConfig_UnknownDriver(t *testing.T) {
	cfg := GraphConfig{Enabled: true, Driver: "dgraph", URI: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown driver should fail validation")
	}
}

func TestGraphConfig_EmptyDriverDefaultsNeo4j(t *testing.T) {
	cfg := GraphConfig{Enabled: true, URI: "bolt://db:7687"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty driver should default to neo4j: %v", err)
	}
	if cfg.Driver != GraphDriverNeo4j {
		t.Errorf("driver = %q, want %q", cfg.Driver, GraphDriverNeo4j)
	}
	if cfg.QueryLanguage() != "Cypher" {
		t.Errorf("query language = %q", cfg.QueryLanguage())
	}
}

func TestGraphConfig_DriverRequirements(t *testing.T) {
	neo := GraphConfig{Enabled: true, Driver: GraphDriverNeo4j}
	if err := neo.Validate(); err == nil {
		t.Error("neo4j without uri should fail")
	}

	lite := GraphConfig{Enabled: true, Driver: GraphDriverSQLite}
	if err := lite.Validate(); err == nil {
		t.Error("sqlite without sqlite_path should fail")
	}
	lite.SQLitePath = "graph.db"
	if err := lite.Validate(); err != nil {
		t.Errorf("sqlite with path should pass: %v", err)
	}
	if lite.QueryLanguage() != "SQL" {
		t.Errorf("query language = %q", lite.QueryLanguage())
	}
}

func TestDisabledSectionsSkipValidation(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Graph = GraphConfig{Driver: "bogus"}
	cfg.Inference = InferenceConfig{}
	cfg.App.HTTP = HTTPConfig{Port: -1}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled sections should not be validated: %v", err)
	}
}

func TestInferenceConfig_Breaker(t *testing.T) {
	cfg := InferenceConfig{Enabled: true, Host: "localhost", Breaker: BreakerConfig{MaxFailures: 3}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("breaker without open timeout should fail")
	}
	cfg.Breaker.OpenTimeout = time.Second
	if err := cfg.Validate(); err != nil {
		t.Fatalf("breaker with timeout should pass: %v", err)
	}
	cfg.Breaker = BreakerConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled breaker should pass: %v", err)
	}
}

func TestHTTPConfig_Port(t *testing.T) {
	cfg := HTTPConfig{Enabled: true, Port: 70000}
	if err := cfg.Validate(); err == nil {
		t.Fatal("port out of range should fail")
	}
	cfg.Port = 9090
	if got := cfg.Address(); got != ":9090" {
		t.Errorf("address = %q", got)
	}
}

func TestSummaryRedactsPassword(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Graph.Password = "hunter2"

	graph := cfg.Summary()["graph"].(map[string]any)
	if graph["password"] != redacted {
		t.Errorf("password = %v, want redacted", graph["password"])
	}
	if strings.Contains(strings.Join(flatten(cfg.Summary()), " "), "hunter2") {
		t.Error("summary leaks the password")
	}

	cfg.Graph.Password = ""
	graph = cfg.Summary()["graph"].(map[string]any)
	if graph["password"] != "" {
		t.Errorf("empty password should stay empty, got %v", graph["password"])
	}
}

func flatten(m map[string]any) []string {
	var out []string
	for _, v := range m {
		switch v := v.(type) {
		case map[string]any:
			out = append(out, flatten(v)...)
		case string:
			out = append(out, v)
		}
	}
	return out
}
