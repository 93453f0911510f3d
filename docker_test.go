package booruvault_test

import (
	"os"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/booruvault/internal/config"
)

func readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

func TestDockerfileMultiStageBuild(t *testing.T) {
	content := readFile(t, "Dockerfile")

	// マルチステージビルドの確認: ビルドステージと実行ステージが存在すること
	if !strings.Contains(content, "FROM golang:") {
		t.Error("Dockerfile should contain a Go builder stage (FROM golang:)")
	}

	// 最終ステージは軽量イメージであること
	var lastFrom string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "FROM ") {
			lastFrom = trimmed
		}
	}
	if !strings.Contains(lastFrom, "gcr.io/distroless") && !strings.Contains(lastFrom, "alpine") && !strings.Contains(lastFrom, "scratch") {
		t.Errorf("final stage should use a minimal base image (distroless/alpine/scratch), got: %s", lastFrom)
	}
}

func TestDockerfileBuildsBooruvault(t *testing.T) {
	content := readFile(t, "Dockerfile")

	if !strings.Contains(content, "./cmd/booruvault") {
		t.Error("Dockerfile should build ./cmd/booruvault")
	}
	if !strings.Contains(content, "ENTRYPOINT") {
		t.Error("Dockerfile should contain ENTRYPOINT")
	}
	// distrolessにはシェルが無いため、ヘルスチェックはサブコマンドで行う
	if !strings.Contains(content, `"healthcheck"`) {
		t.Error("Dockerfile HEALTHCHECK should use the healthcheck subcommand")
	}
}

type composeFile struct {
	Services map[string]struct {
		Image    string            `yaml:"image"`
		Command  []string          `yaml:"command"`
		Env      map[string]string `yaml:"environment"`
		Networks []string          `yaml:"networks"`
	} `yaml:"services"`
	Networks map[string]*struct {
		Internal bool `yaml:"internal"`
	} `yaml:"networks"`
}

func loadCompose(t *testing.T) composeFile {
	t.Helper()
	var c composeFile
	if err := yaml.Unmarshal([]byte(readFile(t, "docker-compose.yml")), &c); err != nil {
		t.Fatalf("failed to parse docker-compose.yml: %v", err)
	}
	return c
}

func TestDockerComposeServices(t *testing.T) {
	c := loadCompose(t)

	for _, svc := range []string{"api", "migrate", "db", "mongo"} {
		if _, ok := c.Services[svc]; !ok {
			t.Errorf("docker-compose.yml should contain service %q", svc)
		}
	}
	if got := c.Services["migrate"].Command; len(got) != 1 || got[0] != "migrate" {
		t.Errorf("migrate service command = %v", got)
	}
	if !strings.HasPrefix(c.Services["db"].Image, "postgres:") {
		t.Errorf("db should use PostgreSQL image, got %q", c.Services["db"].Image)
	}
	if !strings.HasPrefix(c.Services["mongo"].Image, "mongo:") {
		t.Errorf("mongo should use MongoDB image, got %q", c.Services["mongo"].Image)
	}
}

func TestDockerComposeNetworks(t *testing.T) {
	c := loadCompose(t)

	// DBは外部通信できない内部ネットワークにのみ所属する
	backend, ok := c.Networks["backend"]
	if !ok || backend == nil || !backend.Internal {
		t.Error("docker-compose.yml should define an internal backend network (internal: true)")
	}
	if _, ok := c.Networks["external"]; !ok {
		t.Error("docker-compose.yml should define an external network for provider egress")
	}
	for _, n := range c.Services["db"].Networks {
		if n == "external" {
			t.Error("db must not join the external network")
		}
	}

	// プロバイダーAPIに接続するのはapiのみ
	hasExternal := false
	for _, n := range c.Services["api"].Networks {
		if n == "external" {
			hasExternal = true
		}
	}
	if !hasExternal {
		t.Error("api should join the external network to reach provider APIs")
	}
}

func TestSitesExampleIsLoadable(t *testing.T) {
	cfg, err := config.LoadSites("sites.example.yaml")
	if err != nil {
		t.Fatalf("sites.example.yaml should be loadable: %v", err)
	}
	if len(cfg.Misskey.Instances) == 0 {
		t.Error("sites.example.yaml should list at least one misskey instance")
	}
}
