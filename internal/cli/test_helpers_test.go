package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/compas-coach/compas/internal/config"
	"github.com/compas-coach/compas/internal/provider"
)

func createTestHome(t *testing.T) string {
	t.Helper()
	homeDir := filepath.Join(t.TempDir(), ".compas")
	t.Setenv("COMPAS_HOME", homeDir)
	return homeDir
}

func writeValidConfig(t *testing.T, homeDir string) {
	t.Helper()
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home dir: %v", err)
	}
	configBody := `
[llm.default]
api_key = "test-key"
provider = "anthropic"
model = "claude-sonnet-4-5"

[server]
listen = "127.0.0.1:0"
passcode = ""

[channels.telegram]
enabled = false
token = "telegram-token"
`
	if err := os.WriteFile(filepath.Join(homeDir, "config.toml"), []byte(configBody), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// useFakeProvider swaps the provider factory for the duration of the test.
func useFakeProvider(t *testing.T, p provider.Provider) {
	t.Helper()
	orig := providerFactory
	t.Cleanup(func() { providerFactory = orig })
	providerFactory = func(config.LLMProviderConfig) (provider.Provider, error) {
		return p, nil
	}
}

func runRoot(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

type fakeProvider struct {
	resp *provider.ChatResponse
	err  error
}

func (p fakeProvider) Chat(_ context.Context, _ provider.ChatRequest) (*provider.ChatResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.resp, nil
}
