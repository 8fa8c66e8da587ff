package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/comment-moderator/internal/protocol"
)

func runRoot(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("MODERATOR_LLM_API_KEY", "")
	t.Setenv("MODERATOR_LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		checkLocale, checkHealth = "", false
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestCheck_HeuristicRejection(t *testing.T) {
	out, err := runRoot(t, "", "check", "sooooooo spammy")
	require.NoError(t, err)

	var res protocol.CheckResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.IsAppropriate)
	assert.Equal(t, "heuristic", res.Stage)
	assert.NotEmpty(t, res.Reason)
}

func TestCheck_NoModelFallsBack(t *testing.T) {
	out, err := runRoot(t, "", "check", "A perfectly normal comment.")
	require.NoError(t, err)

	var res protocol.CheckResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.IsAppropriate, "fail-open is the default")
	assert.Equal(t, "fallback", res.Stage)
	assert.True(t, res.Degraded)
}

func TestCheck_ReadsStdin(t *testing.T) {
	out, err := runRoot(t, "O comentário é ótimo\n", "check", "--locale", "pt-BR")
	require.NoError(t, err)

	var res protocol.CheckResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.IsAppropriate)
}

func TestCheck_EmptyInput(t *testing.T) {
	_, err := runRoot(t, "   ", "check")
	assert.ErrorIs(t, err, protocol.ErrEmptyText)
}

func TestCheck_HealthWithoutModel(t *testing.T) {
	_, err := runRoot(t, "", "check", "--health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model configured")
}

func TestMigrate_RequiresDSN(t *testing.T) {
	_, err := runRoot(t, "", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit.dsn")
}

func TestNewModelClient_DefaultsReachCompletions(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MODERATOR_LLM_API_KEY", "k")

	cfg, _, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://openrouter.ai/api/v1/chat/completions", newModelClient(cfg).Endpoint())

	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if r.URL.Path != "/api/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"isAppropriate\": true, \"reason\": \"\"}"}}]}`))
	}))
	defer server.Close()

	cfg.LLM.BaseURL = server.URL + "/api/v1"
	reply, err := newModelClient(cfg).Complete(context.Background(), "classify this")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/chat/completions", path)
	assert.Contains(t, reply, "isAppropriate")
}
