package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"abm-playbook-workers/internal/common/logger"
	"abm-playbook-workers/internal/models"
	"abm-playbook-workers/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const capturedResponse = `{
	"success": true,
	"response": {
		"message": "{\"playbook_id\": \"pb-cli\", \"reports\": [{\"title\": \"Payments 2025\"}], \"enriched_contacts\": [{\"full_name\": \"Ada Lovelace\", \"email\": \"ada@example.com\", \"confidence\": \"high\"}], \"email_sequences\": [{\"contact_name\": \"Ada Lovelace\", \"persona_tag\": \"CTO\", \"emails\": [{\"variant_type\": \"insight_led\", \"subject_line\": \"Hello\", \"body\": \"Hi Ada\", \"cta\": \"Chat?\"}]}]}"
	}
}`

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRoot()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestNormalize_FileWithExports(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "response.json")
	require.NoError(t, os.WriteFile(in, []byte(capturedResponse), 0o644))
	csvPath := filepath.Join(dir, "contacts.csv")
	mdPath := filepath.Join(dir, "emails.md")

	stdout, stderr, err := run(t, "", "normalize", in, "--csv", csvPath, "--emails", mdPath)
	require.NoError(t, err)

	assert.Contains(t, stderr, "strategy: recursive_locate")
	assert.Contains(t, stdout, `"playbook_id": "pb-cli"`)

	csv, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(csv), "Name,Title,Company"))
	assert.Contains(t, string(csv), `"Ada Lovelace"`)

	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "## Ada Lovelace (CTO)")
}

func TestNormalize_StdinQuiet(t *testing.T) {
	stdout, _, err := run(t, capturedResponse, "normalize", "-", "-q")
	require.NoError(t, err)
	assert.Equal(t, "recursive_locate\n", stdout)
}

func TestNormalize_ProseResponse(t *testing.T) {
	prose := `{"success": true, "response": "I was unable to open the report links you shared, please send them again so I can continue."}`
	_, stderr, err := run(t, prose, "normalize", "-")
	require.Error(t, err)
	assert.Contains(t, stderr, "agent said: I was unable to open")
}

func TestNormalize_BadSchema(t *testing.T) {
	_, _, err := run(t, capturedResponse, "normalize", "-", "--schema", "slides")
	require.Error(t, err)
}

func TestHistory_ListAndRemove(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := repository.NewRedisStore(client, "abm:test", 10, logger.NewNoOpLogger())
	for _, id := range []string{"pb-old", "pb-new"} {
		pb := &models.Playbook{PlaybookID: id, GenerationDate: time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC)}
		pb.EnsureSlices()
		require.NoError(t, store.Append(context.Background(), pb))
	}

	stdout, _, err := run(t, "", "history", "list", "--redis", mr.Addr(), "--key", "abm:test")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "pb-new")
	assert.Contains(t, lines[2], "pb-old")
	assert.Contains(t, lines[1], "2025-01-02 03:04")

	_, _, err = run(t, "", "history", "remove", "0", "--redis", mr.Addr(), "--key", "abm:test")
	require.NoError(t, err)

	remaining, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "pb-old", remaining[0].PlaybookID)

	_, _, err = run(t, "", "history", "remove", "5", "--redis", mr.Addr(), "--key", "abm:test")
	assert.Error(t, err)
}
