package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"abm-playbook-workers/internal/common/logger"
	"abm-playbook-workers/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIndexWithServer(t *testing.T, handler http.HandlerFunc) *ContactIndex {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)
	return NewContactIndex(client, "abm-contacts", logger.NewTestLogger(t))
}

func TestContactDocID_StableAndExact(t *testing.T) {
	a := models.Contact{FullName: "Ada", Email: "ada@example.com", JobTitle: "CTO"}
	b := models.Contact{FullName: "Ada", Email: "ada@example.com", JobTitle: "CEO"}
	c := models.Contact{FullName: "ada", Email: "ada@example.com"}

	assert.Equal(t, ContactDocID(a), ContactDocID(b))
	assert.NotEqual(t, ContactDocID(a), ContactDocID(c))
}

func TestContactIndex_IndexPlaybook(t *testing.T) {
	var lines []string
	idx := newIndexWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/abm-contacts/_bulk", r.URL.Path)
		scanner := bufio.NewScanner(r.Body)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		_, _ = io.WriteString(w, `{"errors":false,"items":[{"index":{"status":201}},{"index":{"status":200}}]}`)
	})

	pb := playbook("pb-9")
	pb.EnrichedContacts = append(pb.EnrichedContacts, models.Contact{FullName: "Grace", Email: "grace@example.com"})

	n, err := idx.IndexPlaybook(context.Background(), pb)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, lines, 4)
	var meta map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &meta))
	assert.Equal(t, ContactDocID(pb.EnrichedContacts[0]), meta["index"]["_id"])

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[3]), &doc))
	assert.Equal(t, "Grace", doc["full_name"])
	assert.Equal(t, "pb-9", doc["playbook_id"])
}

func TestContactIndex_IndexPlaybookNoContacts(t *testing.T) {
	idx := newIndexWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	pb := playbook("empty")
	pb.EnrichedContacts = []models.Contact{}
	n, err := idx.IndexPlaybook(context.Background(), pb)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestContactIndex_IndexPlaybookPartialFailure(t *testing.T) {
	idx := newIndexWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = io.WriteString(w, `{"errors":true,"items":[{"index":{"status":400,"error":{"type":"mapper_parsing_exception","reason":"failed to parse field [needs_review]"}}}]}`)
	})

	n, err := idx.IndexPlaybook(context.Background(), playbook("pb-1"))
	assert.ErrorIs(t, err, ErrStoreFailed)
	assert.Contains(t, err.Error(), "needs_review")
	assert.Zero(t, n)
}

func TestContactIndex_Search(t *testing.T) {
	var query map[string]interface{}
	idx := newIndexWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/abm-contacts/_search", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("size"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&query))
		_, _ = io.WriteString(w, `{"hits":{"total":{"value":1},"hits":[{"_source":{"full_name":"Ada","email":"ada@example.com","confidence":"high","playbook_id":"pb-1"}}]}}`)
	})

	got, total, err := idx.Search(context.Background(), ContactFilter{Query: "Ada", Confidence: "high", NeedsReviewOnly: true}, 25)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, "Ada", got[0].FullName)
	assert.NotNil(t, got[0].SourceReports)
	assert.NotNil(t, got[0].PersonaTags)

	encoded, _ := json.Marshal(query)
	assert.Contains(t, string(encoded), `"*ada*"`)
	assert.Contains(t, string(encoded), `"confidence.keyword":"high"`)
	assert.Contains(t, string(encoded), `"needs_review":true`)
}

func TestContactIndex_SearchError(t *testing.T) {
	idx := newIndexWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"type":"index_not_found_exception"},"status":404}`)
	})

	_, _, err := idx.Search(context.Background(), ContactFilter{}, 10)
	assert.ErrorIs(t, err, ErrContactSearchFailed)
}

func TestBuildContactQuery_MatchAll(t *testing.T) {
	q := buildContactQuery(ContactFilter{Confidence: "all", Query: "  "})
	encoded, _ := json.Marshal(q)
	assert.True(t, strings.Contains(string(encoded), "match_all"))
}
