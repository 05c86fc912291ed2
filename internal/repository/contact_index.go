package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"abm-playbook-workers/internal/common/logger"
	"abm-playbook-workers/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
)

var ErrContactSearchFailed = errors.New("CONTACT_SEARCH_FAILED")

// ContactDocument is a contact as stored in the search index.
type ContactDocument struct {
	models.Contact
	PlaybookID string `json:"playbook_id"`
}

// ContactIndex mirrors playbook contacts into Elasticsearch so the contacts
// library can search beyond the capped history.
type ContactIndex struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewContactIndex(client *elasticsearch.Client, index string, log logger.Logger) *ContactIndex {
	return &ContactIndex{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "contact-index"}),
	}
}

// ContactDocID is stable for an exact (email, full_name) pair, so the same
// person found by several playbooks is stored once.
func ContactDocID(c models.Contact) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(c.Email+"|"+c.FullName)).String()
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// IndexPlaybook writes every contact of pb. Later playbooks overwrite the
// documents of earlier ones.
func (ci *ContactIndex) IndexPlaybook(ctx context.Context, pb *models.Playbook) (int, error) {
	if len(pb.EnrichedContacts) == 0 {
		return 0, nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, c := range pb.EnrichedContacts {
		meta := map[string]interface{}{"index": map[string]interface{}{"_id": ContactDocID(c)}}
		if err := enc.Encode(meta); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreFailed, err)
		}
		if err := enc.Encode(ContactDocument{Contact: c, PlaybookID: pb.PlaybookID}); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreFailed, err)
		}
	}

	req := esapi.BulkRequest{
		Index: ci.index,
		Body:  &body,
	}
	res, err := req.Do(ctx, ci.client)
	if err != nil {
		return 0, fmt.Errorf("%w: bulk index: %v", ErrStoreFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("%w: bulk index: %s", ErrStoreFailed, res.Status())
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return 0, fmt.Errorf("%w: decode bulk response: %v", ErrStoreFailed, err)
	}

	indexed := 0
	var reasons []string
	for _, item := range br.Items {
		for _, result := range item {
			if result.Error != nil {
				reasons = append(reasons, result.Error.Reason)
				continue
			}
			indexed++
		}
	}
	if len(reasons) > 0 {
		ci.logger.Warn("some contacts were not indexed", map[string]interface{}{
			"playbookId": pb.PlaybookID,
			"failed":     len(reasons),
			"indexed":    indexed,
		})
		return indexed, fmt.Errorf("%w: %d contacts rejected: %s", ErrStoreFailed, len(reasons), reasons[0])
	}
	return indexed, nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source ContactDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search returns contacts matching f, at most size of them.
func (ci *ContactIndex) Search(ctx context.Context, f ContactFilter, size int) ([]models.Contact, int64, error) {
	query, err := json.Marshal(buildContactQuery(f))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrContactSearchFailed, err)
	}

	req := esapi.SearchRequest{
		Index: []string{ci.index},
		Body:  bytes.NewReader(query),
		Size:  &size,
	}
	res, err := req.Do(ctx, ci.client)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrContactSearchFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, 0, fmt.Errorf("%w: %s", ErrContactSearchFailed, res.Status())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, 0, fmt.Errorf("%w: decode: %v", ErrContactSearchFailed, err)
	}

	out := make([]models.Contact, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		c := h.Source.Contact
		c.SourceReports = nonNilStrings(c.SourceReports)
		c.PersonaTags = nonNilStrings(c.PersonaTags)
		out = append(out, c)
	}
	return out, sr.Hits.Total.Value, nil
}

func buildContactQuery(f ContactFilter) map[string]interface{} {
	must := []interface{}{}
	filter := []interface{}{}

	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := "*" + strings.ToLower(q) + "*"
		should := []interface{}{}
		for _, field := range []string{"full_name", "company", "job_title"} {
			should = append(should, map[string]interface{}{
				"wildcard": map[string]interface{}{
					field + ".keyword": map[string]interface{}{
						"value":            pattern,
						"case_insensitive": true,
					},
				},
			})
		}
		must = append(must, map[string]interface{}{
			"bool": map[string]interface{}{"should": should, "minimum_should_match": 1},
		})
	}

	if f.Confidence != "" && f.Confidence != "all" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"confidence.keyword": f.Confidence},
		})
	}
	if f.NeedsReviewOnly {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"needs_review": true},
		})
	}

	if len(must) == 0 && len(filter) == 0 {
		return map[string]interface{}{"query": map[string]interface{}{"match_all": map[string]interface{}{}}}
	}
	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must, "filter": filter},
		},
	}
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
