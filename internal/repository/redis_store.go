// Package repository keeps generated playbooks: a capped recent-history list
// in Redis, a long-term archive in Postgres and a contact search index in
// Elasticsearch.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"abm-playbook-workers/internal/common/logger"
	"abm-playbook-workers/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrPlaybookNotFound = errors.New("PLAYBOOK_NOT_FOUND")
	ErrStoreFailed      = errors.New("PLAYBOOK_STORE_FAILED")
)

// History is the recent-playbooks view the workers depend on.
type History interface {
	Append(ctx context.Context, pb *models.Playbook) error
	List(ctx context.Context) ([]*models.Playbook, error)
	Get(ctx context.Context, playbookID string) (*models.Playbook, error)
	Remove(ctx context.Context, index int) error
}

// RedisStore holds the most recent playbooks newest first. A limit of zero
// keeps everything.
type RedisStore struct {
	client redis.Cmdable
	key    string
	limit  int
	logger logger.Logger
}

func NewRedisStore(client redis.Cmdable, key string, limit int, log logger.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		key:    key,
		limit:  limit,
		logger: log.WithFields(map[string]interface{}{"component": "playbook-history"}),
	}
}

// Append prepends pb and drops whatever falls past the limit.
func (s *RedisStore) Append(ctx context.Context, pb *models.Playbook) error {
	data, err := json.Marshal(pb)
	if err != nil {
		return fmt.Errorf("%w: marshal playbook: %v", ErrStoreFailed, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.key, data)
		if s.limit > 0 {
			pipe.LTrim(ctx, s.key, 0, int64(s.limit-1))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}

	s.logger.Debug("playbook saved to history", map[string]interface{}{
		"playbookId": pb.PlaybookID,
	})
	return nil
}

// List returns the history newest first. Entries that no longer decode are
// skipped.
func (s *RedisStore) List(ctx context.Context) ([]*models.Playbook, error) {
	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}

	out := make([]*models.Playbook, 0, len(raw))
	for i, entry := range raw {
		var pb models.Playbook
		if err := json.Unmarshal([]byte(entry), &pb); err != nil {
			s.logger.Warn("skipping unreadable history entry", map[string]interface{}{
				"index": i,
				"error": err,
			})
			continue
		}
		pb.EnsureSlices()
		out = append(out, &pb)
	}
	return out, nil
}

func (s *RedisStore) Get(ctx context.Context, playbookID string) (*models.Playbook, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, pb := range all {
		if pb.PlaybookID == playbookID {
			return pb, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPlaybookNotFound, playbookID)
}

// Remove deletes the entry at index (0 is the newest).
func (s *RedisStore) Remove(ctx context.Context, index int) error {
	n, err := s.client.LLen(ctx, s.key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	if index < 0 || int64(index) >= n {
		return fmt.Errorf("%w: no entry at index %d", ErrPlaybookNotFound, index)
	}

	// LREM works on values, so mark the slot first.
	tombstone := "__removed__:" + uuid.New().String()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LSet(ctx, s.key, int64(index), tombstone)
		pipe.LRem(ctx, s.key, 1, tombstone)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	return nil
}
