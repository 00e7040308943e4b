// Package search keeps a searchable projection of accounts in Elasticsearch.
// Documents carry id, username, email and timestamps; never the password.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/oksasatya/account-management/internal/domain/entity"
)

const requestTimeout = 3 * time.Second

type document struct {
	ID                  int64      `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	LastAuthenticatedAt *time.Time `json:"last_authenticated_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type AccountIndex struct {
	es    *elasticsearch.Client
	index string
}

func NewAccountIndex(es *elasticsearch.Client, index string) *AccountIndex {
	return &AccountIndex{es: es, index: index}
}

func (x *AccountIndex) Index(ctx context.Context, a entity.Account) error {
	b, err := json.Marshal(document{
		ID:                  a.ID,
		Username:            a.Username,
		Email:               a.Email,
		LastAuthenticatedAt: a.LastAuthenticatedAt,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	})
	if err != nil {
		return err
	}
	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := x.es.Index(x.index, bytes.NewReader(b),
		x.es.Index.WithContext(c),
		x.es.Index.WithDocumentID(strconv.FormatInt(a.ID, 10)),
	)
	if err != nil {
		return fmt.Errorf("index account %d: %w", a.ID, err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return fmt.Errorf("index account %d: %s", a.ID, res.Status())
	}
	return nil
}

// Delete removes one document. A missing document is not an error.
func (x *AccountIndex) Delete(ctx context.Context, id int64) error {
	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := x.es.Delete(x.index, strconv.FormatInt(id, 10), x.es.Delete.WithContext(c))
	if err != nil {
		return fmt.Errorf("delete account doc %d: %w", id, err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete account doc %d: %s", id, res.Status())
	}
	return nil
}

// Purge removes every document from the index. A missing index is not an error.
func (x *AccountIndex) Purge(ctx context.Context) error {
	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := x.es.DeleteByQuery([]string{x.index}, strings.NewReader(`{"query":{"match_all":{}}}`),
		x.es.DeleteByQuery.WithContext(c),
		x.es.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("purge accounts index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("purge accounts index: %s", res.Status())
	}
	return nil
}

// Search runs a multi_match query over username and email.
func (x *AccountIndex) Search(ctx context.Context, q string, size int) ([]entity.AccountMatch, error) {
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"username^2", "email"},
			},
		},
		"size": size,
	}
	b, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := x.es.Search(
		x.es.Search.WithContext(c),
		x.es.Search.WithIndex(x.index),
		x.es.Search.WithBody(bytes.NewReader(b)),
	)
	if err != nil {
		return nil, fmt.Errorf("search accounts: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode == http.StatusNotFound {
		return []entity.AccountMatch{}, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("search accounts: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Score  float64  `json:"_score"`
				Source document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]entity.AccountMatch, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, entity.AccountMatch{ID: h.Source.ID, Username: h.Source.Username, Email: h.Source.Email, Score: h.Score})
	}
	return out, nil
}
