package payload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/example/multichannel/internal/messaging"
)

var ErrInvalidOpenSearchConfig = errors.New("opensearch store requires addresses and index")

type OpenSearchConfig struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
}

// OpenSearchStore indexes text payloads so they can be searched later.
type OpenSearchStore struct {
	transport opensearchapi.Transport
	index     string
	newID     func() string
}

func NewOpenSearchStore(cfg OpenSearchConfig) (*OpenSearchStore, error) {
	if len(cfg.Addresses) == 0 || cfg.Index == "" {
		return nil, ErrInvalidOpenSearchConfig
	}
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("opensearch client: %w", err)
	}
	return NewOpenSearchStoreWithTransport(client, cfg.Index), nil
}

func NewOpenSearchStoreWithTransport(t opensearchapi.Transport, index string) *OpenSearchStore {
	return &OpenSearchStore{transport: t, index: index, newID: uuid.NewString}
}

type textDocument struct {
	Type     messaging.MediaType `json:"type"`
	Content  string              `json:"content"`
	StoredAt time.Time           `json:"stored_at"`
}

// Store indexes content and returns the document id.
func (s *OpenSearchStore) Store(ctx context.Context, typ messaging.MediaType, content string) (string, error) {
	body, err := json.Marshal(textDocument{Type: typ, Content: content, StoredAt: time.Now().UTC()})
	if err != nil {
		return "", err
	}
	id := s.newID()
	req := opensearchapi.IndexRequest{
		Index:      s.index,
		DocumentID: id,
		Body:       bytes.NewReader(body),
	}
	resp, err := req.Do(ctx, s.transport)
	if err != nil {
		return "", fmt.Errorf("index document: %w", err)
	}
	defer resp.Body.Close()
	if resp.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("index document: %s: %s", resp.Status(), bytes.TrimSpace(msg))
	}
	return id, nil
}
