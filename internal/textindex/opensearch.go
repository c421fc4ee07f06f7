package textindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	opensearch "github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"go.uber.org/zap"
)

const indexName = "invoice_text"

// OpenSearchIndexer stores text blobs in an OpenSearch index keyed by
// tenant:invoice_id.
type OpenSearchIndexer struct {
	client *opensearch.Client
	log    *zap.Logger
}

func NewOpenSearchIndexer(host string, log *zap.Logger) (*OpenSearchIndexer, error) {
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{host},
	})
	if err != nil {
		return nil, err
	}
	return &OpenSearchIndexer{client: client, log: log.Named("textindex")}, nil
}

func (o *OpenSearchIndexer) Index(ctx context.Context, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := opensearchapi.IndexRequest{
		Index:      indexName,
		DocumentID: url.PathEscape(doc.TenantID + ":" + doc.InvoiceID),
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, o.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index %s: %s", doc.InvoiceID, res.Status())
	}
	io.Copy(io.Discard, res.Body)
	return nil
}

func (o *OpenSearchIndexer) Neighbors(ctx context.Context, tenantID, vendorID, excludeInvoiceID, blob string, limit int) ([]string, error) {
	if strings.TrimSpace(blob) == "" || limit <= 0 {
		return nil, nil
	}

	query := map[string]any{
		"size":    limit,
		"_source": []string{"invoice_id"},
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{"match": map[string]any{"text_blob": blob}},
				},
				"filter": []any{
					map[string]any{"term": map[string]any{"tenant_id": tenantID}},
					map[string]any{"term": map[string]any{"vendor_id": vendorID}},
				},
				"must_not": []any{
					map[string]any{"term": map[string]any{"invoice_id": excludeInvoiceID}},
				},
			},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	req := opensearchapi.SearchRequest{
		Index: []string{indexName},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, o.client)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search neighbors: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source struct {
					InvoiceID string `json:"invoice_id"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		if hit.Source.InvoiceID != "" {
			ids = append(ids, hit.Source.InvoiceID)
		}
	}
	return ids, nil
}
