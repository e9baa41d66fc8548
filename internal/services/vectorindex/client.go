// Package vectorindex is the boundary to the external content-search
// service. Processed documents are posted to a collection for later
// semantic retrieval; when indexing is disabled the noop client satisfies
// the same interface.
package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"medintake/internal/config"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultCollection  = "medical_documents"
)

// Document is the indexing payload for one processed document.
type Document struct {
	DocumentID   string `json:"document_id"`
	PatientID    string `json:"patient_id"`
	SessionID    string `json:"session_id"`
	Title        string `json:"title"`
	DocumentType string `json:"document_type"`
	ContentHash  string `json:"content_hash"`
	Content      string `json:"content"`
}

// Client indexes processed documents.
type Client interface {
	IndexDocument(ctx context.Context, doc Document) error
}

// HTTP posts documents to the index service's collection endpoint.
type HTTP struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

// Option customizes the HTTP client.
type Option func(*HTTP)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTP) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *HTTP) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewHTTP builds a client for the index service at baseURL.
func NewHTTP(baseURL, collection string, opts ...Option) (*HTTP, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("vector index: base url required")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		collection = defaultCollection
	}
	client := &HTTP{
		baseURL:    baseURL,
		collection: collection,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// IndexDocument posts one document to the collection.
func (c *HTTP) IndexDocument(ctx context.Context, doc Document) error {
	if strings.TrimSpace(doc.DocumentID) == "" {
		return errors.New("vector index: document id required")
	}
	endpoint, err := url.JoinPath(c.baseURL, "collections", c.collection, "documents")
	if err != nil {
		return fmt.Errorf("vector index: build url: %w", err)
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("vector index: encode document: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("vector index: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vector index: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("vector index: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Noop satisfies Client when no index service is configured.
type Noop struct{}

// IndexDocument accepts and discards the document.
func (Noop) IndexDocument(context.Context, Document) error { return nil }

// FromConfig selects the HTTP client when indexing is enabled and the noop
// client otherwise.
func FromConfig(cfg config.Indexing) (Client, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	return NewHTTP(cfg.BaseURL, cfg.Collection,
		WithTimeout(time.Duration(cfg.RequestTimeout)*time.Second))
}
