// internal/auditlog/auditlog.go
package auditlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"promise-dispatch/internal/common/database"
	"promise-dispatch/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
)

// Log appends email audit entries to an Elasticsearch index. Appends are
// best-effort: the dispatcher logs and swallows failures because the email
// has already left the building by the time the entry is written.
type Log struct {
	es    *elasticsearch.Client
	index string
}

func New(client *database.ElasticsearchClient, index string) *Log {
	return &Log{es: client.Client, index: index}
}

// NewWithClient wires a raw client; used by tests.
func NewWithClient(client *elasticsearch.Client, index string) *Log {
	return &Log{es: client, index: index}
}

// Append indexes one audit entry. The entry is never read back by the
// dispatcher; the admin email-log viewer queries the index directly.
func (l *Log) Append(ctx context.Context, entry models.EmailLogEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	res, err := l.es.Index(
		l.index,
		bytes.NewReader(body),
		l.es.Index.WithContext(ctx),
		l.es.Index.WithDocumentID(entry.NotificationID),
	)
	if err != nil {
		return fmt.Errorf("index audit entry: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index audit entry: %s", res.Status())
	}
	return nil
}
