// Package stream provides a DynamoDB Streams handler that mirrors a document
// stored by store.DynamoBackend into a local store.
package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/yisona/store"
)

// Stream event names.
const (
	EventInsert = "INSERT"
	EventModify = "MODIFY"
	EventRemove = "REMOVE"
)

// Mirror applies changes to one document item onto a local Store.
type Mirror struct {
	store      *store.Store
	documentID string
	logger     *slog.Logger
}

// NewMirror creates a handler that mirrors documentID into s.
func NewMirror(s *store.Store, documentID string, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		store:      s,
		documentID: documentID,
		logger:     logger,
	}
}

// HandleMirror processes a batch of stream records.
// This function is designed to be used as an AWS Lambda handler.
func (m *Mirror) HandleMirror(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := m.processRecord(ctx, record); err != nil {
			m.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Lambda retries the batch
		}
	}
	return nil
}

// processRecord applies a single stream record.
func (m *Mirror) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	id := getStringAttr(record.Change.Keys, store.AttrID)
	if id == "" {
		id = getStringAttr(record.Change.NewImage, store.AttrID)
	}
	if id != m.documentID {
		return nil
	}

	switch record.EventName {
	case EventInsert, EventModify:
		body := getStringAttr(record.Change.NewImage, store.AttrBody)
		doc, err := store.DecodeBody(body)
		if err != nil {
			return fmt.Errorf("decode body of %s: %w", id, err)
		}
		if err := m.store.Replace(ctx, doc); err != nil {
			return fmt.Errorf("replace %s: %w", id, err)
		}
		m.logger.Info("document mirrored",
			"documentID", id,
			"event", record.EventName,
			"keys", len(doc),
		)
	case EventRemove:
		if err := m.store.Replace(ctx, map[string]any{}); err != nil {
			return fmt.Errorf("clear %s: %w", id, err)
		}
		m.logger.Info("document removed", "documentID", id)
	}
	return nil
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}
