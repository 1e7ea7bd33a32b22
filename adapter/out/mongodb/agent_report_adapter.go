// Package mongodb implements MongoDB adapters for the application.
package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/legb78/mail-classification-agent/core/domain"
	"github.com/legb78/mail-classification-agent/core/port/out"
)

const (
	collectionReports = "cycle_reports"

	// Outcome payloads above this size are gzipped before storage.
	reportCompressionThreshold = 512
)

// ReportAdapter implements out.ReportRepository using MongoDB.
type ReportAdapter struct {
	collection *mongo.Collection
}

// NewReportAdapter creates a new MongoDB report adapter.
func NewReportAdapter(db *mongo.Database) *ReportAdapter {
	return &ReportAdapter{collection: db.Collection(collectionReports)}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *ReportAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "cycle_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "started_at", Value: -1}},
		},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// reportDocument represents the MongoDB document structure. Per-message
// outcomes are stored as a JSON blob, gzipped when large, so the summary
// counters stay queryable either way.
type reportDocument struct {
	CycleID    string    `bson:"cycle_id"`
	StartedAt  time.Time `bson:"started_at"`
	FinishedAt time.Time `bson:"finished_at"`
	DryRun     bool      `bson:"dry_run"`

	Created int `bson:"created"`
	Skipped int `bson:"skipped"`
	Failed  int `bson:"failed"`

	Outcomes     []byte `bson:"outcomes"`
	IsCompressed bool   `bson:"is_compressed"`
	OriginalSize int64  `bson:"original_size"`
}

// Save upserts the report by cycle ID.
func (a *ReportAdapter) Save(ctx context.Context, report *domain.CycleReport) error {
	doc, err := toDocument(report)
	if err != nil {
		return fmt.Errorf("failed to convert report to document: %w", err)
	}

	opts := options.Replace().SetUpsert(true)
	filter := bson.M{"cycle_id": report.CycleID}

	if _, err := a.collection.ReplaceOne(ctx, filter, doc, opts); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// ListRecent returns the latest cycle reports, newest first.
func (a *ReportAdapter) ListRecent(ctx context.Context, limit int) ([]*domain.CycleReport, error) {
	if limit <= 0 {
		limit = 20
	}
	findOpts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := a.collection.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer cursor.Close(ctx)

	var reports []*domain.CycleReport
	for cursor.Next(ctx) {
		var doc reportDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode report: %w", err)
		}
		report, err := toEntity(&doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, cursor.Err()
}

func toDocument(report *domain.CycleReport) (*reportDocument, error) {
	outcomes, err := json.Marshal(report.Outcomes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outcomes: %w", err)
	}

	doc := &reportDocument{
		CycleID:      report.CycleID,
		StartedAt:    report.StartedAt,
		FinishedAt:   report.FinishedAt,
		DryRun:       report.DryRun,
		Created:      report.Created(),
		Skipped:      report.Skipped(),
		Failed:       report.Failed(),
		Outcomes:     outcomes,
		OriginalSize: int64(len(outcomes)),
	}

	if doc.OriginalSize > reportCompressionThreshold {
		compressed, err := compressReport(outcomes)
		if err != nil {
			return nil, fmt.Errorf("failed to compress outcomes: %w", err)
		}
		doc.Outcomes = compressed
		doc.IsCompressed = true
	}
	return doc, nil
}

func toEntity(doc *reportDocument) (*domain.CycleReport, error) {
	payload := doc.Outcomes
	if doc.IsCompressed {
		decompressed, err := decompressReport(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress outcomes: %w", err)
		}
		payload = decompressed
	}

	report := &domain.CycleReport{
		CycleID:    doc.CycleID,
		StartedAt:  doc.StartedAt,
		FinishedAt: doc.FinishedAt,
		DryRun:     doc.DryRun,
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &report.Outcomes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal outcomes: %w", err)
		}
	}
	return report, nil
}

func compressReport(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressReport(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

var _ out.ReportRepository = (*ReportAdapter)(nil)
