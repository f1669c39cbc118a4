package database

import (
	"context"
	"errors"
	"time"

	"github.com/princinho/studyspark/auth"
	"github.com/princinho/studyspark/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type documentRecord struct {
	ID        bson.ObjectID          `bson:"_id,omitempty"`
	UserID    string                 `bson:"userId"`
	Filename  string                 `bson:"filename"`
	FileSize  int64                  `bson:"fileSize"`
	ObjectKey string                 `bson:"objectKey,omitempty"`
	URL       string                 `bson:"url,omitempty"`
	SourceURL string                 `bson:"sourceUrl,omitempty"`
	Summary   models.DocumentSummary `bson:"summary"`
	CreatedAt time.Time              `bson:"createdAt"`
}

func (r documentRecord) model() models.Document {
	return models.Document{
		ID:        r.ID.Hex(),
		UserID:    r.UserID,
		Filename:  r.Filename,
		SizeBytes: r.FileSize,
		ObjectKey: r.ObjectKey,
		URL:       r.URL,
		SourceURL: r.SourceURL,
		Summary:   r.Summary,
		CreatedAt: r.CreatedAt,
	}
}

type MongoDocumentStore struct {
	col     *mongo.Collection
	timeout time.Duration
}

func NewMongoDocumentStore(db *mongo.Database, timeout time.Duration) *MongoDocumentStore {
	return &MongoDocumentStore{col: db.Collection(documentsCollection), timeout: timeout}
}

func (s *MongoDocumentStore) CreateDocument(ctx context.Context, d *models.Document) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	rec := documentRecord{
		ID:        bson.NewObjectID(),
		UserID:    d.UserID,
		Filename:  d.Filename,
		FileSize:  d.SizeBytes,
		ObjectKey: d.ObjectKey,
		URL:       d.URL,
		SourceURL: d.SourceURL,
		Summary:   d.Summary,
		CreatedAt: d.CreatedAt,
	}
	if _, err := s.col.InsertOne(ctx, rec); err != nil {
		return storageErr("insert document", err)
	}
	d.ID = rec.ID.Hex()
	return nil
}

func (s *MongoDocumentStore) GetDocument(ctx context.Context, id string) (models.Document, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return models.Document{}, ErrDocumentNotFound
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var rec documentRecord
	if err := s.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Document{}, ErrDocumentNotFound
		}
		return models.Document{}, storageErr("find document", err)
	}
	return rec.model(), nil
}

func (s *MongoDocumentStore) ListDocuments(ctx context.Context, userID string) ([]models.Document, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	cur, err := s.col.Find(ctx, bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, storageErr("list documents", err)
	}
	var recs []documentRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, storageErr("list documents", err)
	}
	out := make([]models.Document, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.model())
	}
	return out, nil
}

var _ auth.CredentialStore = (*MongoUserStore)(nil)
var _ UserStore = (*MongoUserStore)(nil)
var _ DocumentStore = (*MongoDocumentStore)(nil)
