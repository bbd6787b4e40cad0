package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scribe/core"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DocCursor interface for mocking
type DocCursor interface {
	All(ctx context.Context, results interface{}) error
	Close(ctx context.Context) error
	Err() error
}

// DocSingleResult interface for mocking
type DocSingleResult interface {
	Decode(v interface{}) error
}

// DocCollection interface for mocking
type DocCollection interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (DocCursor, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) DocSingleResult
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// mongoDocCursor adapts *mongo.Cursor to DocCursor
type mongoDocCursor struct {
	*mongo.Cursor
}

func (m *mongoDocCursor) All(ctx context.Context, results interface{}) error {
	return m.Cursor.All(ctx, results)
}

func (m *mongoDocCursor) Close(ctx context.Context) error {
	return m.Cursor.Close(ctx)
}

func (m *mongoDocCursor) Err() error {
	return m.Cursor.Err()
}

// mongoDocSingleResult adapts *mongo.SingleResult to DocSingleResult
type mongoDocSingleResult struct {
	*mongo.SingleResult
}

func (m *mongoDocSingleResult) Decode(v interface{}) error {
	return m.SingleResult.Decode(v)
}

// mongoDocCollection adapts *mongo.Collection to DocCollection
type mongoDocCollection struct {
	*mongo.Collection
}

func (m *mongoDocCollection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (DocCursor, error) {
	cursor, err := m.Collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return &mongoDocCursor{Cursor: cursor}, nil
}

func (m *mongoDocCollection) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) DocSingleResult {
	return &mongoDocSingleResult{SingleResult: m.Collection.FindOne(ctx, filter, opts...)}
}

// DocStorage handles documentation record persistence in MongoDB
type DocStorage struct {
	mongoDB  *MongoDB
	docsColl DocCollection
}

// NewDocStorage creates a new documentation storage handler
func NewDocStorage(mongoDB *MongoDB) *DocStorage {
	return &DocStorage{
		mongoDB:  mongoDB,
		docsColl: &mongoDocCollection{Collection: mongoDB.Database.Collection("docs")},
	}
}

// CreateDoc inserts a new documentation record
func (ds *DocStorage) CreateDoc(doc *core.Doc) error {
	ctx, cancel := context.WithTimeout(context.Background(), core.DBRequestTimeout)
	defer cancel()

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := ds.docsColl.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to insert doc: %w", err)
	}

	return nil
}

// GetDoc retrieves a single documentation record by ID
func (ds *DocStorage) GetDoc(id string) (*core.Doc, error) {
	ctx, cancel := context.WithTimeout(context.Background(), core.DBRequestTimeout)
	defer cancel()

	var doc core.Doc
	err := ds.docsColl.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, core.ErrDocNotFound
		}
		return nil, fmt.Errorf("failed to find doc: %w", err)
	}

	return &doc, nil
}

// GetDocsByRepo retrieves all documentation records for a repository
func (ds *DocStorage) GetDocsByRepo(repoID string) ([]core.Doc, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cursor, err := ds.docsColl.Find(ctx, bson.M{"repo_id": repoID})
	if err != nil {
		return nil, fmt.Errorf("failed to find docs: %w", err)
	}
	defer cursor.Close(ctx)

	docs := make([]core.Doc, 0)
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode docs: %w", err)
	}

	return docs, nil
}

// GetDocsByUser retrieves documentation records owned by a user, newest first
func (ds *DocStorage) GetDocsByUser(userID string, limit, offset int) ([]core.Doc, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	findOptions := options.Find()
	findOptions.SetSort(bson.M{"created_at": -1})
	if limit > 0 {
		findOptions.SetLimit(int64(limit))
	}
	if offset > 0 {
		findOptions.SetSkip(int64(offset))
	}

	cursor, err := ds.docsColl.Find(ctx, bson.M{"user_id": userID}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to find docs: %w", err)
	}
	defer cursor.Close(ctx)

	docs := make([]core.Doc, 0)
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode docs: %w", err)
	}

	return docs, nil
}

// UpdateDoc replaces the mutable fields of a documentation record
func (ds *DocStorage) UpdateDoc(id string, doc *core.Doc) error {
	ctx, cancel := context.WithTimeout(context.Background(), core.DBRequestTimeout)
	defer cancel()

	doc.UpdatedAt = time.Now().UTC()

	filter := bson.M{"_id": id}
	update := bson.M{"$set": bson.M{
		"model":      doc.Model,
		"status":     doc.Status,
		"markdown":   doc.Markdown,
		"error":      doc.Error,
		"updated_at": doc.UpdatedAt,
	}}

	result, err := ds.docsColl.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update doc: %w", err)
	}

	if result.MatchedCount == 0 {
		return core.ErrDocNotFound
	}

	return nil
}

// SetDocResult records the outcome of a generation job
func (ds *DocStorage) SetDocResult(id string, status core.DocStatus, markdown, errMsg string) error {
	ctx, cancel := context.WithTimeout(context.Background(), core.DBRequestTimeout)
	defer cancel()

	filter := bson.M{"_id": id}
	update := bson.M{"$set": bson.M{
		"status":     status,
		"markdown":   markdown,
		"error":      errMsg,
		"updated_at": time.Now().UTC(),
	}}

	result, err := ds.docsColl.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to set doc result: %w", err)
	}

	if result.MatchedCount == 0 {
		return core.ErrDocNotFound
	}

	return nil
}

// DeleteDoc deletes a documentation record by ID
func (ds *DocStorage) DeleteDoc(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), core.DBRequestTimeout)
	defer cancel()

	result, err := ds.docsColl.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete doc: %w", err)
	}

	if result.DeletedCount == 0 {
		return core.ErrDocNotFound
	}

	return nil
}

// DeleteDocsByRepo deletes all documentation records of a repository
func (ds *DocStorage) DeleteDocsByRepo(repoID string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := ds.docsColl.DeleteMany(ctx, bson.M{"repo_id": repoID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete docs: %w", err)
	}

	return result.DeletedCount, nil
}

// EnsureIndexes creates necessary indexes for the docs collection
func (ds *DocStorage) EnsureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	coll, ok := ds.docsColl.(*mongoDocCollection)
	if !ok {
		// Mocked collection, nothing to index
		return nil
	}

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "repo_id", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}

	_, err := coll.Collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create doc indexes: %w", err)
	}

	return nil
}
