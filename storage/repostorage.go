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

// RepoCursor interface for mocking
type RepoCursor interface {
	All(ctx context.Context, results interface{}) error
	Close(ctx context.Context) error
	Err() error
}

// RepoSingleResult interface for mocking
type RepoSingleResult interface {
	Decode(v interface{}) error
}

// RepoCollection interface for mocking
type RepoCollection interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (RepoCursor, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) RepoSingleResult
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// mongoRepoCursor adapts *mongo.Cursor to RepoCursor
type mongoRepoCursor struct {
	*mongo.Cursor
}

func (m *mongoRepoCursor) All(ctx context.Context, results interface{}) error {
	return m.Cursor.All(ctx, results)
}

func (m *mongoRepoCursor) Close(ctx context.Context) error {
	return m.Cursor.Close(ctx)
}

func (m *mongoRepoCursor) Err() error {
	return m.Cursor.Err()
}

// mongoRepoSingleResult adapts *mongo.SingleResult to RepoSingleResult
type mongoRepoSingleResult struct {
	*mongo.SingleResult
}

func (m *mongoRepoSingleResult) Decode(v interface{}) error {
	return m.SingleResult.Decode(v)
}

// mongoRepoCollection adapts *mongo.Collection to RepoCollection
type mongoRepoCollection struct {
	*mongo.Collection
}

func (m *mongoRepoCollection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (RepoCursor, error) {
	cursor, err := m.Collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return &mongoRepoCursor{Cursor: cursor}, nil
}

func (m *mongoRepoCollection) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) RepoSingleResult {
	return &mongoRepoSingleResult{SingleResult: m.Collection.FindOne(ctx, filter, opts...)}
}

// RepoStorage handles repository record persistence in MongoDB
type RepoStorage struct {
	mongoDB   *MongoDB
	reposColl RepoCollection
}

// NewRepoStorage creates a new repository storage handler
func NewRepoStorage(mongoDB *MongoDB) *RepoStorage {
	return &RepoStorage{
		mongoDB:   mongoDB,
		reposColl: &mongoRepoCollection{Collection: mongoDB.Database.Collection("repos")},
	}
}

// CreateRepo inserts a new repository record
func (rs *RepoStorage) CreateRepo(repo *core.Repo) error {
	ctx, cancel := context.WithTimeout(context.Background(), core.DBRequestTimeout)
	defer cancel()

	now := time.Now().UTC()
	if repo.CreatedAt.IsZero() {
		repo.CreatedAt = now
	}
	repo.UpdatedAt = now

	_, err := rs.reposColl.InsertOne(ctx, repo)
	if err != nil {
		return fmt.Errorf("failed to insert repo: %w", err)
	}

	return nil
}

// GetRepo retrieves a single repository record by ID
func (rs *RepoStorage) GetRepo(id string) (*core.Repo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), core.DBRequestTimeout)
	defer cancel()

	var repo core.Repo
	err := rs.reposColl.FindOne(ctx, bson.M{"_id": id}).Decode(&repo)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, core.ErrRepoNotFound
		}
		return nil, fmt.Errorf("failed to find repo: %w", err)
	}

	return &repo, nil
}

// GetReposByUser retrieves all repository records owned by a user
func (rs *RepoStorage) GetReposByUser(userID string) ([]core.Repo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	findOptions := options.Find()
	findOptions.SetSort(bson.M{"created_at": -1})

	cursor, err := rs.reposColl.Find(ctx, bson.M{"user_id": userID}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to find repos: %w", err)
	}
	defer cursor.Close(ctx)

	repos := make([]core.Repo, 0)
	if err = cursor.All(ctx, &repos); err != nil {
		return nil, fmt.Errorf("failed to decode repos: %w", err)
	}

	return repos, nil
}

// UpdateRepo replaces the mutable fields of a repository record
func (rs *RepoStorage) UpdateRepo(id string, repo *core.Repo) error {
	ctx, cancel := context.WithTimeout(context.Background(), core.DBRequestTimeout)
	defer cancel()

	repo.UpdatedAt = time.Now().UTC()

	filter := bson.M{"_id": id}
	update := bson.M{"$set": bson.M{
		"owner":          repo.Owner,
		"name":           repo.Name,
		"default_branch": repo.DefaultBranch,
		"tree":           repo.Tree,
		"updated_at":     repo.UpdatedAt,
	}}

	result, err := rs.reposColl.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update repo: %w", err)
	}

	if result.MatchedCount == 0 {
		return core.ErrRepoNotFound
	}

	return nil
}

// SetTreeNodeStatus updates the status of the tree node pointing at docID
func (rs *RepoStorage) SetTreeNodeStatus(repoID, docID string, status core.DocStatus) error {
	ctx, cancel := context.WithTimeout(context.Background(), core.DBRequestTimeout)
	defer cancel()

	filter := bson.M{"_id": repoID, "tree.doc_id": docID}
	update := bson.M{"$set": bson.M{
		"tree.$.status": status,
		"updated_at":    time.Now().UTC(),
	}}

	result, err := rs.reposColl.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update tree node: %w", err)
	}

	if result.MatchedCount == 0 {
		return core.ErrRepoNotFound
	}

	return nil
}

// DeleteRepo deletes a repository record by ID
func (rs *RepoStorage) DeleteRepo(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), core.DBRequestTimeout)
	defer cancel()

	result, err := rs.reposColl.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete repo: %w", err)
	}

	if result.DeletedCount == 0 {
		return core.ErrRepoNotFound
	}

	return nil
}

// EnsureIndexes creates necessary indexes for the repos collection
func (rs *RepoStorage) EnsureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	coll, ok := rs.reposColl.(*mongoRepoCollection)
	if !ok {
		return nil
	}

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}

	_, err := coll.Collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create repo indexes: %w", err)
	}

	return nil
}
