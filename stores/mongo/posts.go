package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	authservice "github.com/Matidza/Auth-Service"
)

const postsCollectionName = "posts"

type postDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Title       string             `bson:"title"`
	Description string             `bson:"description"`
	OwnerID     string             `bson:"owner_id"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

func (d *postDocument) toPost() *authservice.Post {
	return &authservice.Post{
		ID:          d.ID.Hex(),
		Title:       d.Title,
		Description: d.Description,
		OwnerID:     d.OwnerID,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type PostStore struct {
	coll *mongo.Collection
}

func NewPostStore(ctx context.Context, db *mongo.Database) (*PostStore, error) {
	coll := db.Collection(postsCollectionName)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create posts index: %w", err)
	}
	return &PostStore{coll: coll}, nil
}

func (s *PostStore) CreatePost(ctx context.Context, post *authservice.Post) error {
	doc := &postDocument{
		ID:          primitive.NewObjectID(),
		Title:       post.Title,
		Description: post.Description,
		OwnerID:     post.OwnerID,
		CreatedAt:   post.CreatedAt.UTC(),
		UpdatedAt:   post.UpdatedAt.UTC(),
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create post in mongo: %w", err)
	}
	post.ID = doc.ID.Hex()
	return nil
}

func (s *PostStore) GetPost(ctx context.Context, id string) (*authservice.Post, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, authservice.ErrPostNotFound
	}
	var doc postDocument
	if err := s.coll.FindOne(ctx, bson.M{"_id": objID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, authservice.ErrPostNotFound
		}
		return nil, fmt.Errorf("failed to load post: %w", err)
	}
	return doc.toPost(), nil
}

func (s *PostStore) ListPosts(ctx context.Context, offset, limit int) ([]*authservice.Post, error) {
	offset = max(offset, 0)
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer cursor.Close(ctx)

	posts := []*authservice.Post{}
	for cursor.Next(ctx) {
		var doc postDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode post: %w", err)
		}
		posts = append(posts, doc.toPost())
	}
	return posts, cursor.Err()
}

func (s *PostStore) SavePost(ctx context.Context, post *authservice.Post) error {
	objID, err := primitive.ObjectIDFromHex(post.ID)
	if err != nil {
		return authservice.ErrPostNotFound
	}
	res, err := s.coll.UpdateByID(ctx, objID, bson.M{"$set": bson.M{
		"title":       post.Title,
		"description": post.Description,
		"updated_at":  post.UpdatedAt.UTC(),
	}})
	if err != nil {
		return fmt.Errorf("failed to save post: %w", err)
	}
	if res.MatchedCount == 0 {
		return authservice.ErrPostNotFound
	}
	return nil
}

func (s *PostStore) DeletePost(ctx context.Context, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return authservice.ErrPostNotFound
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": objID})
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	if res.DeletedCount == 0 {
		return authservice.ErrPostNotFound
	}
	return nil
}
