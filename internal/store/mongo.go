package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"call-insights-go/internal/types"
)

// MongoStore keeps calls in the configured collection (default demo.diallo).
type MongoStore struct {
	client *mongo.Client
	calls  *mongo.Collection
	agents *mongo.Collection
}

type callDoc struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	AgentID          string             `bson:"agent_id,omitempty"`
	AgentName        string             `bson:"agent_name"`
	PatientName      string             `bson:"patient_name"`
	AgentPhoneNumber string             `bson:"agent_phone_number"`
	Bucket           string             `bson:"bucket,omitempty"`
	Provider         string             `bson:"provider,omitempty"`
	Transcript       string             `bson:"transcribe"`
	Turns            []types.Turn       `bson:"turns,omitempty"`
	Analysis         types.Analysis     `bson:"analysis"`
	CreatedAt        time.Time          `bson:"created_at"`
}

func (d callDoc) record() *types.CallRecord {
	return &types.CallRecord{
		ID:               d.ID.Hex(),
		AgentID:          d.AgentID,
		AgentName:        d.AgentName,
		PatientName:      d.PatientName,
		AgentPhoneNumber: d.AgentPhoneNumber,
		Bucket:           d.Bucket,
		Provider:         d.Provider,
		Transcript:       d.Transcript,
		Turns:            d.Turns,
		Analysis:         d.Analysis,
		CreatedAt:        d.CreatedAt.UTC(),
	}
}

type agentDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	CreatedAt time.Time          `bson:"created_at"`
}

func (d agentDoc) agent() *types.Agent {
	return &types.Agent{ID: d.ID.Hex(), Name: d.Name, CreatedAt: d.CreatedAt.UTC()}
}

func OpenMongo(ctx context.Context, uri string, opts Options) (*MongoStore, error) {
	opts = opts.withDefaults()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(opts.Database)
	s := &MongoStore{
		client: client,
		calls:  db.Collection(opts.CallsCollection),
		agents: db.Collection(opts.AgentsCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	if _, err := s.calls.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	}); err != nil {
		return fmt.Errorf("create calls index: %w", err)
	}
	if _, err := s.agents.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("create agents index: %w", err)
	}
	return nil
}

func (s *MongoStore) InsertCall(ctx context.Context, rec *types.CallRecord) (string, error) {
	rec.CreatedAt = stamp(rec.CreatedAt)
	doc := callDoc{
		ID:               primitive.NewObjectID(),
		AgentID:          rec.AgentID,
		AgentName:        rec.AgentName,
		PatientName:      rec.PatientName,
		AgentPhoneNumber: rec.AgentPhoneNumber,
		Bucket:           rec.Bucket,
		Provider:         rec.Provider,
		Transcript:       rec.Transcript,
		Turns:            rec.Turns,
		Analysis:         rec.Analysis,
		CreatedAt:        rec.CreatedAt,
	}
	if _, err := s.calls.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert call: %w", err)
	}
	rec.ID = doc.ID.Hex()
	return rec.ID, nil
}

func (s *MongoStore) GetCall(ctx context.Context, id string) (*types.CallRecord, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var doc callDoc
	err = s.calls.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get call: %w", err)
	}
	return doc.record(), nil
}

func (s *MongoStore) ListCalls(ctx context.Context) ([]types.CallSummary, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetProjection(bson.M{
			"agent_name":                  1,
			"patient_name":                1,
			"agent_phone_number":          1,
			"bucket":                      1,
			"created_at":                  1,
			"analysis.kind":               1,
			"analysis.bucket.total_score": 1,
		})
	cur, err := s.calls.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer cur.Close(ctx)

	out := []types.CallSummary{}
	for cur.Next(ctx) {
		var doc callDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode call: %w", err)
		}
		out = append(out, doc.record().Summary())
	}
	return out, cur.Err()
}

func (s *MongoStore) UpsertAgent(ctx context.Context, name string) (*types.Agent, error) {
	update := bson.M{"$setOnInsert": bson.M{"name": name, "created_at": stamp(time.Time{})}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc agentDoc
	err := s.agents.FindOneAndUpdate(ctx, bson.M{"name": name}, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// lost an insert race on the unique index; the winner's row is there now
		err = s.agents.FindOne(ctx, bson.M{"name": name}).Decode(&doc)
	}
	if err != nil {
		return nil, fmt.Errorf("upsert agent: %w", err)
	}
	return doc.agent(), nil
}

func (s *MongoStore) ListAgents(ctx context.Context) ([]types.Agent, error) {
	cur, err := s.agents.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer cur.Close(ctx)

	out := []types.Agent{}
	for cur.Next(ctx) {
		var doc agentDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode agent: %w", err)
		}
		out = append(out, *doc.agent())
	}
	return out, cur.Err()
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
