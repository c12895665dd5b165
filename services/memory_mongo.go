package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/rayrayraykk/agentscope-runtime/types"
)

const memoryCollection = "memories"

// memoryDoc is the Mongo document for one stored message. The message
// itself is kept as a JSON payload; the text field duplicates the
// plain-text content so keyword search can filter server-side.
type memoryDoc struct {
	UserID    string    `bson:"user_id"`
	SessionID string    `bson:"session_id"`
	Text      string    `bson:"text"`
	Payload   string    `bson:"payload"`
	CreatedAt time.Time `bson:"created_at"`
	Seq       int64     `bson:"seq"`
}

// MongoMemory persists long-term memory in MongoDB.
type MongoMemory struct {
	uri      string
	database string
	client   *mongo.Client
	coll     *mongo.Collection
	seq      atomic.Int64

	Now func() time.Time
}

// NewMongoMemory creates the service. The connection is established in
// Start.
func NewMongoMemory(uri, database string) *MongoMemory {
	if database == "" {
		database = "agentscope"
	}
	return &MongoMemory{uri: uri, database: database, Now: time.Now}
}

func (m *MongoMemory) Name() string { return "memory/mongo" }

func (m *MongoMemory) Start(ctx context.Context) error {
	if m.client != nil {
		return nil
	}
	client, err := mongo.Connect(options.Client().ApplyURI(m.uri))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	m.client = client
	m.coll = client.Database(m.database).Collection(memoryCollection)
	return nil
}

func (m *MongoMemory) Stop(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	err := m.client.Disconnect(ctx)
	m.client = nil
	m.coll = nil
	return err
}

func (m *MongoMemory) Health(ctx context.Context) error {
	if m.client == nil {
		return types.NewError(types.ErrServiceUnhealthy, "mongo not started")
	}
	return m.client.Ping(ctx, nil)
}

func (m *MongoMemory) AddMemory(ctx context.Context, userID string, msgs []*types.Message, sessionID string) error {
	if len(msgs) == 0 {
		return nil
	}
	key := memorySessionKey(sessionID)

	docs := make([]any, 0, len(msgs))
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		docs = append(docs, memoryDoc{
			UserID:    userID,
			SessionID: key,
			Text:      msg.ContentText(),
			Payload:   string(payload),
			CreatedAt: m.Now(),
			Seq:       m.seq.Add(1),
		})
	}
	if len(docs) == 0 {
		return nil
	}

	_, err := m.coll.InsertMany(ctx, docs)
	return err
}

func (m *MongoMemory) SearchMemory(ctx context.Context, userID string, query []*types.Message, topK int) ([]*types.Message, error) {
	keywords := queryKeywords(query)
	if len(keywords) == 0 {
		return nil, nil
	}

	// Any-keyword match server-side, case insensitive; overlap ranking
	// happens client-side on the filtered set.
	patterns := make(bson.A, 0, len(keywords))
	for _, w := range keywords {
		patterns = append(patterns, bson.M{"text": bson.M{
			"$regex":   regexQuoteMeta(w),
			"$options": "i",
		}})
	}
	filter := bson.M{"user_id": userID, "$or": patterns}

	matched, err := m.find(ctx, filter)
	if err != nil {
		return nil, err
	}
	return rankByOverlap(matched, keywords, topK), nil
}

func (m *MongoMemory) ListMemory(ctx context.Context, userID string, pageNum, pageSize int) ([]*types.Message, error) {
	all, err := m.find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	return pageSlice(all, pageNum, pageSize), nil
}

func (m *MongoMemory) DeleteMemory(ctx context.Context, userID, sessionID string) error {
	filter := bson.M{"user_id": userID}
	if sessionID != "" {
		filter["session_id"] = memorySessionKey(sessionID)
	}
	_, err := m.coll.DeleteMany(ctx, filter)
	return err
}

func (m *MongoMemory) find(ctx context.Context, filter bson.M) ([]*types.Message, error) {
	cursor, err := m.coll.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "seq", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*types.Message
	for cursor.Next(ctx) {
		var doc memoryDoc
		if err := cursor.Decode(&doc); err != nil {
			continue
		}
		var msg types.Message
		if err := json.Unmarshal([]byte(doc.Payload), &msg); err != nil {
			continue
		}
		out = append(out, &msg)
	}
	return out, cursor.Err()
}

// regexQuoteMeta escapes regex metacharacters in a keyword.
func regexQuoteMeta(s string) string {
	const meta = `\.+*?()|[]{}^$`
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		for j := 0; j < len(meta); j++ {
			if c == meta[j] {
				out = append(out, '\\')
				break
			}
		}
		out = append(out, c)
	}
	return string(out)
}

var _ MemoryService = (*MongoMemory)(nil)
