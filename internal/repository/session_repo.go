package repository

import (
	"context"
	"errors"
	"fmt"

	"crimepatrol/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const sessionsCollection = "emergency_pings"

var (
	ErrNotFound         = errors.New("session not found")
	ErrSessionResolved  = errors.New("session already resolved")
	ErrStalePing        = errors.New("ping older than stored lastPing")
	ErrAlreadyResponded = errors.New("session already has a responder")
)

// SessionRepo is the document store for emergency sessions
type SessionRepo interface {
	Create(ctx context.Context, session *model.EmergencySession) error
	GetByID(ctx context.Context, id string) (*model.EmergencySession, error)
	// UpdateByID applies patch and returns the merged document. Resolved sessions are
	// never modified, a LastPing earlier than the stored one is rejected, and a responder
	// is only recorded once.
	UpdateByID(ctx context.Context, id string, patch model.SessionPatch) (*model.EmergencySession, error)
	Query(ctx context.Context, q model.SessionQuery) ([]*model.EmergencySession, error)
	EnsureIndexes(ctx context.Context) error
}

type sessionRepo struct {
	collection *mongo.Collection
}

// NewSessionRepo creates a session repository on db
func NewSessionRepo(db *mongo.Database) SessionRepo {
	return newSessionRepo(db.Collection(sessionsCollection))
}

func newSessionRepo(coll *mongo.Collection) *sessionRepo {
	return &sessionRepo{collection: coll}
}

func (r *sessionRepo) Create(ctx context.Context, session *model.EmergencySession) error {
	_, err := r.collection.InsertOne(ctx, session)
	return err
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*model.EmergencySession, error) {
	var session model.EmergencySession
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) UpdateByID(ctx context.Context, id string, patch model.SessionPatch) (*model.EmergencySession, error) {
	set := setFields(patch)
	if len(set) == 0 {
		return r.GetByID(ctx, id)
	}

	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$ne": model.SessionResolved},
	}
	var and []bson.M
	if patch.LastPing != nil {
		and = append(and, bson.M{"$or": []bson.M{
			{"lastPing": bson.M{"$exists": false}},
			{"lastPing": bson.M{"$lte": *patch.LastPing}},
		}})
	}
	if patch.RespondedBy != nil {
		and = append(and, bson.M{"$or": []bson.M{
			{"respondedBy": bson.M{"$exists": false}},
			{"respondedBy": ""},
		}})
	}
	if len(and) > 0 {
		filter["$and"] = and
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated model.EmergencySession
	err := r.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, err
	}

	// No document matched the guarded filter; find out which guard rejected it
	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	switch {
	case current.Status == model.SessionResolved:
		return nil, ErrSessionResolved
	case patch.RespondedBy != nil && current.RespondedBy != "":
		return nil, ErrAlreadyResponded
	case patch.LastPing != nil && current.LastPing.After(*patch.LastPing):
		return nil, ErrStalePing
	}
	return nil, fmt.Errorf("update session %s: no document matched", id)
}

func (r *sessionRepo) Query(ctx context.Context, q model.SessionQuery) ([]*model.EmergencySession, error) {
	filter := bson.M{}
	if q.Status != "" {
		filter["status"] = q.Status
	}
	if q.Since != nil {
		filter["timestamp"] = bson.M{"$gt": *q.Since}
	}
	if q.Box != nil {
		filter["latitude"] = bson.M{"$gte": q.Box.MinLat, "$lte": q.Box.MaxLat}
		filter["longitude"] = bson.M{"$gte": q.Box.MinLng, "$lte": q.Box.MaxLng}
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	sessions := []*model.EmergencySession{}
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// EnsureIndexes provisions the secondary indexes used by Query
func (r *sessionRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}, Options: options.Index().SetName("status_index")},
		{Keys: bson.D{{Key: "timestamp", Value: -1}}, Options: options.Index().SetName("timestamp_index")},
		{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetName("userId_index")},
	})
	return err
}

func setFields(p model.SessionPatch) bson.M {
	set := bson.M{}
	if p.LastLatitude != nil {
		set["lastLatitude"] = *p.LastLatitude
	}
	if p.LastLongitude != nil {
		set["lastLongitude"] = *p.LastLongitude
	}
	if p.LastPing != nil {
		set["lastPing"] = *p.LastPing
	}
	if p.Status != nil {
		set["status"] = *p.Status
	}
	if p.RespondedBy != nil {
		set["respondedBy"] = *p.RespondedBy
	}
	if p.RespondedAt != nil {
		set["respondedAt"] = *p.RespondedAt
	}
	if p.ResolvedBy != nil {
		set["resolvedBy"] = *p.ResolvedBy
	}
	if p.ResolvedAt != nil {
		set["resolvedAt"] = *p.ResolvedAt
	}
	return set
}
