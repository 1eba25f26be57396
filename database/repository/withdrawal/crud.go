// File: database/repository/withdrawal/crud.go
package withdrawalRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tutorbook/models"
	"tutorbook/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (r *mongoWithdrawalRepo) Create(ctx context.Context, w *models.WithdrawalRequest) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, w); err != nil {
		return fmt.Errorf("insert withdrawal failed: %w", err)
	}
	return nil
}

func (r *mongoWithdrawalRepo) GetByID(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var w models.WithdrawalRequest
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&w); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &utils.NotFoundError{Resource: "withdrawal", ID: id}
		}
		return nil, fmt.Errorf("find withdrawal failed: %w", err)
	}
	return &w, nil
}

func (r *mongoWithdrawalRepo) Update(ctx context.Context, w *models.WithdrawalRequest) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	expected := w.Version
	w.Version++
	res, err := r.coll.ReplaceOne(ctx, bson.M{"id": w.ID, "version": expected}, w)
	if err != nil {
		w.Version = expected
		return fmt.Errorf("update withdrawal failed: %w", err)
	}
	if res.MatchedCount == 0 {
		w.Version = expected
		return &utils.ConcurrencyConflictError{Resource: "withdrawal " + w.ID}
	}
	return nil
}

func (r *mongoWithdrawalRepo) list(ctx context.Context, filter bson.M) ([]models.WithdrawalRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "requestedAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch withdrawals: %w", err)
	}
	defer cur.Close(ctx)

	var out []models.WithdrawalRequest
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding withdrawals: %w", err)
	}
	return out, nil
}

func (r *mongoWithdrawalRepo) ListByTutor(ctx context.Context, tutorID string) ([]models.WithdrawalRequest, error) {
	return r.list(ctx, bson.M{"tutorId": tutorID})
}

func (r *mongoWithdrawalRepo) ListByStatus(ctx context.Context, status models.WithdrawalStatus) ([]models.WithdrawalRequest, error) {
	return r.list(ctx, bson.M{"status": status})
}

func EnsureIndexes(repo WithdrawalRepository) error {
	m, ok := repo.(*mongoWithdrawalRepo)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := m.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true).SetName("unique_id")},
		{Keys: bson.D{{Key: "tutorId", Value: 1}, {Key: "requestedAt", Value: -1}}, Options: options.Index().SetName("tutor_requested_idx")},
		{Keys: bson.D{{Key: "status", Value: 1}}, Options: options.Index().SetName("status_idx")},
	})
	if err != nil {
		return fmt.Errorf("failed to create withdrawal indexes: %w", err)
	}
	return nil
}
