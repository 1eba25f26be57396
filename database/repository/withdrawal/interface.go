// File: database/repository/withdrawal/interface.go
package withdrawalRepo

import (
	"context"

	"tutorbook/database"
	"tutorbook/models"

	"go.mongodb.org/mongo-driver/mongo"
)

type WithdrawalRepository interface {
	Create(ctx context.Context, w *models.WithdrawalRequest) error
	GetByID(ctx context.Context, id string) (*models.WithdrawalRequest, error)
	Update(ctx context.Context, w *models.WithdrawalRequest) error
	ListByTutor(ctx context.Context, tutorID string) ([]models.WithdrawalRequest, error)
	ListByStatus(ctx context.Context, status models.WithdrawalStatus) ([]models.WithdrawalRequest, error)
}

type mongoWithdrawalRepo struct {
	coll *mongo.Collection
}

// NewMongoWithdrawalRepo constructs a new MongoDB WithdrawalRepository.
func NewMongoWithdrawalRepo() WithdrawalRepository {
	return &mongoWithdrawalRepo{coll: database.DB().Collection("withdrawals")}
}
