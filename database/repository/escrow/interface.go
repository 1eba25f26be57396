// File: database/repository/escrow/interface.go
package escrowRepo

import (
	"context"

	"tutorbook/database"
	"tutorbook/models"

	"go.mongodb.org/mongo-driver/mongo"
)

// EscrowRepository stores ledger entries and the per-tutor balance they roll
// up into. Balances only change through ApplyDelta, a single guarded
// increment on the server.
type EscrowRepository interface {
	CreateEntry(ctx context.Context, e *models.EscrowEntry) error
	GetEntry(ctx context.Context, id string) (*models.EscrowEntry, error)
	GetEntryByBooking(ctx context.Context, bookingID string) (*models.EscrowEntry, error)
	UpdateEntry(ctx context.Context, e *models.EscrowEntry) error
	ListEntries(ctx context.Context, tutorID string, buckets ...models.Bucket) ([]models.EscrowEntry, error)

	GetBalance(ctx context.Context, tutorID string) (*models.TutorBalance, error)
	ApplyDelta(ctx context.Context, tutorID string, d models.BalanceDelta) (*models.TutorBalance, error)
	ListTutorIDs(ctx context.Context) ([]string, error)
}

type mongoEscrowRepo struct {
	entries  *mongo.Collection
	balances *mongo.Collection
}

// NewMongoEscrowRepo constructs a new MongoDB EscrowRepository.
func NewMongoEscrowRepo() EscrowRepository {
	db := database.DB()
	return &mongoEscrowRepo{
		entries:  db.Collection("escrow_entries"),
		balances: db.Collection("tutor_balances"),
	}
}
