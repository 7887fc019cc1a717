package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/cryptofund-settlement/internal/domain/payment"
)

const (
	// PaymentRecordCollectionName is the name of the payment audit collection in MongoDB
	PaymentRecordCollectionName = "payment_records"
)

// PaymentRecordRepository implements the payment.Repository interface for MongoDB
type PaymentRecordRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewPaymentRecordRepository creates a new MongoDB payment record repository
func NewPaymentRecordRepository(logger *slog.Logger, db *mongo.Database) payment.Repository {
	return &PaymentRecordRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a new payment record after checking for duplicates.
// Returns ErrDuplicateRecord if a record with the same payment ID exists.
func (r *PaymentRecordRepository) Create(ctx context.Context, record *payment.Record) error {
	collection := r.db.Collection(PaymentRecordCollectionName)

	existing, err := r.GetByPaymentID(ctx, record.PaymentID)
	if err != nil {
		r.logger.Error("Failed to check for existing payment record",
			"payment_id", record.PaymentID,
			"error", err)
		return fmt.Errorf("failed to check for existing payment record: %w", err)
	}

	if existing != nil {
		return payment.ErrDuplicateRecord{PaymentID: record.PaymentID}
	}

	_, err = collection.InsertOne(ctx, record)
	if err != nil {
		r.logger.Error("Failed to create payment record",
			"payment_id", record.PaymentID,
			"error", err)
		return fmt.Errorf("failed to create payment record: %w", err)
	}

	return nil
}

// GetByPaymentID retrieves a payment record by the gateway's payment ID.
// Returns nil if no record exists for the given payment.
func (r *PaymentRecordRepository) GetByPaymentID(ctx context.Context, paymentID string) (*payment.Record, error) {
	collection := r.db.Collection(PaymentRecordCollectionName)

	filter := bson.M{"payment_id": paymentID}
	var record payment.Record
	err := collection.FindOne(ctx, filter).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil // No record yet for this payment
		}
		r.logger.Error("Failed to get payment record",
			"payment_id", paymentID,
			"error", err)
		return nil, fmt.Errorf("failed to get payment record: %w", err)
	}

	return &record, nil
}

// AppendEvent appends a status event to the record and advances the current
// status. The event is pushed unconditionally; deduplication is the caller's
// concern via HasEvent.
func (r *PaymentRecordRepository) AppendEvent(ctx context.Context, paymentID string, event payment.StatusEvent) error {
	collection := r.db.Collection(PaymentRecordCollectionName)

	filter := bson.M{"payment_id": paymentID}
	set := bson.M{
		"status":     event.RawStatus,
		"updated_at": time.Now(),
	}
	if event.TxHash != "" {
		set["transaction_hash"] = event.TxHash
	}
	update := bson.M{
		"$push": bson.M{"events": event},
		"$set":  set,
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		r.logger.Error("Failed to append payment event",
			"payment_id", paymentID,
			"raw_status", event.RawStatus,
			"error", err)
		return fmt.Errorf("failed to append payment event: %w", err)
	}

	if result.MatchedCount == 0 {
		return fmt.Errorf("payment record not found: %s", paymentID)
	}

	return nil
}

// HasEvent reports whether the (payment ID, raw status) pair was already
// recorded. A missing record counts as unseen.
func (r *PaymentRecordRepository) HasEvent(ctx context.Context, paymentID, rawStatus string) (bool, error) {
	collection := r.db.Collection(PaymentRecordCollectionName)

	filter := bson.M{
		"payment_id":        paymentID,
		"events.raw_status": rawStatus,
	}
	count, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		r.logger.Error("Failed to check payment event",
			"payment_id", paymentID,
			"raw_status", rawStatus,
			"error", err)
		return false, fmt.Errorf("failed to check payment event: %w", err)
	}

	return count > 0, nil
}
