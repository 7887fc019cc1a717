package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptofund-settlement/internal/domain/donation"
	"github.com/cryptofund-settlement/internal/domain/shared"
)

var donationTestColumns = []string{"id", "campaign_id", "user_id", "amount", "currency", "message", "anonymous", "payment_address", "payment_id", "transaction_hash", "status", "refunded", "refund_tx_id", "usd_equivalent", "created_at", "completed_at", "updated_at"}

func testDonation() *donation.Donation {
	now := time.Now()
	return &donation.Donation{
		ID:             uuid.New(),
		CampaignID:     uuid.New(),
		UserID:         uuid.New(),
		Amount:         decimal.RequireFromString("0.5"),
		Currency:       "btc",
		Anonymous:      false,
		PaymentAddress: "bc1qexample",
		PaymentID:      "pay_123",
		Status:         shared.DonationStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func donationRow(d *donation.Donation) *pgxmock.Rows {
	return pgxmock.NewRows(donationTestColumns).
		AddRow(d.ID, d.CampaignID, d.UserID, d.Amount, d.Currency, d.Message, d.Anonymous, d.PaymentAddress, d.PaymentID, d.TransactionHash, d.Status, d.Refunded, d.RefundTxID, d.USDEquivalent, d.CreatedAt, d.CompletedAt, d.UpdatedAt)
}

func TestDonationRepository_GetByPaymentID(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &DonationRepository{querier: mock, logger: newTestLogger()}
	expected := testDonation()

	query := `SELECT (.+) FROM donations WHERE payment_id = \$1`

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(expected.PaymentID).WillReturnRows(donationRow(expected))

		d, err := repo.GetByPaymentID(ctx, expected.PaymentID)
		assert.NoError(t, err)
		assert.Equal(t, expected, d)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(expected.PaymentID).WillReturnError(pgx.ErrNoRows)

		d, err := repo.GetByPaymentID(ctx, expected.PaymentID)
		assert.NoError(t, err) // No error, just nil donation
		assert.Nil(t, d)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		dbErr := errors.New("some db error")
		mock.ExpectQuery(query).WithArgs(expected.PaymentID).WillReturnError(dbErr)

		d, err := repo.GetByPaymentID(ctx, expected.PaymentID)
		assert.Error(t, err)
		assert.Nil(t, d)
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDonationRepository_MarkCompleted(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &DonationRepository{querier: mock, logger: newTestLogger()}
	donationID := uuid.New()
	usd := decimal.NewNullDecimal(decimal.RequireFromString("31250"))

	query := `UPDATE donations SET status = \$1, payment_id = \$2, transaction_hash = \$3, usd_equivalent = \$4, completed_at = NOW\(\), updated_at = NOW\(\) WHERE id = \$5 AND status = \$6`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(shared.DonationStatusCompleted, "pay_123", "0xabc", usd, donationID, shared.DonationStatusPending).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := repo.MarkCompleted(ctx, donationID, "pay_123", "0xabc", usd)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already settled", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(shared.DonationStatusCompleted, "pay_123", "0xabc", usd, donationID, shared.DonationStatusPending).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.MarkCompleted(ctx, donationID, "pay_123", "0xabc", usd)
		assert.Error(t, err)
		var transitionErr donation.ErrInvalidTransition
		assert.ErrorAs(t, err, &transitionErr)
		assert.Equal(t, donationID, transitionErr.DonationID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDonationRepository_MarkRefunded(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &DonationRepository{querier: mock, logger: newTestLogger()}
	donationID := uuid.New()

	query := `UPDATE donations SET status = \$1, refunded = TRUE, refund_tx_id = \$2, updated_at = NOW\(\) WHERE id = \$3 AND status = \$4 AND refunded = FALSE`

	t.Run("refunds completed donation", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(shared.DonationStatusRefunded, "wd_77", donationID, shared.DonationStatusCompleted).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		refunded, err := repo.MarkRefunded(ctx, donationID, "wd_77")
		assert.NoError(t, err)
		assert.True(t, refunded)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already refunded is skipped", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(shared.DonationStatusRefunded, "wd_77", donationID, shared.DonationStatusCompleted).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		refunded, err := repo.MarkRefunded(ctx, donationID, "wd_77")
		assert.NoError(t, err)
		assert.False(t, refunded)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDonationRepository_MarkProcessedByCampaign(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &DonationRepository{querier: mock, logger: newTestLogger()}
	campaignID := uuid.New()

	query := `UPDATE donations SET status = \$1, updated_at = NOW\(\) WHERE campaign_id = \$2 AND status = \$3`

	mock.ExpectExec(query).
		WithArgs(shared.DonationStatusProcessed, campaignID, shared.DonationStatusCompleted).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	moved, err := repo.MarkProcessedByCampaign(ctx, campaignID)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonationRepository_SumCompletedByCampaign(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &DonationRepository{querier: mock, logger: newTestLogger()}
	campaignID := uuid.New()

	query := `SELECT COALESCE\(SUM\(amount\), 0\) FROM donations WHERE campaign_id = \$1 AND status = \$2`

	t.Run("success", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{"coalesce"}).AddRow(decimal.RequireFromString("123.45"))
		mock.ExpectQuery(query).WithArgs(campaignID, shared.DonationStatusCompleted).WillReturnRows(rows)

		total, err := repo.SumCompletedByCampaign(ctx, campaignID)
		assert.NoError(t, err)
		assert.True(t, total.Equal(decimal.RequireFromString("123.45")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		dbErr := errors.New("sum db error")
		mock.ExpectQuery(query).WithArgs(campaignID, shared.DonationStatusCompleted).WillReturnError(dbErr)

		_, err := repo.SumCompletedByCampaign(ctx, campaignID)
		assert.Error(t, err)
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDonationRepository_GetByCampaignID(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &DonationRepository{querier: mock, logger: newTestLogger()}
	d := testDonation()

	query := `SELECT (.+) FROM donations WHERE campaign_id = \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`

	mock.ExpectQuery(query).WithArgs(d.CampaignID, 20, 0).WillReturnRows(donationRow(d))

	donations, err := repo.GetByCampaignID(ctx, d.CampaignID, 20, 0)
	assert.NoError(t, err)
	require.Len(t, donations, 1)
	assert.Equal(t, d.ID, donations[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonationRepository_ClaimForRefund(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &DonationRepository{querier: mock, logger: newTestLogger()}
	d := testDonation()
	d.Status = shared.DonationStatusCompleted
	now := time.Now()
	staleBefore := now.Add(-10 * time.Minute)

	query := `UPDATE donations SET refund_claimed_at = \$2, updated_at = NOW\(\) WHERE campaign_id = \$1 AND status = \$3 AND refunded = FALSE AND \(refund_claimed_at IS NULL OR refund_claimed_at < \$4\) RETURNING (.+)`

	t.Run("claims unclaimed donations", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(d.CampaignID, now, shared.DonationStatusCompleted, staleBefore).
			WillReturnRows(donationRow(d))

		claimed, err := repo.ClaimForRefund(ctx, d.CampaignID, now, staleBefore)
		assert.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, d.ID, claimed[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns nothing when another pass holds the claims", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(d.CampaignID, now, shared.DonationStatusCompleted, staleBefore).
			WillReturnRows(pgxmock.NewRows(donationTestColumns))

		claimed, err := repo.ClaimForRefund(ctx, d.CampaignID, now, staleBefore)
		assert.NoError(t, err)
		assert.Empty(t, claimed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		dbErr := errors.New("claim db error")
		mock.ExpectQuery(query).
			WithArgs(d.CampaignID, now, shared.DonationStatusCompleted, staleBefore).
			WillReturnError(dbErr)

		_, err := repo.ClaimForRefund(ctx, d.CampaignID, now, staleBefore)
		assert.Error(t, err)
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
