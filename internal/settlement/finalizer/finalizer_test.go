package finalizer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cryptofund-settlement/internal/domain/campaign"
	"github.com/cryptofund-settlement/internal/domain/donation"
	"github.com/cryptofund-settlement/internal/domain/payment"
	"github.com/cryptofund-settlement/internal/domain/payout"
	"github.com/cryptofund-settlement/internal/domain/shared"
	"github.com/cryptofund-settlement/internal/domain/wallet"
	"github.com/cryptofund-settlement/internal/gateway"
)

type MockCampaignRepository struct {
	mock.Mock
}

func (m *MockCampaignRepository) Create(ctx context.Context, c *campaign.Campaign) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCampaignRepository) GetByID(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*campaign.Campaign), args.Error(1)
}

func (m *MockCampaignRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*campaign.Campaign), args.Error(1)
}

func (m *MockCampaignRepository) AddToRaised(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	args := m.Called(ctx, id, amount)
	return args.Error(0)
}

func (m *MockCampaignRepository) Finalize(ctx context.Context, id uuid.UUID, totalRaised decimal.Decimal, now time.Time) (bool, error) {
	args := m.Called(ctx, id, totalRaised, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockCampaignRepository) ListEndedActive(ctx context.Context, now time.Time, limit int) ([]*campaign.Campaign, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*campaign.Campaign), args.Error(1)
}

func (m *MockCampaignRepository) ListUnsettled(ctx context.Context, limit int) ([]*campaign.Campaign, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*campaign.Campaign), args.Error(1)
}

func (m *MockCampaignRepository) WithTx(tx pgx.Tx) campaign.Repository {
	return m
}

type MockDonationRepository struct {
	mock.Mock
}

func (m *MockDonationRepository) Create(ctx context.Context, d *donation.Donation) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockDonationRepository) GetByID(ctx context.Context, id uuid.UUID) (*donation.Donation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*donation.Donation), args.Error(1)
}

func (m *MockDonationRepository) GetByPaymentID(ctx context.Context, paymentID string) (*donation.Donation, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*donation.Donation), args.Error(1)
}

func (m *MockDonationRepository) GetByPaymentAddress(ctx context.Context, address string) (*donation.Donation, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*donation.Donation), args.Error(1)
}

func (m *MockDonationRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*donation.Donation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*donation.Donation), args.Error(1)
}

func (m *MockDonationRepository) MarkCompleted(ctx context.Context, id uuid.UUID, paymentID, txHash string, usdEquivalent decimal.NullDecimal) error {
	args := m.Called(ctx, id, paymentID, txHash, usdEquivalent)
	return args.Error(0)
}

func (m *MockDonationRepository) MarkFailed(ctx context.Context, id uuid.UUID, paymentID string) error {
	args := m.Called(ctx, id, paymentID)
	return args.Error(0)
}

func (m *MockDonationRepository) MarkRefunded(ctx context.Context, id uuid.UUID, withdrawalID string) (bool, error) {
	args := m.Called(ctx, id, withdrawalID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDonationRepository) MarkProcessedByCampaign(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	args := m.Called(ctx, campaignID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDonationRepository) SumCompletedByCampaign(ctx context.Context, campaignID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, campaignID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockDonationRepository) ClaimForRefund(ctx context.Context, campaignID uuid.UUID, now, staleBefore time.Time) ([]*donation.Donation, error) {
	args := m.Called(ctx, campaignID, now, staleBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*donation.Donation), args.Error(1)
}

func (m *MockDonationRepository) GetByCampaignID(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]*donation.Donation, error) {
	args := m.Called(ctx, campaignID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*donation.Donation), args.Error(1)
}

func (m *MockDonationRepository) CountByCampaignID(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	args := m.Called(ctx, campaignID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDonationRepository) WithTx(tx pgx.Tx) donation.Repository {
	return m
}

type MockPayoutRepository struct {
	mock.Mock
}

func (m *MockPayoutRepository) Claim(ctx context.Context, p *payout.CampaignPayout, staleBefore time.Time) (bool, error) {
	args := m.Called(ctx, p, staleBefore)
	return args.Bool(0), args.Error(1)
}

func (m *MockPayoutRepository) MarkAccepted(ctx context.Context, campaignID uuid.UUID, transactionID string, fee decimal.NullDecimal) error {
	args := m.Called(ctx, campaignID, transactionID, fee)
	return args.Error(0)
}

func (m *MockPayoutRepository) GetByCampaignID(ctx context.Context, campaignID uuid.UUID) (*payout.CampaignPayout, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payout.CampaignPayout), args.Error(1)
}

func (m *MockPayoutRepository) WithTx(tx pgx.Tx) payout.Repository {
	return m
}

type MockWalletRepository struct {
	mock.Mock
}

func (m *MockWalletRepository) Create(ctx context.Context, w *wallet.Wallet) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}

func (m *MockWalletRepository) GetByUserAndCurrency(ctx context.Context, userID uuid.UUID, currency string) (*wallet.Wallet, error) {
	args := m.Called(ctx, userID, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Wallet), args.Error(1)
}

type MockPaymentRecordRepository struct {
	mock.Mock
}

func (m *MockPaymentRecordRepository) Create(ctx context.Context, record *payment.Record) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockPaymentRecordRepository) GetByPaymentID(ctx context.Context, paymentID string) (*payment.Record, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Record), args.Error(1)
}

func (m *MockPaymentRecordRepository) AppendEvent(ctx context.Context, paymentID string, event payment.StatusEvent) error {
	args := m.Called(ctx, paymentID, event)
	return args.Error(0)
}

func (m *MockPaymentRecordRepository) HasEvent(ctx context.Context, paymentID, rawStatus string) (bool, error) {
	args := m.Called(ctx, paymentID, rawStatus)
	return args.Bool(0), args.Error(1)
}

type MockGatewayClient struct {
	mock.Mock
}

func (m *MockGatewayClient) CreatePaymentAddress(ctx context.Context, currency string, amount decimal.Decimal, metadata map[string]string) (*gateway.PaymentIntent, error) {
	args := m.Called(ctx, currency, amount, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.PaymentIntent), args.Error(1)
}

func (m *MockGatewayClient) CheckPaymentStatus(ctx context.Context, paymentID string) (*gateway.PaymentStatus, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.PaymentStatus), args.Error(1)
}

func (m *MockGatewayClient) CreateExchange(ctx context.Context, fromCurrency, toCurrency string, amount decimal.Decimal, destinationAddress string) (*gateway.Exchange, error) {
	args := m.Called(ctx, fromCurrency, toCurrency, amount, destinationAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Exchange), args.Error(1)
}

func (m *MockGatewayClient) GetExchangeStatus(ctx context.Context, exchangeID string) (*gateway.ExchangeStatus, error) {
	args := m.Called(ctx, exchangeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.ExchangeStatus), args.Error(1)
}

func (m *MockGatewayClient) CreateWithdrawal(ctx context.Context, currency string, amount decimal.Decimal, destinationAddress string) (*gateway.Withdrawal, error) {
	args := m.Called(ctx, currency, amount, destinationAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Withdrawal), args.Error(1)
}

type fakeTxExecutor struct{}

func (fakeTxExecutor) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type fixtures struct {
	campaignRepo   *MockCampaignRepository
	donationRepo   *MockDonationRepository
	payoutRepo     *MockPayoutRepository
	walletRepo     *MockWalletRepository
	paymentRecords *MockPaymentRecordRepository
	gatewayClient  *MockGatewayClient
	finalizer      *Finalizer
}

func newFixtures() *fixtures {
	f := &fixtures{
		campaignRepo:   &MockCampaignRepository{},
		donationRepo:   &MockDonationRepository{},
		payoutRepo:     &MockPayoutRepository{},
		walletRepo:     &MockWalletRepository{},
		paymentRecords: &MockPaymentRecordRepository{},
		gatewayClient:  &MockGatewayClient{},
	}
	f.finalizer = NewFinalizer(newTestLogger(), fakeTxExecutor{}, f.campaignRepo, f.donationRepo, f.payoutRepo, f.walletRepo, f.paymentRecords, f.gatewayClient)
	return f
}

func endedCampaign() *campaign.Campaign {
	return &campaign.Campaign{
		ID:                         uuid.New(),
		CreatorID:                  uuid.New(),
		GoalAmount:                 decimal.RequireFromString("1000"),
		TargetCurrency:             "usdt",
		RaisedAmount:               decimal.Zero,
		EndDate:                    time.Now().Add(-time.Hour),
		IsActive:                   true,
		CreatorPayoutWalletAddress: "creator-addr",
	}
}

func completedDonation(campaignID uuid.UUID, amount string) *donation.Donation {
	return &donation.Donation{
		ID:             uuid.New(),
		CampaignID:     campaignID,
		UserID:         uuid.New(),
		Amount:         decimal.RequireFromString(amount),
		Currency:       "btc",
		PaymentAddress: "donor-pay-addr",
		PaymentID:      "pay_" + uuid.NewString()[:8],
		Status:         shared.DonationStatusCompleted,
	}
}

func TestFinalizer_RejectsRunningCampaign(t *testing.T) {
	f := newFixtures()
	camp := endedCampaign()
	camp.EndDate = time.Now().Add(time.Hour)

	f.campaignRepo.On("LockForUpdate", mock.Anything, camp.ID).Return(camp, nil).Once()

	_, err := f.finalizer.Finalize(context.Background(), camp.ID)

	var notEnded campaign.ErrCampaignNotEnded
	assert.ErrorAs(t, err, &notEnded)
	f.campaignRepo.AssertNotCalled(t, "Finalize", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFinalizer_AlreadyFinalized(t *testing.T) {
	f := newFixtures()
	camp := endedCampaign()
	camp.IsActive = false

	f.campaignRepo.On("LockForUpdate", mock.Anything, camp.ID).Return(camp, nil).Once()
	f.donationRepo.On("ClaimForRefund", mock.Anything, camp.ID, mock.Anything, mock.Anything).Return([]*donation.Donation{}, nil).Once()

	result, err := f.finalizer.Finalize(context.Background(), camp.ID)

	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyFinalized, result.Outcome)
	f.gatewayClient.AssertNotCalled(t, "CreateWithdrawal", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFinalizer_GoalMetPaysOutCreator(t *testing.T) {
	f := newFixtures()
	camp := endedCampaign()
	total := decimal.RequireFromString("1500")

	f.campaignRepo.On("LockForUpdate", mock.Anything, camp.ID).Return(camp, nil).Once()
	f.donationRepo.On("SumCompletedByCampaign", mock.Anything, camp.ID).Return(total, nil).Once()
	f.campaignRepo.On("Finalize", mock.Anything, camp.ID, total, mock.Anything).Return(true, nil).Once()

	f.payoutRepo.On("Claim", mock.Anything, mock.MatchedBy(func(p *payout.CampaignPayout) bool {
		return p.CampaignID == camp.ID && p.Amount.Equal(total) &&
			p.WalletAddress == "creator-addr" && p.TransactionID == ""
	}), mock.Anything).Return(true, nil).Once()
	f.gatewayClient.On("CreateWithdrawal", mock.Anything, "usdt", total, "creator-addr").
		Return(&gateway.Withdrawal{WithdrawalID: "wd_1", Fee: decimal.RequireFromString("0.1")}, nil).Once()
	f.payoutRepo.On("MarkAccepted", mock.Anything, camp.ID, "wd_1", mock.MatchedBy(func(fee decimal.NullDecimal) bool {
		return fee.Valid && fee.Decimal.Equal(decimal.RequireFromString("0.1"))
	})).Return(nil).Once()
	f.paymentRecords.On("Create", mock.Anything, mock.MatchedBy(func(r *payment.Record) bool {
		return r.PaymentID == "wd_1" && r.Kind == payment.RecordKindPayout
	})).Return(nil).Once()
	f.donationRepo.On("MarkProcessedByCampaign", mock.Anything, camp.ID).Return(int64(1), nil).Once()

	result, err := f.finalizer.Finalize(context.Background(), camp.ID)

	require.NoError(t, err)
	assert.Equal(t, OutcomePayout, result.Outcome)
	assert.Equal(t, "wd_1", result.WithdrawalID)
	assert.True(t, result.GoalMet)
	assert.Equal(t, 1, result.DonationCount)
	f.campaignRepo.AssertExpectations(t)
	f.payoutRepo.AssertExpectations(t)
	f.gatewayClient.AssertExpectations(t)
	f.donationRepo.AssertExpectations(t)
}

func TestFinalizer_ExistingPayoutIsNotRepeated(t *testing.T) {
	f := newFixtures()
	camp := endedCampaign()
	total := decimal.RequireFromString("1500")
	existing := &payout.CampaignPayout{
		CampaignID:    camp.ID,
		Amount:        total,
		Currency:      "usdt",
		WalletAddress: "creator-addr",
		TransactionID: "wd_prev",
		Status:        shared.PayoutStatusCompleted,
	}

	f.campaignRepo.On("LockForUpdate", mock.Anything, camp.ID).Return(camp, nil).Once()
	f.donationRepo.On("SumCompletedByCampaign", mock.Anything, camp.ID).Return(total, nil).Once()
	f.campaignRepo.On("Finalize", mock.Anything, camp.ID, total, mock.Anything).Return(true, nil).Once()

	f.payoutRepo.On("Claim", mock.Anything, mock.Anything, mock.Anything).Return(false, nil).Once()
	f.payoutRepo.On("GetByCampaignID", mock.Anything, camp.ID).Return(existing, nil).Once()
	f.donationRepo.On("MarkProcessedByCampaign", mock.Anything, camp.ID).Return(int64(0), nil).Once()

	result, err := f.finalizer.Finalize(context.Background(), camp.ID)

	require.NoError(t, err)
	assert.Equal(t, OutcomePayout, result.Outcome)
	assert.Equal(t, "wd_prev", result.WithdrawalID)
	f.gatewayClient.AssertNotCalled(t, "CreateWithdrawal", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFinalizer_PayoutClaimHeldElsewhereBacksOff(t *testing.T) {
	f := newFixtures()
	camp := endedCampaign()
	// Another caller deactivated the campaign and holds the payout claim;
	// its withdrawal has not been accepted yet.
	camp.IsActive = false
	camp.RaisedAmount = decimal.RequireFromString("1500")
	pending := &payout.CampaignPayout{
		CampaignID:    camp.ID,
		Amount:        camp.RaisedAmount,
		Currency:      "usdt",
		WalletAddress: "creator-addr",
		Status:        shared.PayoutStatusPending,
		ClaimedAt:     time.Now(),
	}

	f.campaignRepo.On("LockForUpdate", mock.Anything, camp.ID).Return(camp, nil).Once()
	f.payoutRepo.On("Claim", mock.Anything, mock.Anything, mock.Anything).Return(false, nil).Once()
	f.payoutRepo.On("GetByCampaignID", mock.Anything, camp.ID).Return(pending, nil).Once()

	result, err := f.finalizer.Finalize(context.Background(), camp.ID)

	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyFinalized, result.Outcome)
	f.gatewayClient.AssertNotCalled(t, "CreateWithdrawal", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.donationRepo.AssertNotCalled(t, "MarkProcessedByCampaign", mock.Anything, mock.Anything)
}

func TestFinalizer_GoalMetWithoutPayoutDestination(t *testing.T) {
	f := newFixtures()
	camp := endedCampaign()
	camp.CreatorPayoutWalletAddress = ""
	total := decimal.RequireFromString("1500")

	f.campaignRepo.On("LockForUpdate", mock.Anything, camp.ID).Return(camp, nil).Once()
	f.donationRepo.On("SumCompletedByCampaign", mock.Anything, camp.ID).Return(total, nil).Once()
	f.campaignRepo.On("Finalize", mock.Anything, camp.ID, total, mock.Anything).Return(true, nil).Once()
	f.walletRepo.On("GetByUserAndCurrency", mock.Anything, camp.CreatorID, "usdt").Return(nil, nil).Once()

	result, err := f.finalizer.Finalize(context.Background(), camp.ID)

	require.NoError(t, err)
	assert.Equal(t, OutcomePayoutBlocked, result.Outcome)
	f.payoutRepo.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything, mock.Anything)
	f.gatewayClient.AssertNotCalled(t, "CreateWithdrawal", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.donationRepo.AssertNotCalled(t, "MarkProcessedByCampaign", mock.Anything, mock.Anything)
}

func TestFinalizer_GoalMissedRefundsDonors(t *testing.T) {
	f := newFixtures()
	camp := endedCampaign()
	total := decimal.RequireFromString("600")
	d1 := completedDonation(camp.ID, "400")
	d2 := completedDonation(camp.ID, "200")
	donations := []*donation.Donation{d1, d2}

	f.campaignRepo.On("LockForUpdate", mock.Anything, camp.ID).Return(camp, nil).Once()
	f.donationRepo.On("SumCompletedByCampaign", mock.Anything, camp.ID).Return(total, nil).Once()
	f.campaignRepo.On("Finalize", mock.Anything, camp.ID, total, mock.Anything).Return(true, nil).Once()
	f.donationRepo.On("ClaimForRefund", mock.Anything, camp.ID, mock.Anything, mock.Anything).Return(donations, nil).Once()

	// d1's donor registered a wallet, d2 falls back to the payment address
	f.walletRepo.On("GetByUserAndCurrency", mock.Anything, d1.UserID, "btc").
		Return(&wallet.Wallet{Address: "donor1-wallet"}, nil).Once()
	f.walletRepo.On("GetByUserAndCurrency", mock.Anything, d2.UserID, "btc").Return(nil, nil).Once()

	f.gatewayClient.On("CreateWithdrawal", mock.Anything, "btc", d1.Amount, "donor1-wallet").
		Return(&gateway.Withdrawal{WithdrawalID: "wd_r1"}, nil).Once()
	f.gatewayClient.On("CreateWithdrawal", mock.Anything, "btc", d2.Amount, "donor-pay-addr").
		Return(&gateway.Withdrawal{WithdrawalID: "wd_r2"}, nil).Once()

	f.donationRepo.On("MarkRefunded", mock.Anything, d1.ID, "wd_r1").Return(true, nil).Once()
	f.donationRepo.On("MarkRefunded", mock.Anything, d2.ID, "wd_r2").Return(true, nil).Once()

	f.paymentRecords.On("Create", mock.Anything, mock.MatchedBy(func(r *payment.Record) bool {
		return r.Kind == payment.RecordKindRefund
	})).Return(nil).Twice()

	result, err := f.finalizer.Finalize(context.Background(), camp.ID)

	require.NoError(t, err)
	assert.Equal(t, OutcomeRefunds, result.Outcome)
	assert.Equal(t, 2, result.Refunded)
	assert.Equal(t, 0, result.RefundFailures)
	assert.False(t, result.GoalMet)
	f.gatewayClient.AssertExpectations(t)
	f.donationRepo.AssertExpectations(t)
}

func TestFinalizer_RefundFailureDoesNotBlockOthers(t *testing.T) {
	f := newFixtures()
	camp := endedCampaign()
	total := decimal.RequireFromString("600")
	d1 := completedDonation(camp.ID, "400")
	d2 := completedDonation(camp.ID, "200")
	donations := []*donation.Donation{d1, d2}

	f.campaignRepo.On("LockForUpdate", mock.Anything, camp.ID).Return(camp, nil).Once()
	f.donationRepo.On("SumCompletedByCampaign", mock.Anything, camp.ID).Return(total, nil).Once()
	f.campaignRepo.On("Finalize", mock.Anything, camp.ID, total, mock.Anything).Return(true, nil).Once()
	f.donationRepo.On("ClaimForRefund", mock.Anything, camp.ID, mock.Anything, mock.Anything).Return(donations, nil).Once()

	f.walletRepo.On("GetByUserAndCurrency", mock.Anything, mock.Anything, "btc").Return(nil, nil).Twice()

	f.gatewayClient.On("CreateWithdrawal", mock.Anything, "btc", d1.Amount, "donor-pay-addr").
		Return(nil, errors.New("provider timeout")).Once()
	f.gatewayClient.On("CreateWithdrawal", mock.Anything, "btc", d2.Amount, "donor-pay-addr").
		Return(&gateway.Withdrawal{WithdrawalID: "wd_r2"}, nil).Once()
	f.donationRepo.On("MarkRefunded", mock.Anything, d2.ID, "wd_r2").Return(true, nil).Once()
	f.paymentRecords.On("Create", mock.Anything, mock.Anything).Return(nil).Once()

	result, err := f.finalizer.Finalize(context.Background(), camp.ID)

	require.NoError(t, err)
	assert.Equal(t, OutcomeRefunds, result.Outcome)
	assert.Equal(t, 1, result.Refunded)
	assert.Equal(t, 1, result.RefundFailures)
	f.donationRepo.AssertNotCalled(t, "MarkRefunded", mock.Anything, d1.ID, mock.Anything)
}

func TestFinalizer_ResumesInterruptedSettlement(t *testing.T) {
	f := newFixtures()
	camp := endedCampaign()
	// A previous pass deactivated the campaign and snapshotted the total,
	// then crashed before refunding.
	camp.IsActive = false
	camp.RaisedAmount = decimal.RequireFromString("600")
	d1 := completedDonation(camp.ID, "600")

	f.campaignRepo.On("LockForUpdate", mock.Anything, camp.ID).Return(camp, nil).Once()
	f.donationRepo.On("ClaimForRefund", mock.Anything, camp.ID, mock.Anything, mock.Anything).Return([]*donation.Donation{d1}, nil).Once()

	f.walletRepo.On("GetByUserAndCurrency", mock.Anything, d1.UserID, "btc").Return(nil, nil).Once()
	f.gatewayClient.On("CreateWithdrawal", mock.Anything, "btc", d1.Amount, "donor-pay-addr").
		Return(&gateway.Withdrawal{WithdrawalID: "wd_r1"}, nil).Once()
	f.donationRepo.On("MarkRefunded", mock.Anything, d1.ID, "wd_r1").Return(true, nil).Once()
	f.paymentRecords.On("Create", mock.Anything, mock.Anything).Return(nil).Once()

	result, err := f.finalizer.Finalize(context.Background(), camp.ID)

	require.NoError(t, err)
	assert.Equal(t, OutcomeRefunds, result.Outcome)
	assert.Equal(t, 1, result.Refunded)
	f.donationRepo.AssertNotCalled(t, "SumCompletedByCampaign", mock.Anything, mock.Anything)
	f.campaignRepo.AssertNotCalled(t, "Finalize", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFinalizer_RefundsOnlyClaimedDonations(t *testing.T) {
	f := newFixtures()
	camp := endedCampaign()
	camp.IsActive = false
	camp.RaisedAmount = decimal.RequireFromString("600")
	d1 := completedDonation(camp.ID, "400")
	// A concurrent pass already claimed the campaign's second donation, so
	// only d1 is handed out here.

	f.campaignRepo.On("LockForUpdate", mock.Anything, camp.ID).Return(camp, nil).Once()
	f.donationRepo.On("ClaimForRefund", mock.Anything, camp.ID, mock.Anything, mock.Anything).Return([]*donation.Donation{d1}, nil).Once()

	f.walletRepo.On("GetByUserAndCurrency", mock.Anything, d1.UserID, "btc").Return(nil, nil).Once()
	f.gatewayClient.On("CreateWithdrawal", mock.Anything, "btc", d1.Amount, "donor-pay-addr").
		Return(&gateway.Withdrawal{WithdrawalID: "wd_r1"}, nil).Once()
	f.donationRepo.On("MarkRefunded", mock.Anything, d1.ID, "wd_r1").Return(true, nil).Once()
	f.paymentRecords.On("Create", mock.Anything, mock.Anything).Return(nil).Once()

	result, err := f.finalizer.Finalize(context.Background(), camp.ID)

	require.NoError(t, err)
	assert.Equal(t, OutcomeRefunds, result.Outcome)
	assert.Equal(t, 1, result.Refunded)
	assert.Equal(t, 1, result.DonationCount)
	f.gatewayClient.AssertNumberOfCalls(t, "CreateWithdrawal", 1)
}

func TestFinalizer_SecondRefundPassFindsNothingClaimed(t *testing.T) {
	f := newFixtures()
	camp := endedCampaign()
	camp.IsActive = false
	camp.RaisedAmount = decimal.RequireFromString("600")

	// The pass that deactivated the campaign holds live claims on every
	// completed donation, so this caller gets none of them.
	f.campaignRepo.On("LockForUpdate", mock.Anything, camp.ID).Return(camp, nil).Once()
	f.donationRepo.On("ClaimForRefund", mock.Anything, camp.ID, mock.Anything, mock.Anything).Return([]*donation.Donation{}, nil).Once()

	result, err := f.finalizer.Finalize(context.Background(), camp.ID)

	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyFinalized, result.Outcome)
	assert.Equal(t, 0, result.DonationCount)
	f.gatewayClient.AssertNotCalled(t, "CreateWithdrawal", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.donationRepo.AssertNotCalled(t, "MarkRefunded", mock.Anything, mock.Anything, mock.Anything)
}
