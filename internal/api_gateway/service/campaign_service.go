package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cryptofund-settlement/internal/domain/campaign"
	"github.com/cryptofund-settlement/internal/domain/wallet"
	"github.com/cryptofund-settlement/internal/settlement/finalizer"
)

// CampaignSettler settles one ended campaign
type CampaignSettler interface {
	Finalize(ctx context.Context, campaignID uuid.UUID) (*finalizer.Result, error)
}

// CampaignServiceImpl implements the CampaignService interface
type CampaignServiceImpl struct {
	campaignRepo campaign.Repository
	settler      CampaignSettler
	logger       *slog.Logger
}

// NewCampaignService creates a new campaign service
func NewCampaignService(logger *slog.Logger, campaignRepo campaign.Repository, settler CampaignSettler) CampaignService {
	return &CampaignServiceImpl{
		campaignRepo: campaignRepo,
		settler:      settler,
		logger:       logger,
	}
}

// CreateCampaign creates a new active campaign
func (s *CampaignServiceImpl) CreateCampaign(ctx context.Context, creatorID uuid.UUID, goal decimal.Decimal, targetCurrency string, endDate time.Time, payoutAddress string) (*campaign.Campaign, error) {
	camp, err := campaign.NewCampaign(creatorID, goal, targetCurrency, endDate, payoutAddress)
	if err != nil {
		return nil, err
	}

	if err := s.campaignRepo.Create(ctx, camp); err != nil {
		return nil, err
	}

	s.logger.Info("Campaign created",
		"campaign_id", camp.ID.String(),
		"creator_id", creatorID.String(),
		"goal", goal.String(),
		"target_currency", targetCurrency,
	)
	return camp, nil
}

// GetCampaignByID retrieves a campaign by its ID
func (s *CampaignServiceImpl) GetCampaignByID(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	return s.campaignRepo.GetByID(ctx, id)
}

// FinalizeCampaign settles an ended campaign
func (s *CampaignServiceImpl) FinalizeCampaign(ctx context.Context, id uuid.UUID) (*finalizer.Result, error) {
	return s.settler.Finalize(ctx, id)
}

// WalletServiceImpl implements the WalletService interface
type WalletServiceImpl struct {
	walletRepo wallet.Repository
	logger     *slog.Logger
}

// NewWalletService creates a new wallet service
func NewWalletService(logger *slog.Logger, walletRepo wallet.Repository) WalletService {
	return &WalletServiceImpl{
		walletRepo: walletRepo,
		logger:     logger,
	}
}

// RegisterWallet records a user's receiving address for one currency
func (s *WalletServiceImpl) RegisterWallet(ctx context.Context, userID uuid.UUID, currency, address string) (*wallet.Wallet, error) {
	w := &wallet.Wallet{
		ID:        uuid.New(),
		UserID:    userID,
		Currency:  currency,
		Address:   address,
		CreatedAt: time.Now(),
	}

	if err := s.walletRepo.Create(ctx, w); err != nil {
		return nil, err
	}

	s.logger.Info("Wallet registered",
		"user_id", userID.String(),
		"currency", currency,
	)
	return w, nil
}
