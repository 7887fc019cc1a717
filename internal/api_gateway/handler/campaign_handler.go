package handler

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cryptofund-settlement/internal/api_gateway/service"
	"github.com/cryptofund-settlement/internal/domain/campaign"
	"github.com/cryptofund-settlement/internal/gateway"
	"github.com/cryptofund-settlement/internal/settlement/finalizer"
)

// CampaignHandler handles HTTP requests for campaign operations
type CampaignHandler struct {
	campaignService service.CampaignService
	logger          *slog.Logger
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(logger *slog.Logger, campaignService service.CampaignService) *CampaignHandler {
	return &CampaignHandler{
		campaignService: campaignService,
		logger:          logger,
	}
}

// Create handles creation of a new campaign
func (h *CampaignHandler) Create(c *gin.Context) {
	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	creatorID, err := uuid.Parse(req.CreatorID)
	if err != nil {
		RespondBadRequest(c, "Invalid creator ID")
		return
	}
	endDate, err := time.Parse(time.RFC3339, req.EndDate)
	if err != nil {
		RespondBadRequest(c, "Invalid end date, expected RFC3339")
		return
	}

	camp, err := h.campaignService.CreateCampaign(c.Request.Context(), creatorID, req.GoalAmount, req.TargetCurrency, endDate, req.PayoutAddress)
	if err != nil {
		if errors.Is(err, campaign.ErrInvalidGoal) || errors.Is(err, campaign.ErrInvalidCurrencyFormat) || errors.Is(err, campaign.ErrEndDateInPast) {
			RespondBadRequest(c, err.Error())
			return
		}
		h.logger.Error("Failed to create campaign", "error", err)
		RespondInternalError(c)
		return
	}

	RespondCreated(c, mapCampaignToResponse(camp))
}

// GetByID retrieves a campaign by its ID, returning 404 if not found
func (h *CampaignHandler) GetByID(c *gin.Context) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		RespondBadRequest(c, "Invalid campaign ID")
		return
	}

	camp, err := h.campaignService.GetCampaignByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, campaign.ErrCampaignNotFound{}) {
			RespondNotFound(c, "Campaign not found")
			return
		}
		h.logger.Error("Failed to get campaign", "id", idParam, "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapCampaignToResponse(camp))
}

// Finalize settles an ended campaign. Calling it again after settlement is a
// no-op that reports outcome "already_finalized".
func (h *CampaignHandler) Finalize(c *gin.Context) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		RespondBadRequest(c, "Invalid campaign ID")
		return
	}

	result, err := h.campaignService.FinalizeCampaign(c.Request.Context(), id)
	if err != nil {
		var notEndedErr campaign.ErrCampaignNotEnded
		switch {
		case errors.Is(err, campaign.ErrCampaignNotFound{}):
			RespondNotFound(c, "Campaign not found")
		case errors.As(err, &notEndedErr):
			RespondConflict(c, "Campaign has not ended yet")
		case errors.Is(err, gateway.ErrGatewayUnavailable):
			RespondBadGateway(c, "")
		default:
			h.logger.Error("Failed to finalize campaign", "id", idParam, "error", err)
			RespondInternalError(c)
		}
		return
	}

	RespondOK(c, mapFinalizeResult(result))
}

// mapCampaignToResponse maps a campaign entity to a campaign response DTO
func mapCampaignToResponse(camp *campaign.Campaign) CampaignResponse {
	return CampaignResponse{
		ID:             camp.ID.String(),
		CreatorID:      camp.CreatorID.String(),
		GoalAmount:     camp.GoalAmount.String(),
		TargetCurrency: camp.TargetCurrency,
		RaisedAmount:   camp.RaisedAmount.String(),
		EndDate:        camp.EndDate.Format(time.RFC3339),
		IsActive:       camp.IsActive,
		CreatedAt:      camp.CreatedAt.Format(time.RFC3339),
	}
}

// mapFinalizeResult maps a finalization result to a response DTO
func mapFinalizeResult(result *finalizer.Result) FinalizeResponse {
	return FinalizeResponse{
		CampaignID:     result.CampaignID.String(),
		Outcome:        string(result.Outcome),
		TotalRaised:    result.TotalRaised.String(),
		GoalMet:        result.GoalMet,
		DonationCount:  result.DonationCount,
		Refunded:       result.Refunded,
		RefundFailures: result.RefundFailures,
		WithdrawalID:   result.WithdrawalID,
	}
}

// WalletHandler handles HTTP requests for the wallet directory
type WalletHandler struct {
	walletService service.WalletService
	logger        *slog.Logger
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(logger *slog.Logger, walletService service.WalletService) *WalletHandler {
	return &WalletHandler{
		walletService: walletService,
		logger:        logger,
	}
}

// Register records a user's receiving address for one currency
func (h *WalletHandler) Register(c *gin.Context) {
	var req RegisterWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		RespondBadRequest(c, "Invalid user ID")
		return
	}

	w, err := h.walletService.RegisterWallet(c.Request.Context(), userID, req.Currency, req.Address)
	if err != nil {
		h.logger.Error("Failed to register wallet", "user_id", req.UserID, "error", err)
		RespondInternalError(c)
		return
	}

	RespondCreated(c, WalletResponse{
		ID:       w.ID.String(),
		UserID:   w.UserID.String(),
		Currency: w.Currency,
		Address:  w.Address,
	})
}
