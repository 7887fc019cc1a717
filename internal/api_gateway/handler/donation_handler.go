package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cryptofund-settlement/internal/api_gateway/service"
	"github.com/cryptofund-settlement/internal/domain/campaign"
	"github.com/cryptofund-settlement/internal/domain/donation"
	"github.com/cryptofund-settlement/internal/gateway"
)

// DonationHandler handles HTTP requests for donation operations
type DonationHandler struct {
	donationService service.DonationService
	logger          *slog.Logger
}

// NewDonationHandler creates a new donation handler
func NewDonationHandler(logger *slog.Logger, donationService service.DonationService) *DonationHandler {
	return &DonationHandler{
		donationService: donationService,
		logger:          logger,
	}
}

// Create handles creation of a new donation. The donor gets back the payment
// address to send funds to; settlement then runs off the gateway webhooks.
func (h *DonationHandler) Create(c *gin.Context) {
	var req CreateDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	campaignID, err := uuid.Parse(req.CampaignID)
	if err != nil {
		RespondBadRequest(c, "Invalid campaign ID")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		RespondBadRequest(c, "Invalid user ID")
		return
	}

	d, err := h.donationService.CreateDonation(c.Request.Context(), campaignID, userID, req.Amount, req.Currency, req.Message, req.Anonymous)
	if err != nil {
		var closedErr campaign.ErrCampaignClosed
		switch {
		case errors.Is(err, donation.ErrInvalidAmount) || errors.Is(err, donation.ErrInvalidCurrency):
			RespondBadRequest(c, err.Error())
		case errors.Is(err, campaign.ErrCampaignNotFound{}):
			RespondNotFound(c, "Campaign not found")
		case errors.As(err, &closedErr):
			RespondConflict(c, "Campaign is not accepting donations")
		case errors.Is(err, gateway.ErrGatewayUnavailable):
			RespondBadGateway(c, "")
		case gateway.IsRejected(err):
			h.logger.Warn("Payment gateway rejected donation", "campaign_id", req.CampaignID, "error", err)
			RespondBadRequest(c, "Payment gateway rejected the donation: "+err.Error())
		default:
			h.logger.Error("Failed to create donation", "campaign_id", req.CampaignID, "error", err)
			RespondInternalError(c)
		}
		return
	}

	RespondAccepted(c, mapDonationToResponse(d))
}

// GetByID retrieves a donation by its ID, returning 404 if not found
func (h *DonationHandler) GetByID(c *gin.Context) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		RespondBadRequest(c, "Invalid donation ID")
		return
	}

	d, err := h.donationService.GetDonationByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, donation.ErrDonationNotFound{}) {
			RespondNotFound(c, "Donation not found")
			return
		}
		h.logger.Error("Failed to get donation", "id", idParam, "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapDonationToResponse(d))
}

// GetByCampaignID retrieves a paginated list of a campaign's donations
func (h *DonationHandler) GetByCampaignID(c *gin.Context) {
	idParam := c.Param("id")
	campaignID, err := uuid.Parse(idParam)
	if err != nil {
		RespondBadRequest(c, "Invalid campaign ID")
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters: "+err.Error())
		return
	}

	donations, total, err := h.donationService.GetDonationsByCampaignID(c.Request.Context(), campaignID, pagination.Page, pagination.PerPage)
	if err != nil {
		h.logger.Error("Failed to list campaign donations", "campaign_id", idParam, "error", err)
		RespondInternalError(c)
		return
	}

	response := DonationListResponse{
		Donations: make([]DonationResponse, 0, len(donations)),
	}
	for _, d := range donations {
		response.Donations = append(response.Donations, mapDonationToResponse(d))
	}

	RespondWithPaginatedData(c, http.StatusOK, response, pagination.Page, pagination.PerPage, int(total))
}

// mapDonationToResponse maps a donation entity to a donation response DTO
func mapDonationToResponse(d *donation.Donation) DonationResponse {
	resp := DonationResponse{
		DonationID:      d.ID.String(),
		CampaignID:      d.CampaignID.String(),
		Amount:          d.Amount.String(),
		Currency:        d.Currency,
		PaymentAddress:  d.PaymentAddress,
		PaymentID:       d.PaymentID,
		TransactionHash: d.TransactionHash,
		Status:          string(d.Status),
		Refunded:        d.Refunded,
		CreatedAt:       d.CreatedAt.Format(time.RFC3339),
	}
	if d.CompletedAt != nil {
		resp.CompletedAt = d.CompletedAt.Format(time.RFC3339)
	}
	return resp
}
