package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/cryptofund-settlement/internal/domain/conversion"
	"github.com/cryptofund-settlement/internal/domain/shared"
	"github.com/cryptofund-settlement/internal/gateway"
)

type MockConversionRepository struct {
	mock.Mock
}

func (m *MockConversionRepository) Create(ctx context.Context, c *conversion.Conversion) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockConversionRepository) GetByID(ctx context.Context, id uuid.UUID) (*conversion.Conversion, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversion.Conversion), args.Error(1)
}

func (m *MockConversionRepository) GetByExchangeID(ctx context.Context, exchangeID string) (*conversion.Conversion, error) {
	args := m.Called(ctx, exchangeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversion.Conversion), args.Error(1)
}

func (m *MockConversionRepository) GetByDonationID(ctx context.Context, donationID uuid.UUID) (*conversion.Conversion, error) {
	args := m.Called(ctx, donationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversion.Conversion), args.Error(1)
}

func (m *MockConversionRepository) LockByExchangeID(ctx context.Context, exchangeID string) (*conversion.Conversion, error) {
	args := m.Called(ctx, exchangeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversion.Conversion), args.Error(1)
}

func (m *MockConversionRepository) SetExchangeRequested(ctx context.Context, id uuid.UUID, exchangeID string, estCompletion *time.Time) error {
	args := m.Called(ctx, id, exchangeID, estCompletion)
	return args.Error(0)
}

func (m *MockConversionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status shared.ConversionStatus, toAmount decimal.NullDecimal, txHash string) error {
	args := m.Called(ctx, id, status, toAmount, txHash)
	return args.Error(0)
}

func (m *MockConversionRepository) ListAwaitingExchange(ctx context.Context, limit int) ([]*conversion.Conversion, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*conversion.Conversion), args.Error(1)
}

func (m *MockConversionRepository) ListInFlight(ctx context.Context, limit int) ([]*conversion.Conversion, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*conversion.Conversion), args.Error(1)
}

func (m *MockConversionRepository) WithTx(tx pgx.Tx) conversion.Repository {
	m.Called(tx)
	return m
}

type MockConversionRefresher struct {
	mock.Mock
}

func (m *MockConversionRefresher) RefreshByExchangeID(ctx context.Context, exchangeID string) (*conversion.Conversion, error) {
	args := m.Called(ctx, exchangeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversion.Conversion), args.Error(1)
}

func storedConversion(exchangeID string, status shared.ConversionStatus) *conversion.Conversion {
	conv := conversion.NewConversion(uuid.New(), uuid.New(), "eth", "btc", decimal.RequireFromString("2"))
	conv.ExchangeID = exchangeID
	conv.Status = status
	return conv
}

func TestConversionServiceImpl_GetConversionByExchangeID(t *testing.T) {
	ctx := context.Background()

	t.Run("ReturnsRefreshedState", func(t *testing.T) {
		mockRepo := new(MockConversionRepository)
		mockRefresher := new(MockConversionRefresher)
		service := NewConversionService(testLogger(), mockRepo, mockRefresher)

		conv := storedConversion("ex_1", shared.ConversionStatusCompleted)
		mockRefresher.On("RefreshByExchangeID", ctx, "ex_1").Return(conv, nil).Once()

		got, err := service.GetConversionByExchangeID(ctx, "ex_1")

		assert.NoError(t, err)
		assert.Equal(t, conv, got)
		mockRepo.AssertNotCalled(t, "GetByExchangeID", mock.Anything, mock.Anything)
		mockRefresher.AssertExpectations(t)
	})

	t.Run("GatewayUnavailableFallsBackToStoredRow", func(t *testing.T) {
		mockRepo := new(MockConversionRepository)
		mockRefresher := new(MockConversionRefresher)
		service := NewConversionService(testLogger(), mockRepo, mockRefresher)

		stored := storedConversion("ex_1", shared.ConversionStatusProcessing)
		mockRefresher.On("RefreshByExchangeID", ctx, "ex_1").
			Return(nil, fmt.Errorf("refreshing exchange: %w", gateway.ErrGatewayUnavailable)).Once()
		mockRepo.On("GetByExchangeID", ctx, "ex_1").Return(stored, nil).Once()

		got, err := service.GetConversionByExchangeID(ctx, "ex_1")

		assert.NoError(t, err)
		assert.Equal(t, stored, got)
		mockRepo.AssertExpectations(t)
		mockRefresher.AssertExpectations(t)
	})

	t.Run("NotFound", func(t *testing.T) {
		mockRepo := new(MockConversionRepository)
		mockRefresher := new(MockConversionRefresher)
		service := NewConversionService(testLogger(), mockRepo, mockRefresher)

		mockRefresher.On("RefreshByExchangeID", ctx, "ex_missing").
			Return(nil, conversion.ErrConversionNotFound{ExchangeID: "ex_missing"}).Once()

		got, err := service.GetConversionByExchangeID(ctx, "ex_missing")

		assert.ErrorIs(t, err, conversion.ErrConversionNotFound{})
		assert.Nil(t, got)
		mockRepo.AssertNotCalled(t, "GetByExchangeID", mock.Anything, mock.Anything)
		mockRefresher.AssertExpectations(t)
	})

	t.Run("RefreshError", func(t *testing.T) {
		mockRepo := new(MockConversionRepository)
		mockRefresher := new(MockConversionRefresher)
		service := NewConversionService(testLogger(), mockRepo, mockRefresher)

		mockRefresher.On("RefreshByExchangeID", ctx, "ex_1").
			Return(nil, errors.New("db error")).Once()

		got, err := service.GetConversionByExchangeID(ctx, "ex_1")

		assert.Error(t, err)
		assert.Nil(t, got)
		mockRepo.AssertNotCalled(t, "GetByExchangeID", mock.Anything, mock.Anything)
	})
}

var (
	_ conversion.Repository = (*MockConversionRepository)(nil)
	_ ConversionRefresher   = (*MockConversionRefresher)(nil)
)
