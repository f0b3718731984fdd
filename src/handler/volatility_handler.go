package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradesync/src/connectors"
	"tradesync/src/model"
	"tradesync/src/repository"
	"tradesync/src/utils"
	"tradesync/src/volatility"
)

const triggerTimeout = 15 * time.Second

type statsStore interface {
	UpsertPrice(ctx context.Context, tick *model.PriceTick) error
	UpsertVolatility(ctx context.Context, v *model.Volatility) error
	CountPricesAt(ctx context.Context, at time.Time) (int64, error)
	CountVolatilityAt(ctx context.Context, at time.Time) (int64, error)
	FindVolatilityAt(ctx context.Context, at time.Time) ([]model.Volatility, error)
	UpsertCurrencyVolatility(ctx context.Context, rows []model.CurrencyVolatility) error
	BackfillVolatility(ctx context.Context, dataTime, prevTime time.Time) (int, error)
}

type calcTrigger interface {
	TriggerVolatilityCalculation(ctx context.Context, dataTime time.Time) error
	TriggerPriceCalculation(ctx context.Context, dataTime time.Time) error
}

type pricePayload struct {
	Symbol   string          `json:"symbol"`
	Price    decimal.Decimal `json:"price"`
	DataTime string          `json:"data_time"`
}

// CollectPriceHandler ingests one pair price sample. Once all pairs have
// reported for the time point the per-currency price calculation is
// triggered in the background; the collector's response never waits on it.
func CollectPriceHandler(repo statsStore, trigger calcTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload pricePayload
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid price payload")
			writeError(w, http.StatusBadRequest, "Invalid payload")
			return
		}

		symbol := strings.ToUpper(strings.TrimSpace(payload.Symbol))
		if len(symbol) < 6 {
			writeError(w, http.StatusBadRequest, "symbol is required")
			return
		}
		if !payload.Price.IsPositive() {
			writeError(w, http.StatusBadRequest, "price must be positive")
			return
		}
		dataTime, err := utils.ParseDataTime(payload.DataTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		tick := model.PriceTick{Symbol: symbol, Price: payload.Price, DataTime: dataTime}
		if err := repo.UpsertPrice(r.Context(), &tick); err != nil {
			logger.WithError(err).Error("failed to store price sample")
			writeError(w, http.StatusServiceUnavailable, "Unable to store price data")
			return
		}

		count, err := repo.CountPricesAt(r.Context(), dataTime)
		if err != nil {
			logger.WithError(err).Error("failed to count price samples")
			writeError(w, http.StatusServiceUnavailable, "Unable to store price data")
			return
		}
		if count >= volatility.ExpectedPairCount {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
				defer cancel()
				_ = trigger.TriggerPriceCalculation(ctx, dataTime)
			}()
		}

		writeSuccess(w, "Price data processed successfully.")
	}
}

type volatilityPayload struct {
	Symbol     string          `json:"symbol"`
	Value1     decimal.Decimal `json:"value1"`
	Value4     decimal.Decimal `json:"value4"`
	Value24    decimal.Decimal `json:"value24"`
	AvgValue1  decimal.Decimal `json:"avg_value1"`
	AvgValue4  decimal.Decimal `json:"avg_value4"`
	AvgValue24 decimal.Decimal `json:"avg_value24"`
	DataTime   string          `json:"data_time"`
}

// CollectVolatilityHandler ingests one pair volatility sample and triggers
// the index calculation once the time point is complete.
func CollectVolatilityHandler(repo statsStore, trigger calcTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload volatilityPayload
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid volatility payload")
			writeError(w, http.StatusBadRequest, "Invalid payload")
			return
		}

		symbol := strings.ToUpper(strings.TrimSpace(payload.Symbol))
		if len(symbol) < 6 {
			writeError(w, http.StatusBadRequest, "symbol is required")
			return
		}
		dataTime, err := utils.ParseDataTime(payload.DataTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		row := model.Volatility{
			Symbol:     symbol,
			Value1:     payload.Value1,
			Value4:     payload.Value4,
			Value24:    payload.Value24,
			AvgValue1:  payload.AvgValue1,
			AvgValue4:  payload.AvgValue4,
			AvgValue24: payload.AvgValue24,
			DataTime:   dataTime,
		}
		if err := repo.UpsertVolatility(r.Context(), &row); err != nil {
			logger.WithError(err).Error("failed to store volatility sample")
			writeError(w, http.StatusServiceUnavailable, "Unable to store volatility data")
			return
		}

		count, err := repo.CountVolatilityAt(r.Context(), dataTime)
		if err != nil {
			logger.WithError(err).Error("failed to count volatility samples")
			writeError(w, http.StatusServiceUnavailable, "Unable to store volatility data")
			return
		}
		if count >= volatility.ExpectedPairCount {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
				defer cancel()
				_ = trigger.TriggerVolatilityCalculation(ctx, dataTime)
			}()
		}

		writeSuccess(w, "Volatility data processed successfully.")
	}
}

// CalculateVolatilityHandler reduces the pair samples of one time point to
// the per-currency indices. It refuses to calculate from an incomplete
// time point so a partially collected minute never produces skewed indices.
func CalculateVolatilityHandler(repo statsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dataTime, err := utils.ParseDataTime(r.URL.Query().Get("dataTime"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		rows, err := repo.FindVolatilityAt(r.Context(), dataTime)
		if err != nil {
			logger.WithError(err).Error("failed to load volatility samples")
			writeError(w, http.StatusServiceUnavailable, "Unable to calculate volatility indices")
			return
		}
		if len(rows) < volatility.ExpectedPairCount {
			writeError(w, http.StatusConflict,
				fmt.Sprintf("time point incomplete: %d of %d pairs reported",
					len(rows), volatility.ExpectedPairCount))
			return
		}

		indices := volatility.CalculateCurrencyIndices(rows, dataTime)
		if err := repo.UpsertCurrencyVolatility(r.Context(), indices); err != nil {
			logger.WithError(err).Error("failed to store currency volatility indices")
			writeError(w, http.StatusServiceUnavailable, "Unable to store volatility indices")
			return
		}

		logger.WithFields(map[string]interface{}{
			"handler":   "CalculateVolatility",
			"data_time": dataTime,
			"indices":   len(indices),
		}).Info("Currency volatility indices calculated")

		writeData(w, indices)
	}
}

type backfillPayload struct {
	DataTime string `json:"data_time"`
	PrevTime string `json:"prev_time"`
}

// BackfillVolatilityHandler copies missing pair samples from an earlier
// complete time point so a gap in collection does not block the index.
func BackfillVolatilityHandler(repo statsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload backfillPayload
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid backfill payload")
			writeError(w, http.StatusBadRequest, "Invalid payload")
			return
		}

		dataTime, err := utils.ParseDataTime(payload.DataTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		prevTime, err := utils.ParseDataTime(payload.PrevTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		filled, err := repo.BackfillVolatility(r.Context(), dataTime, prevTime)
		if err != nil {
			logger.WithError(err).Error("volatility backfill failed")
			writeError(w, http.StatusServiceUnavailable, "Unable to backfill volatility data")
			return
		}

		writeSuccess(w, fmt.Sprintf("Backfilled %d pairs.", filled))
	}
}

// DefaultCollectPriceHandler wires the handler to the production stats store.
func DefaultCollectPriceHandler() http.HandlerFunc {
	client := connectors.NewCalcClient(connectors.GetConfig().CalcBaseURL)
	return CollectPriceHandler(repository.NewVolatilityRepository(), client)
}

// DefaultCollectVolatilityHandler wires the handler to the production stats store.
func DefaultCollectVolatilityHandler() http.HandlerFunc {
	client := connectors.NewCalcClient(connectors.GetConfig().CalcBaseURL)
	return CollectVolatilityHandler(repository.NewVolatilityRepository(), client)
}

// DefaultCalculateVolatilityHandler wires the handler to the production stats store.
func DefaultCalculateVolatilityHandler() http.HandlerFunc {
	return CalculateVolatilityHandler(repository.NewVolatilityRepository())
}

// DefaultBackfillVolatilityHandler wires the handler to the production stats store.
func DefaultBackfillVolatilityHandler() http.HandlerFunc {
	return BackfillVolatilityHandler(repository.NewVolatilityRepository())
}
