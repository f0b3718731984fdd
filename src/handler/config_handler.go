package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradesync/src/model"
	"tradesync/src/repository"
)

type configReader interface {
	FindByAccount(ctx context.Context, accountID uint) ([]model.TradeConfig, error)
	FindByID(ctx context.Context, id uint) (*model.TradeConfig, error)
}

type configMutator interface {
	UpdateParam(ctx context.Context, id uint, param string, value interface{}) error
	UpsertParamByGroup(ctx context.Context, groupID uint, param string, value interface{}) error
	UpdateRiskParam(ctx context.Context, id uint, param string, value decimal.Decimal) error
}

type authResolver interface {
	FindByKey(ctx context.Context, key model.GroupKey) (*model.TradeConfig, error)
	UpdateRemarkByStrategy(ctx context.Context, accountID uint, magicNumber int, remark string) error
}

// decodeParamValue converts the raw JSON value of an operator mutation to
// the column type the parameter expects. Authorization flags accept a bool
// or the agent's 0/1 numerics; prices are rounded to broker precision.
func decodeParamValue(param string, raw json.RawMessage) (interface{}, error) {
	switch param {
	case "remark":
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("remark must be a string")
		}
		return s, nil

	case model.AuthParamFirstTrade, model.AuthParamAddTrade,
		model.AuthParamClosePartial, model.AuthParamStopLoss,
		model.AuthParamCloseLoss:
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return b, nil
		}
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("%s must be a bool or 0/1", param)
		}
		return n != 0, nil

	case "stop_loss", "take_profit", "trigger_price", "trail_distance":
		var d decimal.Decimal
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("%s must be a number", param)
		}
		if d.IsNegative() {
			return nil, fmt.Errorf("%s cannot be negative", param)
		}
		return d.Round(5), nil
	}
	return nil, fmt.Errorf("unknown parameter %q", param)
}

// GetConfigsHandler lists the config rows of one account, orphaned ones
// included.
func GetConfigsHandler(repo configReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := accountIDParam(r, "account_id")
		if !ok {
			writeError(w, http.StatusBadRequest, "account_id is required")
			return
		}

		configs, err := repo.FindByAccount(r.Context(), accountID)
		if err != nil {
			logger.WithError(err).Error("failed to fetch trade configs")
			writeError(w, http.StatusServiceUnavailable, "Unable to fetch trade configs")
			return
		}
		writeData(w, configs)
	}
}

// GetConfigByIDHandler fetches one config row.
func GetConfigByIDHandler(repo configReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id == 0 {
			writeError(w, http.StatusBadRequest, "invalid config id")
			return
		}

		cfg, err := repo.FindByID(r.Context(), uint(id))
		if err != nil {
			logger.WithError(err).Error("failed to fetch trade config")
			writeError(w, http.StatusServiceUnavailable, "Unable to fetch trade config")
			return
		}
		if cfg == nil {
			writeError(w, http.StatusNotFound, "Trade config not found")
			return
		}
		writeData(w, cfg)
	}
}

type paramUpdatePayload struct {
	ConfigID uint            `json:"config_id"`
	GroupID  uint            `json:"group_id"`
	Param    string          `json:"param"`
	Value    json.RawMessage `json:"value"`
}

// UpdateTradeParamHandler sets one operator-controlled parameter on a
// config row, addressed either by config id or by the backing group id.
// Group addressing creates the row on the fly if the propagator has not
// produced it yet.
func UpdateTradeParamHandler(repo configMutator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload paramUpdatePayload
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid param update payload")
			writeError(w, http.StatusBadRequest, "Invalid payload")
			return
		}

		if payload.ConfigID == 0 && payload.GroupID == 0 {
			writeError(w, http.StatusBadRequest, "config_id or group_id is required")
			return
		}

		value, err := decodeParamValue(payload.Param, payload.Value)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if payload.ConfigID != 0 {
			err = repo.UpdateParam(r.Context(), payload.ConfigID, payload.Param, value)
		} else {
			err = repo.UpsertParamByGroup(r.Context(), payload.GroupID, payload.Param, value)
		}
		writeMutationResult(w, err, payload.Param)
	}
}

type authUpdatePayload struct {
	ConfigID uint            `json:"config_id"`
	Param    string          `json:"param"`
	Value    json.RawMessage `json:"value"`
}

// UpdateAuthParamHandler toggles one authorization flag on a config row.
func UpdateAuthParamHandler(repo configMutator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload authUpdatePayload
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid auth update payload")
			writeError(w, http.StatusBadRequest, "Invalid payload")
			return
		}
		if payload.ConfigID == 0 {
			writeError(w, http.StatusBadRequest, "config_id is required")
			return
		}
		if !strings.HasPrefix(payload.Param, "auth_") {
			writeError(w, http.StatusBadRequest, "param must be an authorization flag")
			return
		}

		value, err := decodeParamValue(payload.Param, payload.Value)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		err = repo.UpdateParam(r.Context(), payload.ConfigID, payload.Param, value)
		writeMutationResult(w, err, payload.Param)
	}
}

type sltpUpdatePayload struct {
	ConfigID uint            `json:"config_id"`
	Param    string          `json:"param"`
	Value    decimal.Decimal `json:"value"`
}

// UpdateSLTPHandler sets the stop loss or take profit price on a config
// row.
func UpdateSLTPHandler(repo configMutator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload sltpUpdatePayload
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid sltp update payload")
			writeError(w, http.StatusBadRequest, "Invalid payload")
			return
		}
		if payload.ConfigID == 0 {
			writeError(w, http.StatusBadRequest, "config_id is required")
			return
		}
		if payload.Value.IsNegative() {
			writeError(w, http.StatusBadRequest, "value cannot be negative")
			return
		}

		err := repo.UpdateRiskParam(r.Context(), payload.ConfigID, payload.Param, payload.Value)
		writeMutationResult(w, err, payload.Param)
	}
}

func writeMutationResult(w http.ResponseWriter, err error, param string) {
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUnknownParam):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, repository.ErrConfigNotFound):
			writeError(w, http.StatusNotFound, "Trade config not found")
		default:
			logger.WithError(err).Error("failed to update trade config")
			writeError(w, http.StatusServiceUnavailable, "Unable to update trade config")
		}
		return
	}
	writeSuccess(w, fmt.Sprintf("Parameter %s updated successfully.", param))
}

type tradesAuthPayload struct {
	AccountID   uint   `json:"account_id"`
	MagicNumber int    `json:"magic_number"`
	Pair        string `json:"pair"`
	OrderType   string `json:"order_type"`
	Remark      string `json:"remark"`
}

type tradesAuthResponse struct {
	Status string `json:"status"`
	AuthFT bool   `json:"auth_FT"`
	AuthAT bool   `json:"auth_AT"`
	AuthCP bool   `json:"auth_CP"`
	AuthSL bool   `json:"auth_SL"`
	AuthCL bool   `json:"auth_CL"`
}

// TradesAuthHandler answers the agent's pre-trade authorization check for
// one group key. An optional remark is stored on every config of the
// strategy before the flags are returned; a key with no config row is
// denied outright.
func TradesAuthHandler(repo authResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload tradesAuthPayload
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid trades auth payload")
			writeError(w, http.StatusBadRequest, "Invalid payload")
			return
		}

		orderType := strings.ToLower(strings.TrimSpace(payload.OrderType))
		if payload.AccountID == 0 || payload.Pair == "" ||
			(orderType != model.OrderTypeBuy && orderType != model.OrderTypeSell) {
			writeError(w, http.StatusBadRequest, "account_id, pair and order_type are required")
			return
		}

		if payload.Remark != "" {
			err := repo.UpdateRemarkByStrategy(r.Context(), payload.AccountID, payload.MagicNumber, payload.Remark)
			if err != nil {
				logger.WithError(err).Error("failed to store strategy remark")
				writeError(w, http.StatusServiceUnavailable, "Unable to process authorization check")
				return
			}
		}

		cfg, err := repo.FindByKey(r.Context(), model.GroupKey{
			AccountID:   payload.AccountID,
			MagicNumber: payload.MagicNumber,
			Pair:        payload.Pair,
			OrderType:   orderType,
		})
		if err != nil {
			logger.WithError(err).Error("failed to resolve authorization flags")
			writeError(w, http.StatusServiceUnavailable, "Unable to process authorization check")
			return
		}
		if cfg == nil {
			writeError(w, http.StatusForbidden, "No configuration for this trade key")
			return
		}

		writeJSON(w, http.StatusOK, tradesAuthResponse{
			Status: "success",
			AuthFT: cfg.AuthFT,
			AuthAT: cfg.AuthAT,
			AuthCP: cfg.AuthCP,
			AuthSL: cfg.AuthSL,
			AuthCL: cfg.AuthCL,
		})
	}
}

// DefaultGetConfigsHandler wires the handler to the production repository.
func DefaultGetConfigsHandler() http.HandlerFunc {
	return GetConfigsHandler(repository.NewConfigRepository())
}

// DefaultGetConfigByIDHandler wires the handler to the production repository.
func DefaultGetConfigByIDHandler() http.HandlerFunc {
	return GetConfigByIDHandler(repository.NewConfigRepository())
}

// DefaultUpdateTradeParamHandler wires the handler to the production repository.
func DefaultUpdateTradeParamHandler() http.HandlerFunc {
	return UpdateTradeParamHandler(repository.NewConfigRepository())
}

// DefaultUpdateAuthParamHandler wires the handler to the production repository.
func DefaultUpdateAuthParamHandler() http.HandlerFunc {
	return UpdateAuthParamHandler(repository.NewConfigRepository())
}

// DefaultUpdateSLTPHandler wires the handler to the production repository.
func DefaultUpdateSLTPHandler() http.HandlerFunc {
	return UpdateSLTPHandler(repository.NewConfigRepository())
}

// DefaultTradesAuthHandler wires the handler to the production repository.
func DefaultTradesAuthHandler() http.HandlerFunc {
	return TradesAuthHandler(repository.NewConfigRepository())
}
