package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradesync/src/model"
	"tradesync/src/syncer"
	"tradesync/src/utils"
	"tradesync/src/ws"
)

type tradeSyncer interface {
	Sync(ctx context.Context, accountID uint, reported []model.Position) error
}

type eventBroadcaster interface {
	Broadcast(event ws.Event)
}

// reportedPosition is one open trade as the agent serializes it. Prices
// and volumes arrive as JSON numbers; the open time is the agent's dotted
// local format and is normalized here.
type reportedPosition struct {
	Ticket      string          `json:"ticket"`
	MagicNumber int             `json:"magic_number"`
	Pair        string          `json:"pair"`
	OrderType   string          `json:"order_type"`
	Volume      decimal.Decimal `json:"volume"`
	OpenPrice   decimal.Decimal `json:"open_price"`
	Profit      decimal.Decimal `json:"profit"`
	BidPrice    decimal.Decimal `json:"bid_price"`
	AskPrice    decimal.Decimal `json:"ask_price"`
	Commission  decimal.Decimal `json:"commission"`
	Comment     string          `json:"comment"`
	OpenTime    string          `json:"open_time"`
}

type syncPayload struct {
	AccountID uint               `json:"account_id"`
	EAVersion string             `json:"ea_version"`
	Positions []reportedPosition `json:"positions"`
}

// SyncTradesHandler ingests one full snapshot of an account's open trades.
// The snapshot replaces whatever was stored before, so agents can post the
// same state repeatedly without drift.
func SyncTradesHandler(s tradeSyncer, hub eventBroadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload syncPayload
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid trade sync payload")
			writeError(w, http.StatusBadRequest, "Invalid payload")
			return
		}

		if payload.AccountID == 0 {
			writeError(w, http.StatusBadRequest, "account_id is required")
			return
		}

		positions := make([]model.Position, 0, len(payload.Positions))
		for i, rp := range payload.Positions {
			p := model.Position{
				AccountID:   payload.AccountID,
				Ticket:      rp.Ticket,
				MagicNumber: rp.MagicNumber,
				Pair:        rp.Pair,
				OrderType:   rp.OrderType,
				Volume:      rp.Volume,
				OpenPrice:   rp.OpenPrice,
				Profit:      rp.Profit,
				BidPrice:    rp.BidPrice,
				AskPrice:    rp.AskPrice,
				Commission:  rp.Commission,
				Comment:     rp.Comment,
			}
			if rp.OpenTime != "" {
				t, err := utils.ParseAgentTime(rp.OpenTime)
				if err != nil {
					writeError(w, http.StatusBadRequest,
						fmt.Sprintf("position %d: %v", i, err))
					return
				}
				p.OpenTime = &t
			}
			positions = append(positions, p)
		}

		if err := s.Sync(r.Context(), payload.AccountID, positions); err != nil {
			switch syncer.KindOf(err) {
			case syncer.KindValidation:
				writeError(w, http.StatusBadRequest, err.Error())
			case syncer.KindConflict:
				writeError(w, http.StatusConflict, "Another sync for this account is in progress")
			case syncer.KindConsistency:
				logger.WithFields(map[string]interface{}{
					"handler":    "SyncTrades",
					"account_id": payload.AccountID,
				}).WithError(err).Error("Trade sync aborted on invariant check")
				writeError(w, http.StatusInternalServerError, "Sync aborted: inconsistent result")
			default:
				logger.WithFields(map[string]interface{}{
					"handler":    "SyncTrades",
					"account_id": payload.AccountID,
				}).WithError(err).Error("Trade sync failed")
				writeError(w, http.StatusServiceUnavailable, "Unable to process trade data")
			}
			return
		}

		hub.Broadcast(ws.Event{Type: ws.EventTradesSynced, AccountID: payload.AccountID})
		writeSuccess(w, "Trade data processed successfully.")
	}
}

// DefaultSyncTradesHandler wires the handler to the production sync
// pipeline on the main database.
func DefaultSyncTradesHandler(hub *ws.Hub) http.HandlerFunc {
	return SyncTradesHandler(syncer.NewDefault(), hub)
}
