package handler

import (
	"context"
	"net/http"
	"strconv"

	logger "github.com/sirupsen/logrus"

	"tradesync/src/model"
	"tradesync/src/repository"
)

type positionLister interface {
	FindByAccount(ctx context.Context, accountID uint) ([]model.Position, error)
}

type combinedLister interface {
	FindCombinedByAccount(ctx context.Context, accountID uint) ([]repository.CombinedTrade, error)
}

func accountIDParam(r *http.Request, name string) (uint, bool) {
	raw := r.URL.Query().Get(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// GetTradesHandler lists the stored open positions of one account. The
// dashboard addresses accounts by their broker login.
func GetTradesHandler(repo positionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := accountIDParam(r, "login")
		if !ok {
			writeError(w, http.StatusBadRequest, "login is required")
			return
		}

		positions, err := repo.FindByAccount(r.Context(), accountID)
		if err != nil {
			logger.WithError(err).Error("failed to fetch open trades")
			writeError(w, http.StatusServiceUnavailable, "Unable to fetch open trades")
			return
		}
		writeData(w, positions)
	}
}

// GetCombinedTradesHandler returns the dashboard projection: group
// aggregates joined with their operator configs, orphaned configs included.
func GetCombinedTradesHandler(repo combinedLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := accountIDParam(r, "account_id")
		if !ok {
			writeError(w, http.StatusBadRequest, "account_id is required")
			return
		}

		combined, err := repo.FindCombinedByAccount(r.Context(), accountID)
		if err != nil {
			logger.WithError(err).Error("failed to fetch combined trades")
			writeError(w, http.StatusServiceUnavailable, "Unable to fetch combined trades")
			return
		}
		writeData(w, combined)
	}
}

// DefaultGetTradesHandler wires the handler to the production repository.
func DefaultGetTradesHandler() http.HandlerFunc {
	return GetTradesHandler(repository.NewPositionRepository())
}

// DefaultGetCombinedTradesHandler wires the handler to the production repository.
func DefaultGetCombinedTradesHandler() http.HandlerFunc {
	return GetCombinedTradesHandler(repository.NewGroupRepository())
}
