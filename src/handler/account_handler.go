package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradesync/src/model"
	"tradesync/src/repository"
	"tradesync/src/ws"
)

type accountUpserter interface {
	Upsert(ctx context.Context, account *model.Account) error
}

type accountFinder interface {
	FindAll(ctx context.Context) ([]model.Account, error)
	FindByLogin(ctx context.Context, login uint) (*model.Account, error)
}

type accountPayload struct {
	AccountNumber uint            `json:"account_number"`
	AccountName   string          `json:"account_name"`
	BrokerName    string          `json:"broker_name"`
	Leverage      int             `json:"leverage"`
	Balance       decimal.Decimal `json:"balance"`
	Equity        decimal.Decimal `json:"equity"`
	FreeMargin    decimal.Decimal `json:"free_margin"`
	OpenCount     int             `json:"open_count"`
	TotalVolume   decimal.Decimal `json:"total_volume"`
	EAVersion     string          `json:"ea_version"`
}

// CollectAccountHandler ingests the account telemetry the agent pushes
// alongside its trade snapshots. Reports are full replaces keyed by login.
func CollectAccountHandler(repo accountUpserter, hub eventBroadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload accountPayload
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid account payload")
			writeError(w, http.StatusBadRequest, "Invalid payload")
			return
		}

		if payload.AccountNumber == 0 {
			writeError(w, http.StatusBadRequest, "account_number is required")
			return
		}
		if strings.TrimSpace(payload.AccountName) == "" || strings.TrimSpace(payload.BrokerName) == "" {
			writeError(w, http.StatusBadRequest, "account_name and broker_name are required")
			return
		}
		if payload.Leverage <= 0 {
			writeError(w, http.StatusBadRequest, "leverage must be positive")
			return
		}

		account := model.Account{
			Login:       payload.AccountNumber,
			AccountName: strings.TrimSpace(payload.AccountName),
			BrokerName:  strings.TrimSpace(payload.BrokerName),
			Leverage:    payload.Leverage,
			Balance:     payload.Balance,
			Equity:      payload.Equity,
			FreeMargin:  payload.FreeMargin,
			OpenCount:   payload.OpenCount,
			TotalVolume: payload.TotalVolume,
			EAVersion:   strings.TrimSpace(payload.EAVersion),
		}

		if err := repo.Upsert(r.Context(), &account); err != nil {
			logger.WithFields(map[string]interface{}{
				"handler": "CollectAccount",
				"login":   payload.AccountNumber,
			}).WithError(err).Error("Failed to store account data")
			writeError(w, http.StatusServiceUnavailable, "Unable to store account data")
			return
		}

		hub.Broadcast(ws.Event{Type: ws.EventAccountUpdated, AccountID: account.Login})
		writeSuccess(w, "Account data processed successfully.")
	}
}

// GetAccountsHandler lists every account the agents have reported.
func GetAccountsHandler(repo accountFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := repo.FindAll(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list accounts")
			writeError(w, http.StatusServiceUnavailable, "Unable to fetch accounts")
			return
		}
		writeData(w, accounts)
	}
}

// GetAccountByLoginHandler fetches one account by its broker login.
func GetAccountByLoginHandler(repo accountFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		login, err := strconv.ParseUint(chi.URLParam(r, "login"), 10, 64)
		if err != nil || login == 0 {
			writeError(w, http.StatusBadRequest, "invalid login")
			return
		}

		account, err := repo.FindByLogin(r.Context(), uint(login))
		if err != nil {
			logger.WithError(err).Error("failed to fetch account")
			writeError(w, http.StatusServiceUnavailable, "Unable to fetch account")
			return
		}
		if account == nil {
			writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		writeData(w, account)
	}
}

// DefaultCollectAccountHandler wires the handler to the production repository.
func DefaultCollectAccountHandler(hub *ws.Hub) http.HandlerFunc {
	return CollectAccountHandler(repository.NewAccountRepository(), hub)
}

// DefaultGetAccountsHandler wires the handler to the production repository.
func DefaultGetAccountsHandler() http.HandlerFunc {
	return GetAccountsHandler(repository.NewAccountRepository())
}

// DefaultGetAccountByLoginHandler wires the handler to the production repository.
func DefaultGetAccountByLoginHandler() http.HandlerFunc {
	return GetAccountByLoginHandler(repository.NewAccountRepository())
}
