package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"tradesync/src/model"
	"tradesync/src/repository"
)

type mockPositionLister struct {
	positions []model.Position
	err       error
	accountID uint
}

func (m *mockPositionLister) FindByAccount(ctx context.Context, accountID uint) ([]model.Position, error) {
	m.accountID = accountID
	return m.positions, m.err
}

type mockCombinedLister struct {
	combined []repository.CombinedTrade
	err      error
}

func (m *mockCombinedLister) FindCombinedByAccount(ctx context.Context, accountID uint) ([]repository.CombinedTrade, error) {
	return m.combined, m.err
}

func getRequest(handler http.HandlerFunc, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestGetTradesHandler(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		repo := &mockPositionLister{positions: []model.Position{{Ticket: "100", Pair: "EURUSD"}}}
		rr := getRequest(GetTradesHandler(repo), "/api/trades?login=7")

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		assert.Equal(t, uint(7), repo.accountID)
		assert.Contains(t, rr.Body.String(), "EURUSD")
	})

	t.Run("missing login", func(t *testing.T) {
		rr := getRequest(GetTradesHandler(&mockPositionLister{}), "/api/trades")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("repo error", func(t *testing.T) {
		repo := &mockPositionLister{err: assert.AnError}
		rr := getRequest(GetTradesHandler(repo), "/api/trades?login=7")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestGetCombinedTradesHandler(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		repo := &mockCombinedLister{combined: []repository.CombinedTrade{{Pair: "USDJPY", Remark: "grid"}}}
		rr := getRequest(GetCombinedTradesHandler(repo), "/api/trades/combined?account_id=7")

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		assert.Contains(t, rr.Body.String(), "grid")
	})

	t.Run("missing account", func(t *testing.T) {
		rr := getRequest(GetCombinedTradesHandler(&mockCombinedLister{}), "/api/trades/combined?account_id=0")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
