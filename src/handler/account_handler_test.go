package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"tradesync/src/model"
	"tradesync/src/ws"
)

type mockAccountRepo struct {
	upserted *model.Account
	accounts []model.Account
	byLogin  *model.Account
	err      error
}

func (m *mockAccountRepo) Upsert(ctx context.Context, account *model.Account) error {
	m.upserted = account
	return m.err
}

func (m *mockAccountRepo) FindAll(ctx context.Context) ([]model.Account, error) {
	return m.accounts, m.err
}

func (m *mockAccountRepo) FindByLogin(ctx context.Context, login uint) (*model.Account, error) {
	return m.byLogin, m.err
}

const validAccountBody = `{
	"account_number": 100200,
	"account_name": "Main",
	"broker_name": "BrokerOne",
	"leverage": 500,
	"balance": 10000.50,
	"equity": 10010.25,
	"free_margin": 9500,
	"open_count": 3,
	"total_volume": 0.7,
	"ea_version": "1.4"
}`

func TestCollectAccountHandler_Success(t *testing.T) {
	repo := &mockAccountRepo{}
	hub := &mockHub{}
	handler := CollectAccountHandler(repo, hub)

	rr := postJSON(t, handler, "/api/account", validAccountBody)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if repo.upserted == nil {
		t.Fatal("account was not stored")
	}
	assert.Equal(t, uint(100200), repo.upserted.Login)
	assert.Equal(t, "Main", repo.upserted.AccountName)
	assert.Equal(t, 500, repo.upserted.Leverage)

	if len(hub.events) != 1 {
		t.Fatalf("expected 1 broadcast event, got %d", len(hub.events))
	}
	assert.Equal(t, ws.EventAccountUpdated, hub.events[0].Type)
}

func TestCollectAccountHandler_Validation(t *testing.T) {
	cases := map[string]string{
		"missing login":    `{"account_name": "Main", "broker_name": "B", "leverage": 100}`,
		"missing names":    `{"account_number": 1, "leverage": 100}`,
		"zero leverage":    `{"account_number": 1, "account_name": "Main", "broker_name": "B"}`,
		"malformed json":   `{"account_number": `,
		"unexpected field": `{"account_number": 1, "account_name": "Main", "broker_name": "B", "leverage": 100, "margin_call": 1}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			repo := &mockAccountRepo{}
			rr := postJSON(t, CollectAccountHandler(repo, &mockHub{}), "/api/account", body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Nil(t, repo.upserted)
		})
	}
}

func TestGetAccountByLoginHandler(t *testing.T) {
	get := func(handler http.HandlerFunc, login string) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Get("/api/accounts/{login}", handler)
		req := httptest.NewRequest(http.MethodGet, "/api/accounts/"+login, nil)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	t.Run("found", func(t *testing.T) {
		repo := &mockAccountRepo{byLogin: &model.Account{Login: 100200, AccountName: "Main"}}
		rr := get(GetAccountByLoginHandler(repo), "100200")

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		assert.Contains(t, rr.Body.String(), "Main")
	})

	t.Run("not found", func(t *testing.T) {
		rr := get(GetAccountByLoginHandler(&mockAccountRepo{}), "42")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("bad login", func(t *testing.T) {
		rr := get(GetAccountByLoginHandler(&mockAccountRepo{}), "abc")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
