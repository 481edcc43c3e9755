package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"argentum/internal/cards/api"
	"argentum/internal/cards/application"
	"argentum/internal/cards/domain"
	"argentum/internal/cards/infrastructure/funding"
	"argentum/internal/cards/infrastructure/memory"
	"argentum/internal/common/types"
)

func mustMoney(value string) types.Money {
	m, err := types.NewMoneyFromString(value, types.CurrencyEUR)
	if err != nil {
		panic(err)
	}
	return m
}

// HandlerSuite tests HTTP handler behavior: header-based access control and
// the mapping of domain errors to status codes.
type HandlerSuite struct {
	suite.Suite
	mux     *http.ServeMux
	service *application.CardService
	gateway *funding.StaticGateway
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	dataStore := memory.NewDataStore()
	s.gateway = funding.NewStaticGateway()
	s.service = application.NewCardService(dataStore, s.gateway, memory.NewLedger())
	handler := api.NewHandler(s.service)

	s.mux = http.NewServeMux()
	handler.RegisterRoutes(s.mux)
}

type principal struct {
	username   string
	customerID string
	role       string
}

var (
	alice = principal{username: "alice", customerID: "customer-1", role: "CUSTOMER"}
	bob   = principal{username: "bob", customerID: "customer-2", role: "CUSTOMER"}
	admin = principal{username: "ops", role: "ADMIN"}
)

func (s *HandlerSuite) doRequest(p principal, method, path string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if p.username != "" {
		req.Header.Set("X-Username", p.username)
		req.Header.Set("X-Customer-Id", p.customerID)
		req.Header.Set("X-Role", p.role)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) createDebitCard(p principal) string {
	rec := s.doRequest(p, http.MethodPost, "/cards/debit", map[string]any{
		"main_account_id": "acc-main",
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var card struct {
		ID string `json:"id"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &card))
	return card.ID
}

func (s *HandlerSuite) TestIssuance() {
	s.Run("debit card response hides the real number", func() {
		rec := s.doRequest(alice, http.MethodPost, "/cards/debit", map[string]any{
			"main_account_id": "acc-main",
		})
		s.Equal(http.StatusCreated, rec.Code)
		s.Contains(rec.Body.String(), "****-****-****-")
		s.NotContains(rec.Body.String(), "cvv")
	})

	s.Run("credit card requires a credit line", func() {
		rec := s.doRequest(alice, http.MethodPost, "/cards/credit", map[string]any{})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("missing identity headers yield 401", func() {
		rec := s.doRequest(principal{}, http.MethodPost, "/cards/debit", map[string]any{
			"main_account_id": "acc-main",
		})
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("customer cannot issue for another customer", func() {
		rec := s.doRequest(alice, http.MethodPost, "/cards/debit", map[string]any{
			"customer_id":     "customer-2",
			"main_account_id": "acc-main",
		})
		s.Equal(http.StatusForbidden, rec.Code)
	})
}

func (s *HandlerSuite) TestAccessControl() {
	cardID := s.createDebitCard(alice)

	s.Run("owner reads own card", func() {
		rec := s.doRequest(alice, http.MethodGet, "/cards/"+cardID, nil)
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("other customer gets 403", func() {
		rec := s.doRequest(bob, http.MethodGet, "/cards/"+cardID, nil)
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("admin reads any card", func() {
		rec := s.doRequest(admin, http.MethodGet, "/cards/"+cardID, nil)
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("unknown card yields 404 before any access check", func() {
		rec := s.doRequest(bob, http.MethodGet, "/cards/"+domain.NewCardID().String(), nil)
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("malformed card id yields 400", func() {
		rec := s.doRequest(alice, http.MethodGet, "/cards/not-a-uuid", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("customer listing shows own cards only", func() {
		s.createDebitCard(bob)
		rec := s.doRequest(alice, http.MethodGet, "/cards", nil)
		s.Equal(http.StatusOK, rec.Code)

		var cards []map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &cards))
		for _, card := range cards {
			s.Equal("customer-1", card["customer_id"])
		}
	})

	s.Run("customer cannot browse another customer's cards", func() {
		rec := s.doRequest(alice, http.MethodGet, "/cards/customer/customer-2", nil)
		s.Equal(http.StatusForbidden, rec.Code)
	})
}

func (s *HandlerSuite) TestLifecycleRoutes() {
	cardID := s.createDebitCard(alice)

	s.Run("block and activate round trip", func() {
		rec := s.doRequest(alice, http.MethodPut, "/cards/"+cardID+"/block", nil)
		s.Equal(http.StatusOK, rec.Code)
		s.Contains(rec.Body.String(), "BLOCKED")

		rec = s.doRequest(alice, http.MethodPut, "/cards/"+cardID+"/activate", nil)
		s.Equal(http.StatusOK, rec.Code)
		s.Contains(rec.Body.String(), "ACTIVE")
	})

	s.Run("double block maps to 400", func() {
		rec := s.doRequest(alice, http.MethodPut, "/cards/"+cardID+"/block", nil)
		s.Equal(http.StatusOK, rec.Code)
		rec = s.doRequest(alice, http.MethodPut, "/cards/"+cardID+"/block", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("delete removes the card", func() {
		rec := s.doRequest(alice, http.MethodDelete, "/cards/"+cardID, nil)
		s.Equal(http.StatusNoContent, rec.Code)
		rec = s.doRequest(alice, http.MethodGet, "/cards/"+cardID, nil)
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *HandlerSuite) TestAccountRoutes() {
	cardID := s.createDebitCard(alice)

	s.Run("associate then promote", func() {
		rec := s.doRequest(alice, http.MethodPost, "/cards/"+cardID+"/associate-account", map[string]any{
			"account_id": "acc-b",
		})
		s.Equal(http.StatusOK, rec.Code)

		rec = s.doRequest(alice, http.MethodPut, "/cards/"+cardID+"/main-account/acc-b", nil)
		s.Equal(http.StatusOK, rec.Code)
		s.Contains(rec.Body.String(), `"main_account_id":"acc-b"`)
	})

	s.Run("duplicate association maps to 400", func() {
		rec := s.doRequest(alice, http.MethodPost, "/cards/"+cardID+"/associate-account", map[string]any{
			"account_id": "acc-main",
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("promotion without association maps to 400", func() {
		rec := s.doRequest(alice, http.MethodPut, "/cards/"+cardID+"/main-account/acc-unknown", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestPaymentRoutes() {
	paymentBody := map[string]any{
		"amount":   map[string]any{"value": "25.00", "currency": "EUR"},
		"merchant": "cafe-centro",
	}

	s.Run("funded payment returns the settlement", func() {
		cardID := s.createDebitCard(alice)
		s.gateway.SetAccount("acc-main", domain.FundingOK)

		rec := s.doRequest(alice, http.MethodPost, "/cards/"+cardID+"/payment", paymentBody)
		s.Equal(http.StatusOK, rec.Code)
		s.Contains(rec.Body.String(), "COMPLETED")
		s.Contains(rec.Body.String(), "acc-main")
	})

	s.Run("exhausted cascade maps to 400 with distinct code", func() {
		cardID := s.createDebitCard(alice)
		s.gateway.SetAccount("acc-main", domain.FundingInsufficient)

		rec := s.doRequest(alice, http.MethodPost, "/cards/"+cardID+"/payment", paymentBody)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Contains(rec.Body.String(), "INSUFFICIENT_BALANCE")
	})

	s.Run("invalid amount maps to 400", func() {
		cardID := s.createDebitCard(alice)
		rec := s.doRequest(alice, http.MethodPost, "/cards/"+cardID+"/payment", map[string]any{
			"amount": map[string]any{"value": "abc", "currency": "EUR"},
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("other customer cannot pay with the card", func() {
		cardID := s.createDebitCard(alice)
		rec := s.doRequest(bob, http.MethodPost, "/cards/"+cardID+"/payment", paymentBody)
		s.Equal(http.StatusForbidden, rec.Code)
	})
}

func (s *HandlerSuite) TestBalanceAndTransactions() {
	cardID := s.createDebitCard(alice)

	s.Run("balance comes from the funding gateway", func() {
		s.gateway.SetBalance("acc-main", mustMoney("120.50"))
		rec := s.doRequest(alice, http.MethodGet, "/cards/"+cardID+"/balance", nil)
		s.Equal(http.StatusOK, rec.Code)
		s.Contains(rec.Body.String(), "120.5")
	})

	s.Run("transactions list settled payments newest first", func() {
		s.gateway.SetAccount("acc-main", domain.FundingOK)
		rec := s.doRequest(alice, http.MethodPost, "/cards/"+cardID+"/payment", map[string]any{
			"amount":   map[string]any{"value": "10.00", "currency": "EUR"},
			"merchant": "bakery",
		})
		s.Require().Equal(http.StatusOK, rec.Code)

		rec = s.doRequest(alice, http.MethodGet, "/cards/"+cardID+"/transactions", nil)
		s.Equal(http.StatusOK, rec.Code)
		s.Contains(rec.Body.String(), "bakery")
	})

	s.Run("invalid limit maps to 400", func() {
		rec := s.doRequest(alice, http.MethodGet, "/cards/"+cardID+"/transactions?limit=zero", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}
