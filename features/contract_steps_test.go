package features

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/cucumber/godog"

	"argentum/internal/cards/api"
	"argentum/internal/cards/application"
	"argentum/internal/cards/infrastructure/funding"
	"argentum/internal/cards/infrastructure/memory"
)

type contractState struct {
	server   *httptest.Server
	response *http.Response
}

func InitializeScenario(sc *godog.ScenarioContext) {
	state := &contractState{}

	sc.Step(`^the service is running$`, state.theServiceIsRunning)
	sc.Step(`^I request the health endpoint$`, state.iRequestTheHealthEndpoint)
	sc.Step(`^I request the card list without identity headers$`, state.iRequestTheCardListAnonymously)
	sc.Step(`^I request the card list as customer "([^"]*)"$`, state.iRequestTheCardListAsCustomer)
	sc.Step(`^the response status should be (\d+)$`, state.theResponseStatusShouldBe)

	sc.After(func(ctx context.Context, scenario *godog.Scenario, err error) (context.Context, error) {
		if state.server != nil {
			state.server.Close()
		}
		if state.response != nil {
			state.response.Body.Close()
		}
		return ctx, nil
	})
}

func (s *contractState) theServiceIsRunning() error {
	dataStore := memory.NewDataStore()
	service := application.NewCardService(dataStore, funding.NewStaticGateway(), memory.NewLedger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	api.NewHandler(service).RegisterRoutes(mux)

	s.server = httptest.NewServer(mux)
	return nil
}

func (s *contractState) iRequestTheHealthEndpoint() error {
	if s.server == nil {
		return fmt.Errorf("server not running")
	}
	resp, err := http.Get(s.server.URL + "/health")
	if err != nil {
		return fmt.Errorf("failed to request health endpoint: %w", err)
	}
	s.response = resp
	return nil
}

func (s *contractState) iRequestTheCardListAnonymously() error {
	if s.server == nil {
		return fmt.Errorf("server not running")
	}
	resp, err := http.Get(s.server.URL + "/cards")
	if err != nil {
		return fmt.Errorf("failed to request card list: %w", err)
	}
	s.response = resp
	return nil
}

func (s *contractState) iRequestTheCardListAsCustomer(customerID string) error {
	if s.server == nil {
		return fmt.Errorf("server not running")
	}
	req, err := http.NewRequest(http.MethodGet, s.server.URL+"/cards", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Username", customerID)
	req.Header.Set("X-Customer-Id", customerID)
	req.Header.Set("X-Role", "CUSTOMER")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to request card list: %w", err)
	}
	s.response = resp
	return nil
}

func (s *contractState) theResponseStatusShouldBe(expected int) error {
	if s.response == nil {
		return fmt.Errorf("no response received")
	}
	if s.response.StatusCode != expected {
		return fmt.Errorf("expected status %d, got %d", expected, s.response.StatusCode)
	}
	return nil
}
