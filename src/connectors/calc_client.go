package connectors

// HTTP CLIENT FOR THE STATISTICS CALCULATION ENDPOINTS
// RESTY ONLY + INTERNAL RETRY

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

const (
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 4 * time.Second

	pricesCalcPath     = "/api/prices/calculate"
	volatilityCalcPath = "/api/volatility/calculate"
)

// CalcClient triggers the derived-statistics calculation endpoints once a
// collection time point has samples for all pairs. The calculation service
// is addressed by base URL so collectors can point at themselves or at a
// separate deployment.
type CalcClient struct {
	baseURL string
	http    *resty.Client
}

// NewCalcClient builds a client with retry for transient failures.
func NewCalcClient(baseURL string) *CalcClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})

	return &CalcClient{baseURL: baseURL, http: httpClient}
}

// TriggerVolatilityCalculation asks the calculation endpoint to derive the
// per-currency volatility indices for one time point.
func (c *CalcClient) TriggerVolatilityCalculation(ctx context.Context, dataTime time.Time) error {
	return c.trigger(ctx, volatilityCalcPath, dataTime)
}

// TriggerPriceCalculation asks the calculation endpoint to derive the
// per-currency price indices for one time point.
func (c *CalcClient) TriggerPriceCalculation(ctx context.Context, dataTime time.Time) error {
	return c.trigger(ctx, pricesCalcPath, dataTime)
}

func (c *CalcClient) trigger(ctx context.Context, path string, dataTime time.Time) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("dataTime", dataTime.UTC().Format("2006-01-02 15:04:05")).
		Get(path)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"connector": "CalcClient",
			"path":      path,
			"data_time": dataTime,
		}).WithError(err).Error("Calculation trigger failed")
		return err
	}
	if resp.IsError() {
		err := fmt.Errorf("calculation endpoint returned %d: %s", resp.StatusCode(), resp.String())
		logger.WithFields(map[string]interface{}{
			"connector": "CalcClient",
			"path":      path,
			"data_time": dataTime,
			"status":    resp.StatusCode(),
		}).WithError(err).Error("Calculation trigger rejected")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"connector": "CalcClient",
		"path":      path,
		"data_time": dataTime,
	}).Debug("Calculation triggered")

	return nil
}
