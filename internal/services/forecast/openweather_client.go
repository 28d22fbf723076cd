package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/Nazarious-ucu/rain-notifier/internal/models"
	"github.com/Nazarious-ucu/rain-notifier/pkg/logger"
)

const maxErrorBodyRead = 512

// ClientOpenWeatherMap fetches the 5-day / 3-hour forecast from OpenWeatherMap.
//
// The API key travels as the appid query parameter because that is the only form the
// endpoint accepts. It is redacted everywhere the URL is logged or recorded.
type ClientOpenWeatherMap struct {
	apiURL   string
	client   HTTPClient
	recorder LinkRecorder
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewClientOpenWeatherMap constructs a forecast client. A nil recorder disables link artifacts.
func NewClientOpenWeatherMap(apiURL string,
	httpClient HTTPClient, recorder LinkRecorder, logger zerolog.Logger,
) *ClientOpenWeatherMap {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &ClientOpenWeatherMap{
		apiURL:   apiURL,
		client:   httpClient,
		recorder: recorder,
		validate: validator.New(),
		logger:   logger.With().Str("component", "ClientOpenWeatherMap").Logger(),
	}
}

// BuildURL returns the forecast URL with appid and q set.
func (s *ClientOpenWeatherMap) BuildURL(query models.ForecastQuery) (string, error) {
	u, err := url.Parse(s.apiURL)
	if err != nil {
		return "", fmt.Errorf("parse forecast url: %w", err)
	}
	q := u.Query()
	q.Set("appid", query.APIKey)
	q.Set("q", query.City)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch retrieves the raw forecast for query.City. Any non-2xx status is a *FetchError.
func (s *ClientOpenWeatherMap) Fetch(ctx context.Context, query models.ForecastQuery) (models.ForecastResponse, error) {
	if err := s.validate.Struct(query); err != nil {
		return models.ForecastResponse{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	start := time.Now()
	reqURL, err := s.BuildURL(query)
	if err != nil {
		return models.ForecastResponse{}, err
	}
	safeURL := logger.RedactURL(reqURL)

	s.recorder.RecordLink(ctx, safeURL)

	s.logger.Debug().
		Str("city", query.City).
		Str("url", safeURL).
		Msg("starting OpenWeatherMap forecast request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("city", query.City).
			Msg("failed to create HTTP request")
		return models.ForecastResponse{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("city", query.City).
			Str("url", safeURL).
			Msg("error sending HTTP request to OpenWeatherMap")
		return models.ForecastResponse{}, &FetchError{Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			s.logger.Error().
				Err(cerr).
				Str("city", query.City).
				Msg("failed to close response body")
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyRead))
		s.logger.Error().
			Str("city", query.City).
			Int("status", resp.StatusCode).
			Msg("OpenWeatherMap API returned non-success status")
		return models.ForecastResponse{}, &FetchError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("OpenWeatherMap error: %s", string(body)),
		}
	}

	var data models.ForecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		s.logger.Error().
			Err(err).
			Str("city", query.City).
			Msg("failed to decode OpenWeatherMap response")
		return models.ForecastResponse{}, &FetchError{StatusCode: resp.StatusCode, Err: err}
	}

	s.logger.Info().
		Str("city", query.City).
		Int("entries", len(data.List)).
		Dur("duration_ms", time.Since(start)).
		Msg("successfully fetched forecast")

	return data, nil
}
