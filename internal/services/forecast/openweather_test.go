//go:build unit

package forecast_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Nazarious-ucu/rain-notifier/internal/models"
	"github.com/Nazarious-ucu/rain-notifier/internal/services/forecast"
	"github.com/Nazarious-ucu/rain-notifier/pkg/logger"
)

const (
	testAPIKey = "secret-key-open-weather"
	testCity   = "San Francisco"

	forecastBody = `{
		"cod": "200",
		"cnt": 3,
		"list": [
			{"dt": 1700000000, "dt_txt": "2023-11-14 21:00:00"},
			{"dt": 1700010800, "rain": {"3h": 0.5}},
			{"dt": 1700021600, "rain": {"3h": 2.25}}
		],
		"city": {"name": "San Francisco", "country": "US"}
	}`
)

type mockHTTPClient struct {
	mock.Mock
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	resp, ok := args.Get(0).(*http.Response)
	if !ok {
		return &http.Response{}, args.Error(1)
	}
	return resp, args.Error(1)
}

type linkSpy struct {
	mu    sync.Mutex
	links []string
}

func (s *linkSpy) RecordLink(_ context.Context, link string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links = append(s.links, link)
}


func Test_OpenWeather_Fetch_Success(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"appid": r.URL.Query().Get("appid"),
			"q":     r.URL.Query().Get("q"),
		}
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/data/2.5/forecast", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(forecastBody))
	}))
	t.Cleanup(srv.Close)

	l, err := logger.NewLogger("", "openweather_test_success")
	require.NoError(t, err)

	spy := &linkSpy{}
	c := forecast.NewClientOpenWeatherMap(srv.URL+"/data/2.5/forecast", srv.Client(), spy, l)

	data, err := c.Fetch(context.Background(), models.ForecastQuery{City: testCity, APIKey: testAPIKey})
	require.NoError(t, err)

	assert.Equal(t, testAPIKey, gotQuery["appid"])
	assert.Equal(t, testCity, gotQuery["q"])
	assert.Len(t, data.List, 3)
	assert.Nil(t, data.List[0].Rain)
	assert.Equal(t, 2.25, data.List[2].Rain["3h"])
	assert.Equal(t, "San Francisco", data.City.Name)

	require.Len(t, spy.links, 1)
	assert.NotContains(t, spy.links[0], testAPIKey)
	assert.Contains(t, spy.links[0], "q=San+Francisco")
}

func Test_OpenWeather_BuildURL(t *testing.T) {
	l, err := logger.NewLogger("", "openweather_test_build_url")
	require.NoError(t, err)

	c := forecast.NewClientOpenWeatherMap("http://api.openweathermap.org/data/2.5/forecast", &mockHTTPClient{}, nil, l)

	got, err := c.BuildURL(models.ForecastQuery{City: testCity, APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "http://api.openweathermap.org/data/2.5/forecast?appid=k&q=San+Francisco", got)
}

func Test_OpenWeather_Fetch_NonSuccessStatus(t *testing.T) {
	statuses := []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusInternalServerError}

	for _, status := range statuses {
		t.Run(http.StatusText(status), func(t *testing.T) {
			m := &mockHTTPClient{}
			m.On("Do", mock.Anything).Return(
				&http.Response{
					StatusCode: status,
					Body:       io.NopCloser(strings.NewReader(`{"cod": "x", "message": "nope"}`)),
				}, nil).Once()

			t.Cleanup(func() {
				m.AssertExpectations(t)
			})

			l, err := logger.NewLogger("", "openweather_test_status")
			require.NoError(t, err)

			c := forecast.NewClientOpenWeatherMap("http://example.test/forecast", m, nil, l)

			data, err := c.Fetch(context.Background(), models.ForecastQuery{City: testCity, APIKey: testAPIKey})
			require.Error(t, err)
			assert.Equal(t, models.ForecastResponse{}, data)

			var fetchErr *forecast.FetchError
			require.True(t, errors.As(err, &fetchErr))
			assert.Equal(t, status, fetchErr.StatusCode)
		})
	}
}

func Test_OpenWeather_Fetch_TransportError(t *testing.T) {
	m := &mockHTTPClient{}
	m.On("Do", mock.Anything).Return(nil, errors.New("connection refused")).Once()

	l, err := logger.NewLogger("", "openweather_test_transport")
	require.NoError(t, err)

	c := forecast.NewClientOpenWeatherMap("http://example.test/forecast", m, nil, l)

	_, err = c.Fetch(context.Background(), models.ForecastQuery{City: testCity, APIKey: testAPIKey})

	var fetchErr *forecast.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Zero(t, fetchErr.StatusCode)
	assert.Contains(t, err.Error(), "connection refused")
}

func Test_OpenWeather_Fetch_InvalidQuery(t *testing.T) {
	m := &mockHTTPClient{}

	l, err := logger.NewLogger("", "openweather_test_invalid_query")
	require.NoError(t, err)

	c := forecast.NewClientOpenWeatherMap("http://example.test/forecast", m, nil, l)

	for _, q := range []models.ForecastQuery{
		{City: "", APIKey: testAPIKey},
		{City: testCity, APIKey: ""},
	} {
		_, err := c.Fetch(context.Background(), q)
		assert.ErrorIs(t, err, forecast.ErrInvalidQuery)
	}
	m.AssertNumberOfCalls(t, "Do", 0)
}

func Test_OpenWeather_Fetch_MalformedBody(t *testing.T) {
	m := &mockHTTPClient{}
	m.On("Do", mock.Anything).Return(
		&http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"list": [`)),
		}, nil).Once()

	l, err := logger.NewLogger("", "openweather_test_malformed")
	require.NoError(t, err)

	c := forecast.NewClientOpenWeatherMap("http://example.test/forecast", m, nil, l)

	_, err = c.Fetch(context.Background(), models.ForecastQuery{City: testCity, APIKey: testAPIKey})

	var fetchErr *forecast.FetchError
	assert.True(t, errors.As(err, &fetchErr))
}

func Test_OpenWeather_Fetch_MistypedMetadataStillDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"cnt":"40","list":[{"dt":"soon","rain":{"3h":2.0}}]}`))
	}))
	t.Cleanup(srv.Close)

	l, err := logger.NewLogger("", "openweather_test_mistyped")
	require.NoError(t, err)

	c := forecast.NewClientOpenWeatherMap(srv.URL, srv.Client(), nil, l)

	data, err := c.Fetch(context.Background(), models.ForecastQuery{City: testCity, APIKey: testAPIKey})
	require.NoError(t, err)
	require.Len(t, data.List, 1)
	assert.Equal(t, 2.0, data.List[0].Rain[models.RainWindow])
}
