// Package weather はOpenWeatherMap連携と天気に応じた服装の提案を提供する。
package weather

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/hitoshi/closetiq/internal/model"
)

const (
	// DefaultBaseURL はOpenWeatherMap APIのベースURL。
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5"
	// requestsPerMinute は無料プランの呼び出し上限。
	requestsPerMinute = 60
	// forecastDays は予報として返す日数。
	forecastDays = 5
	// maxResponseBytes はレスポンスボディの読み取り上限。
	maxResponseBytes = 1 << 20
)

// ErrNotConfigured はAPIキーが未設定の場合のエラー。
var ErrNotConfigured = errors.New("weather api key not configured")

// Current は現在の天気。
type Current struct {
	Temperature int     `json:"temperature"`
	Condition   string  `json:"condition"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	Location    string  `json:"location,omitempty"`
}

// TemperatureRange は1日の最低・最高気温。
type TemperatureRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// DailyForecast は1日分の予報。
type DailyForecast struct {
	Date        string           `json:"date"`
	Temperature TemperatureRange `json:"temperature"`
	Condition   string           `json:"condition"`
	Description string           `json:"description"`
}

// Client はOpenWeatherMap APIのクライアント。
// 無料プランの上限を超えないよう呼び出しを毎分60回に絞る。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
}

// NewClient はClientの新しいインスタンスを生成する。baseURLが空の場合はDefaultBaseURLを使う。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/requestsPerMinute), requestsPerMinute),
	}
}

// Configured はAPIキーが設定されているかを返す。
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Current は座標の現在の天気を取得する。
func (c *Client) Current(ctx context.Context, lat, lon float64) (*Current, error) {
	body, err := c.get(ctx, "/weather", coords(lat, lon))
	if err != nil {
		return nil, err
	}
	return decodeCurrent(body), nil
}

// ByCity は都市名で現在の天気を取得する。
func (c *Client) ByCity(ctx context.Context, city string) (*Current, error) {
	body, err := c.get(ctx, "/weather", url.Values{"q": {city}})
	if err != nil {
		return nil, err
	}
	return decodeCurrent(body), nil
}

// Forecast は座標の5日間予報を取得する。3時間ごとの予報のうち各日付の最初の1件を採用する。
func (c *Client) Forecast(ctx context.Context, lat, lon float64) ([]DailyForecast, error) {
	body, err := c.get(ctx, "/forecast", coords(lat, lon))
	if err != nil {
		return nil, err
	}

	days := make([]DailyForecast, 0, forecastDays)
	seen := map[string]bool{}
	gjson.GetBytes(body, "list").ForEach(func(_, entry gjson.Result) bool {
		date := time.Unix(entry.Get("dt").Int(), 0).UTC().Format(time.DateOnly)
		if seen[date] {
			return true
		}
		seen[date] = true
		days = append(days, DailyForecast{
			Date: date,
			Temperature: TemperatureRange{
				Min: round(entry.Get("main.temp_min").Float()),
				Max: round(entry.Get("main.temp_max").Float()),
			},
			Condition:   entry.Get("weather.0.main").String(),
			Description: entry.Get("weather.0.description").String(),
		})
		return len(days) < forecastDays
	})
	return days, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("weather rate limiter: %w", err)
	}

	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create weather request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("weather api call failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUpstreamError("Failed to fetch weather data", err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read weather response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("weather api returned error status",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewUpstreamError("Failed to fetch weather data", gjson.GetBytes(body, "message").String())
	}
	return body, nil
}

func decodeCurrent(body []byte) *Current {
	doc := gjson.ParseBytes(body)
	return &Current{
		Temperature: round(doc.Get("main.temp").Float()),
		Condition:   doc.Get("weather.0.main").String(),
		Humidity:    doc.Get("main.humidity").Float(),
		WindSpeed:   doc.Get("wind.speed").Float(),
		Description: doc.Get("weather.0.description").String(),
		Icon:        doc.Get("weather.0.icon").String(),
		Location:    doc.Get("name").String(),
	}
}

func coords(lat, lon float64) url.Values {
	return url.Values{
		"lat": {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon": {strconv.FormatFloat(lon, 'f', -1, 64)},
	}
}

func round(v float64) int {
	return int(math.Round(v))
}
