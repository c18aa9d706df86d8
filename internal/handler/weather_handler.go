package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/closetiq/internal/model"
	"github.com/hitoshi/closetiq/internal/weather"
)

// WeatherServiceInterface は天気ハンドラーが必要とするクライアントのインターフェース。
type WeatherServiceInterface interface {
	Current(ctx context.Context, lat, lon float64) (*weather.Current, error)
	ByCity(ctx context.Context, city string) (*weather.Current, error)
	Forecast(ctx context.Context, lat, lon float64) ([]weather.DailyForecast, error)
	Recommend(ctx context.Context, lat, lon float64) (*weather.Recommendation, error)
}

// WeatherHandler は天気情報のHTTPハンドラー。認証は不要。
type WeatherHandler struct {
	service WeatherServiceInterface
	now     func() time.Time
}

// NewWeatherHandler はWeatherHandlerを生成する。
func NewWeatherHandler(service WeatherServiceInterface) *WeatherHandler {
	return &WeatherHandler{service: service, now: time.Now}
}

// weatherResponse は天気APIのレスポンス。取得時刻を付ける。
type weatherResponse struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

type coordsRequest struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
}

func (h *WeatherHandler) write(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, weatherResponse{
		Success:   true,
		Data:      data,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// queryCoords はlat/lonクエリを取り出す。欠落や数値でない場合は400を書き込む。
func queryCoords(w http.ResponseWriter, r *http.Request) (lat, lon float64, ok bool) {
	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		handleServiceError(w, model.NewBadRequestError("Latitude and longitude are required"))
		return 0, 0, false
	}
	return lat, lon, true
}

// Current は現在の天気を返す。
// GET /api/weather/current
func (h *WeatherHandler) Current(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := queryCoords(w, r)
	if !ok {
		return
	}
	cur, err := h.service.Current(r.Context(), lat, lon)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.write(w, cur)
}

// Forecast は5日間予報を返す。
// GET /api/weather/forecast
func (h *WeatherHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := queryCoords(w, r)
	if !ok {
		return
	}
	days, err := h.service.Forecast(r.Context(), lat, lon)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.write(w, days)
}

// City は都市名で現在の天気を返す。
// GET /api/weather/city
func (h *WeatherHandler) City(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	if city == "" {
		handleServiceError(w, model.NewBadRequestError("City name is required"))
		return
	}
	cur, err := h.service.ByCity(r.Context(), city)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.write(w, cur)
}

// Recommendations は天気に応じた服装を提案する。
// POST /api/weather/recommendations
func (h *WeatherHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	var req coordsRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.service.Recommend(r.Context(), *req.Lat, *req.Lon)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.write(w, rec)
}
