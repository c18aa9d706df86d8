package weather

import (
	"context"
	"strings"
)

// Recommendation は天気に応じた服装の提案。
type Recommendation struct {
	Weather         *Current  `json:"weather"`
	Recommendations []string  `json:"recommendations"`
	Location        *Location `json:"location"`
}

// Location は提案の対象座標。
type Location struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Name string  `json:"name,omitempty"`
}

// Recommend は現在の天気を取得し、気温帯と天候から服装を提案する。
func (c *Client) Recommend(ctx context.Context, lat, lon float64) (*Recommendation, error) {
	cur, err := c.Current(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	return &Recommendation{
		Weather:         cur,
		Recommendations: Suggest(cur.Temperature, cur.Condition),
		Location:        &Location{Lat: lat, Lon: lon, Name: cur.Location},
	}, nil
}

// Suggest は気温（摂氏）と天候から服装の候補を返す。
// 気温は10度・20度・30度で区切り、雨・雪・晴れの場合は小物を追加する。
func Suggest(temperature int, condition string) []string {
	var out []string
	switch {
	case temperature < 10:
		out = append(out, "Heavy coat or jacket", "Warm sweater", "Long pants", "Closed shoes", "Scarf and gloves")
	case temperature < 20:
		out = append(out, "Light jacket or cardigan", "Long sleeves", "Jeans or long pants", "Comfortable shoes")
	case temperature < 30:
		out = append(out, "Light shirt or blouse", "Light pants or jeans", "Comfortable shoes")
	default:
		out = append(out, "Lightweight clothing", "Shorts or light dress", "Sandals or breathable shoes", "Sun hat")
	}

	cond := strings.ToLower(condition)
	switch {
	case strings.Contains(cond, "rain"), strings.Contains(cond, "drizzle"), strings.Contains(cond, "thunderstorm"):
		out = append(out, "Umbrella", "Waterproof jacket", "Water-resistant shoes")
	case strings.Contains(cond, "snow"):
		out = append(out, "Waterproof boots", "Insulated clothing", "Hat and gloves")
	case strings.Contains(cond, "clear"), strings.Contains(cond, "sun"):
		out = append(out, "Sunglasses", "Sun hat", "Light colors")
	}
	return out
}
