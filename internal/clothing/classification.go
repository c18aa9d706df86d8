package clothing

import (
	"encoding/json"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/hitoshi/closetiq/internal/aiclient"
	"github.com/hitoshi/closetiq/internal/model"
)

// toSnapshot はエンジンの分類結果をアイテムに保存するスナップショットへ変換する。
// all_predictionsは{カテゴリ: 確信度}のオブジェクトと配列の両方を受け付ける。
func toSnapshot(c *aiclient.Classification) model.AIClassification {
	snap := model.AIClassification{
		Confidence:     c.Classification.Confidence,
		ModelVersion:   c.ModelVersion,
		AllPredictions: predictions(c.Classification.AllPredictions),
		ProcessingTime: int64(c.ProcessingTimeMs),
		QualityScore:   gjson.GetBytes(c.ImageQuality, "overall_score").Float(),
	}
	if len(snap.AllPredictions) == 0 {
		snap.AllPredictions = []model.Prediction{{
			Category:   c.Classification.PredictedClass,
			Confidence: c.Classification.Confidence,
		}}
	}
	return snap
}

func predictions(raw json.RawMessage) []model.Prediction {
	doc := gjson.ParseBytes(raw)
	var out []model.Prediction
	switch {
	case doc.IsArray():
		doc.ForEach(func(_, v gjson.Result) bool {
			category := v.Get("category").String()
			if category == "" {
				category = v.Get("class").String()
			}
			out = append(out, model.Prediction{Category: category, Confidence: v.Get("confidence").Float()})
			return true
		})
	case doc.IsObject():
		doc.ForEach(func(k, v gjson.Result) bool {
			out = append(out, model.Prediction{Category: k.String(), Confidence: v.Float()})
			return true
		})
		sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	}
	return out
}

// mergeAttributes はエンジンが推定した属性のうち、未設定の項目だけを埋める。
func mergeAttributes(dst *model.ItemAttributes, raw json.RawMessage) {
	doc := gjson.ParseBytes(raw)
	fill := func(field *[]string, path string) {
		if len(*field) > 0 {
			return
		}
		v := doc.Get(path)
		switch {
		case v.IsArray():
			for _, s := range v.Array() {
				if s.String() != "" {
					*field = append(*field, s.String())
				}
			}
		case v.Type == gjson.String && v.String() != "":
			*field = []string{v.String()}
		}
	}
	fill(&dst.Colors, "colors")
	fill(&dst.Patterns, "patterns")
	fill(&dst.Materials, "materials")
	fill(&dst.Season, "season")
	fill(&dst.Occasion, "occasion")
	fill(&dst.Style, "style")
	if dst.Fit == "" {
		dst.Fit = doc.Get("fit").String()
	}
}
