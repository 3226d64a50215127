package predictor

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/isdelr/burn-detector-be/internal/models"
)

var (
	gradePattern      = regexp.MustCompile(`(?i)\b(primer|segundo|tercer)\s+grado\b`)
	confidenceLabeled = regexp.MustCompile(`(?i)confianza\W{0,4}(\d+(?:[.,]\d+)?)`)
	confidencePercent = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*%`)
)

// ParsePrediction reads the classifier body. The expected shape is
// {grado, confianza, recomendaciones, processedImage?}; when grado or
// confianza is missing they are extracted from the raw text instead.
func ParsePrediction(raw []byte) (models.Prediction, error) {
	var prediction models.Prediction
	var confidenceSet bool

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err == nil {
		prediction.Grade = strings.TrimSpace(stringField(fields["grado"]))
		prediction.Recommendations = recommendationsField(fields["recomendaciones"])
		prediction.ProcessedImage = stringField(fields["processedImage"])
		prediction.Confidence, confidenceSet = numberField(fields["confianza"])
	}

	text := string(raw)
	if prediction.Grade == "" {
		if m := gradePattern.FindStringSubmatch(text); m != nil {
			prediction.Grade = strings.ToUpper(m[1][:1]) + strings.ToLower(m[1][1:]) + " grado"
		}
	}
	if !confidenceSet {
		for _, re := range []*regexp.Regexp{confidenceLabeled, confidencePercent} {
			if m := re.FindStringSubmatch(text); m != nil {
				if v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64); err == nil {
					prediction.Confidence, confidenceSet = v, true
					break
				}
			}
		}
	}

	if prediction.Grade == "" || !confidenceSet {
		return models.Prediction{}, ErrUnparseable
	}
	return prediction, nil
}

func errorMessage(raw []byte, fallback string) string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	if text := strings.TrimSpace(string(raw)); text != "" && len(text) < 512 {
		return text
	}
	return fallback
}

func stringField(v any) string {
	s, _ := v.(string)
	return s
}

func numberField(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(n), "%")), 64)
		return f, err == nil
	}
	return 0, false
}

func recommendationsField(v any) string {
	switch r := v.(type) {
	case string:
		return r
	case []any:
		parts := make([]string, 0, len(r))
		for _, item := range r {
			if s, ok := item.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}
