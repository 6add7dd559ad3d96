package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CleanJSON strips code-fence markers and surrounding prose from a model
// reply, keeping the first '{' through the last '}'.
func CleanJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```JSON")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.TrimSpace(strings.Trim(raw, "`"))
	if strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}") {
		return raw
	}
	start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

// ExtractYear concatenates every digit of v and returns the first four-digit
// window starting with 19 or 20, or "".
func ExtractYear(v string) string {
	var digits strings.Builder
	for _, r := range v {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	for i := 0; i+4 <= len(d); i++ {
		if w := d[i : i+4]; strings.HasPrefix(w, "19") || strings.HasPrefix(w, "20") {
			return w
		}
	}
	return ""
}

func coerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		lower := strings.ToLower(strings.TrimSpace(val))
		return lower == "true" || lower == "yes" || lower == "1" || lower == "是"
	case float64:
		return val != 0
	case int:
		return val != 0
	default:
		return false
	}
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		trimmed := strings.TrimSuffix(strings.TrimSpace(val), "分")
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		return fmt.Sprintf("%v", v)
	}
}
