// Package normalize turns the language model's JSON reply into a canonical
// candidate profile. Normalization is total: malformed or missing fields
// degrade to empty values and never abort the caller.
package normalize

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/ResumeVault/internal/logger"
	"github.com/dharsanguruparan/ResumeVault/internal/model"
	"github.com/dharsanguruparan/ResumeVault/internal/skills"
	"github.com/dharsanguruparan/ResumeVault/internal/tier"
)

// Result is the canonical form of one model reply.
type Result struct {
	model.Profile
	Qualified bool   `json:"qualified"`
	Score     *int   `json:"score"`
	Reason    string `json:"reason"`
}

// JSON encodes r for the document's parse_result column.
func (r Result) JSON() json.RawMessage {
	data, err := json.Marshal(r)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// output is the tagged schema of the reply after nested blocks are flattened.
// Fields the model formats inconsistently are decoded as any and read through
// the coerce helpers.
type output struct {
	Qualified      any    `mapstructure:"is_qualified"`
	Name           string `mapstructure:"name"`
	Phone          string `mapstructure:"phone"`
	Email          string `mapstructure:"email"`
	Institution    string `mapstructure:"university"`
	Tier           string `mapstructure:"school_tier"`
	Degree         string `mapstructure:"degree"`
	Major          string `mapstructure:"major"`
	GraduationYear any    `mapstructure:"graduation_year"`
	Skills         any    `mapstructure:"skills"`
	WorkExperience any    `mapstructure:"work_experience"`
	Projects       any    `mapstructure:"projects"`
	Score          any    `mapstructure:"score"`
	Reason         string `mapstructure:"reason"`
}

// keyAliases maps alternative key spellings onto the schema keys.
var keyAliases = map[string]string{
	"qualified":          "is_qualified",
	"isqualified":        "is_qualified",
	"institution":        "university",
	"school":             "university",
	"college":            "university",
	"tier":               "school_tier",
	"university_tier":    "school_tier",
	"institution_tier":   "school_tier",
	"graduation_time":    "graduation_year",
	"graduation_date":    "graduation_year",
	"skill":              "skills",
	"skill_tags":         "skills",
	"experience":         "work_experience",
	"work_experiences":   "work_experience",
	"project_experience": "projects",
	"project":            "projects",
	"fit_score":          "score",
	"evaluation_reason":  "reason",
}

// nestedBlocks are flattened into the top level, outer keys winning.
var nestedBlocks = []string{"candidate_info", "json_data", "education", "evaluation", "contact"}

// Normalizer canonicalizes replies using a tier resolver for backfill.
type Normalizer struct {
	resolver *tier.Resolver
	logger   *zap.Logger
}

// New constructs a Normalizer. A nil resolver uses the default tables.
func New(resolver *tier.Resolver, log *zap.Logger) *Normalizer {
	if resolver == nil {
		resolver = tier.Default()
	}
	return &Normalizer{resolver: resolver, logger: logger.OrNop(log)}
}

var defaultNormalizer = New(nil, nil)

// Normalize canonicalizes raw with the default resolver.
func Normalize(raw string) Result {
	return defaultNormalizer.Normalize(raw)
}

// Normalize canonicalizes raw. It never fails.
func (n *Normalizer) Normalize(raw string) Result {
	res := Result{Profile: model.Profile{Skills: []string{}}}

	var data map[string]any
	if err := json.Unmarshal([]byte(CleanJSON(raw)), &data); err != nil {
		n.logger.Debug("model reply is not a json object",
			zap.Error(err),
			zap.String("preview", logger.TruncateForLog(raw, 200)),
		)
		res.WorkExperience = emptyList
		res.Projects = emptyList
		return res
	}

	var out output
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err == nil {
		if err := decoder.Decode(flatten(data)); err != nil {
			n.logger.Debug("model reply decoded partially", zap.Error(err))
		}
	}

	res.Name = strings.TrimSpace(out.Name)
	res.Phone = strings.TrimSpace(out.Phone)
	res.Email = strings.TrimSpace(out.Email)
	res.Institution = strings.TrimSpace(out.Institution)
	res.Degree = strings.TrimSpace(out.Degree)
	if d := model.CanonicalDegree(res.Degree); d != "" {
		res.Degree = d
	}
	res.Major = strings.TrimSpace(out.Major)
	res.GraduationYear = ExtractYear(coerceString(out.GraduationYear))
	res.Skills = skills.Normalize(out.Skills)
	res.WorkExperience = toList(out.WorkExperience)
	res.Projects = toList(out.Projects)
	res.Tier = string(n.ResolveTier(out.Tier, res.Institution))
	res.Qualified = coerceBool(out.Qualified)
	res.Score = coerceScore(out.Score)
	res.Reason = strings.TrimSpace(out.Reason)
	return res
}

// ResolveTier normalizes a supplied tier label, falling back to resolving the
// institution when the label is absent or unrecognized.
func (n *Normalizer) ResolveTier(label, institution string) tier.Tier {
	if t := tier.NormalizeLabel(label); t != tier.Unknown {
		return t
	}
	return n.resolver.Resolve(institution)
}

func flatten(data map[string]any) map[string]any {
	flat := make(map[string]any, len(data))
	put := func(key string, v any) {
		key = strings.ToLower(strings.TrimSpace(key))
		if alias, ok := keyAliases[key]; ok {
			key = alias
		}
		if existing, ok := flat[key]; ok && !isBlank(existing) {
			return
		}
		flat[key] = v
	}

	for k, v := range data {
		put(k, v)
	}
	for _, block := range nestedBlocks {
		nested := asMap(data[block])
		if nested == nil {
			continue
		}
		for k, v := range nested {
			put(k, v)
		}
		// json_data may itself carry an education block.
		if inner := asMap(nested["education"]); inner != nil {
			for k, v := range inner {
				put(k, v)
			}
		}
	}
	return flat
}

// asMap accepts an object or a list whose first element is an object.
func asMap(v any) map[string]any {
	switch val := v.(type) {
	case map[string]any:
		return val
	case []any:
		if len(val) > 0 {
			if m, ok := val[0].(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	}
	return false
}

var emptyList = json.RawMessage(`[]`)

func toList(v any) json.RawMessage {
	var list []any
	switch val := v.(type) {
	case nil:
		return emptyList
	case []any:
		list = val
	case string:
		if strings.TrimSpace(val) == "" {
			return emptyList
		}
		list = []any{strings.TrimSpace(val)}
	default:
		list = []any{val}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return emptyList
	}
	return data
}

func coerceScore(v any) *int {
	f := coerceFloat(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	score := int(math.Round(math.Max(0, math.Min(100, f))))
	return &score
}
