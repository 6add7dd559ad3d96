package model

import "strings"

var degrees = map[string]string{
	"phd":       "phd",
	"doctor":    "phd",
	"博士":        "phd",
	"master":    "master",
	"硕士":        "master",
	"bachelor":  "bachelor",
	"本科":        "bachelor",
	"associate": "associate",
	"大专":        "associate",
	"专科":        "associate",
}

// CanonicalDegree maps a degree label onto the stored vocabulary (phd,
// master, bachelor, associate), or returns "" when the label is unknown.
func CanonicalDegree(s string) string {
	return degrees[strings.ToLower(strings.TrimSpace(s))]
}
