package classifier

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

const (
	parserStrict    = "strict"
	parserRepair    = "repair"
	parserHeuristic = "heuristic"
	parserDefault   = "default"
)

var fencedVerdict = regexp.MustCompile("```(?:json)?\\s*\\{[^}]*\"isdistraction\"\\s*:\\s*(true|false)")

type modelAnswer struct {
	IsDistraction *bool    `json:"isDistraction"`
	Confidence    *float64 `json:"confidence"`
	Reason        string   `json:"reason"`
}

// parseVerdict tries strict JSON, then repaired JSON, then sentinel scanning.
func parseVerdict(raw string) (Verdict, bool) {
	body := jsonBody(raw)
	if v, ok := decodeAnswer(body); ok {
		v.Parser = parserStrict
		return v, true
	}

	if body != "" {
		if fixed, err := jsonrepair.JSONRepair(body); err == nil {
			if v, ok := decodeAnswer(fixed); ok {
				v.Parser = parserRepair
				return v, true
			}
		}
	}

	if distraction, ok := scanSentinels(raw); ok {
		return Verdict{
			IsDistraction: distraction,
			Reason:        defaultReason(distraction),
			Parser:        parserHeuristic,
		}, true
	}
	return Verdict{}, false
}

// jsonBody strips markdown fences and surrounding prose down to the
// outermost object. It returns "" when no opening brace exists.
func jsonBody(raw string) string {
	s := strings.TrimSpace(raw)
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(s, "}")
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

func decodeAnswer(body string) (Verdict, bool) {
	if body == "" {
		return Verdict{}, false
	}
	var a modelAnswer
	if err := json.Unmarshal([]byte(body), &a); err != nil || a.IsDistraction == nil {
		return Verdict{}, false
	}

	confidence := 0.0
	if a.Confidence != nil {
		confidence = min(max(*a.Confidence, 0), 1)
	}
	reason := strings.TrimSpace(a.Reason)
	if reason == "" {
		reason = defaultReason(*a.IsDistraction)
	}
	return Verdict{
		IsDistraction: *a.IsDistraction,
		Confidence:    &confidence,
		Reason:        reason,
	}, true
}

func scanSentinels(raw string) (bool, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(raw))

	switch {
	case strings.Contains(cleaned, `"isdistraction": true`), strings.Contains(cleaned, `"isdistraction":true`):
		return true, true
	case strings.Contains(cleaned, `"isdistraction": false`), strings.Contains(cleaned, `"isdistraction":false`):
		return false, true
	}

	switch cleaned {
	case "true", "yes", "1":
		return true, true
	case "false", "no", "0":
		return false, true
	}

	if m := fencedVerdict.FindStringSubmatch(cleaned); m != nil {
		return m[1] == "true", true
	}
	return false, false
}

func defaultReason(distraction bool) string {
	if distraction {
		return reasonDistraction
	}
	return reasonRelevant
}
