package llm

import (
	"strings"

	"inferd/internal/repair"
)

const maxTags = 8

// ParseClassification repairs raw model output into a Classification.
// Confidence is clamped to [0,1]; tags are trimmed, lowercased and
// de-duplicated. A missing category is a wrong-shape failure.
func ParseClassification(raw string) (Classification, error) {
	obj, err := repair.Object(raw)
	if err != nil {
		return EmptyClassification(), err
	}
	category := strings.TrimSpace(obj.Get("category").String())
	if category == "" {
		return EmptyClassification(), &repair.Failure{Reason: repair.ReasonWrongShape, Detail: "missing category"}
	}
	out := Classification{Category: category, Tags: []string{}}

	seen := map[string]bool{}
	for _, t := range obj.Get("tags").Array() {
		tag := strings.ToLower(strings.TrimSpace(t.String()))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out.Tags = append(out.Tags, tag)
		if len(out.Tags) == maxTags {
			break
		}
	}

	c := obj.Get("confidence").Float()
	switch {
	case c < 0:
		c = 0
	case c > 1:
		// some models answer in percent
		if c <= 100 {
			c = c / 100
		} else {
			c = 1
		}
	}
	out.Confidence = c
	return out, nil
}
