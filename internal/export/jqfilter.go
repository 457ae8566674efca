package export

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// ApplyJQFilter runs a jq expression against the JSON export document and
// returns the re-encoded result(s). Supplements export --format json with
// an optional --jq post-filter, since the discovered surface is often
// large and an operator typically wants one slice of it (e.g.
// '.paths | keys').
func ApplyJQFilter(doc *Document, expr string) ([]byte, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse jq expression: %w", err)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var input any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, err
	}

	var results []any
	iter := query.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, fmt.Errorf("jq evaluation: %w", err)
		}
		results = append(results, v)
	}

	if len(results) == 1 {
		return json.MarshalIndent(results[0], "", "  ")
	}
	return json.MarshalIndent(results, "", "  ")
}
