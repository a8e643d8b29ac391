package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/newthinker/cta/internal/backtest"
)

const resultsRoot = "backtests"

// ResultKey returns backtests/<strategy>/<symbol>/<id>.json
func ResultKey(strategy, symbol, id string) string {
	return path.Join(resultsRoot, safeSegment(strategy), safeSegment(symbol), id+".json")
}

// SaveResult stores r as indented JSON and returns its key
func SaveResult(ctx context.Context, st Storage, r *backtest.Result) (string, error) {
	if r == nil || r.ID == "" {
		return "", fmt.Errorf("archive: result has no id")
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("archive: encode result: %w", err)
	}

	key := ResultKey(r.Strategy, r.Symbol, r.ID)
	if err := st.Write(ctx, key, data); err != nil {
		return "", err
	}
	return key, nil
}

// LoadResult reads a result saved by SaveResult
func LoadResult(ctx context.Context, st Storage, key string) (*backtest.Result, error) {
	data, err := st.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	var r backtest.Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("archive: decode %s: %w", key, err)
	}
	return &r, nil
}

// ListResults returns result keys, optionally limited to one strategy
func ListResults(ctx context.Context, st Storage, strategy string) ([]string, error) {
	prefix := resultsRoot + "/"
	if strategy != "" {
		prefix += safeSegment(strategy) + "/"
	}
	keys, err := st.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	out := keys[:0]
	for _, k := range keys {
		if strings.HasSuffix(k, ".json") {
			out = append(out, k)
		}
	}
	return out, nil
}

// safeSegment keeps a name to a single path segment
func safeSegment(s string) string {
	s = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
	if s == "" {
		return "_"
	}
	return s
}
