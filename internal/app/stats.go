package app

import (
	"context"
	"fmt"

	"github.com/Zerofisher/wordchain/pkg/query"
	"github.com/Zerofisher/wordchain/stats"
)

// LoadStats feeds every word (and, if followers is set, every alpha word's
// follower list) into a stats manager. A non-empty filter expression limits
// the words considered.
func LoadStats(ctx context.Context, engine query.QueryEngine, filterStr string, followers bool) (*stats.Manager, error) {
	filterFunc, err := CompileDisplayFilter(filterStr)
	if err != nil {
		return nil, fmt.Errorf("error compiling display filter: %w", err)
	}

	words, err := engine.GetWords(ctx, query.WordFilter{SortBy: "token", SortOrder: "asc"})
	if err != nil {
		return nil, fmt.Errorf("error querying words: %w", err)
	}

	mgr := stats.NewManager()
	for _, w := range words {
		if filterFunc != nil && !filterFunc(w) {
			continue
		}
		mgr.ProcessWord(w)
		if !followers || !w.Class.IsAlpha() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fcs, err := engine.FollowersWithCounts(ctx, w.Token)
		if err != nil {
			return nil, fmt.Errorf("error querying followers of %q: %w", w.Token, err)
		}
		mgr.ProcessFollowers(w.Token, fcs)
	}
	return mgr, nil
}
