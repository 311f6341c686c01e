package http

import (
	"context"

	"go.uber.org/zap"

	"github.com/weathermen/prometheus-weathermen/internal/config"
	"github.com/weathermen/prometheus-weathermen/internal/provider"
)

// fetchAll runs every task concurrently and collects the successful
// observations in task order. Provider failures are logged and dropped so one
// broken upstream cannot spoil the scrape.
//
// Upstream fetches run on a context detached from the scrape: a scraper that
// hangs up early must not abort in-flight provider calls, otherwise the body
// cache never warms and the next scrape starts cold again.
func fetchAll(ctx context.Context, tasks []config.Task, logger *zap.Logger) []provider.Weather {
	type result struct {
		index   int
		weather provider.Weather
		err     error
	}

	upstream := context.WithoutCancel(ctx)
	results := make(chan result, len(tasks))
	for i, task := range tasks {
		go func(i int, task config.Task) {
			w, err := task.Provider.Fetch(upstream, task.Request)
			results <- result{index: i, weather: w, err: err}
		}(i, task)
	}

	collected := make([]*provider.Weather, len(tasks))
	for range tasks {
		select {
		case r := <-results:
			if r.err != nil {
				logger.Error("provider fetch failed",
					zap.String("provider", tasks[r.index].Provider.ID()),
					zap.String("location", tasks[r.index].Request.Name),
					zap.Error(r.err),
				)
				continue
			}
			collected[r.index] = &r.weather
		case <-ctx.Done():
			return flatten(collected)
		}
	}
	return flatten(collected)
}

func flatten(collected []*provider.Weather) []provider.Weather {
	out := make([]provider.Weather, 0, len(collected))
	for _, w := range collected {
		if w != nil {
			out = append(out, *w)
		}
	}
	return out
}
