package retry

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Reporter logs exhausted retries at most once per interval for each key.
// A nil *Reporter discards reports.
type Reporter struct {
	interval time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	byKey map[string]*rate.Sometimes
}

func NewReporter(logger *zap.Logger, interval time.Duration) *Reporter {
	return &Reporter{
		interval: interval,
		logger:   logger.With(zap.String("component", "retry")),
		byKey:    map[string]*rate.Sometimes{},
	}
}

func (r *Reporter) Report(key string, err error) {
	if r == nil {
		return
	}
	r.limiter(key).Do(func() {
		r.logger.Warn("backend unreachable after retries",
			zap.String("key", key),
			zap.Error(err),
		)
	})
}

func (r *Reporter) limiter(key string) *rate.Sometimes {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byKey[key]
	if !ok {
		s = &rate.Sometimes{Interval: r.interval}
		r.byKey[key] = s
	}
	return s
}
