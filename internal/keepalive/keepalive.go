// Package keepalive pings the service's own external URL on an interval so
// hosting platforms that idle out dormant web processes keep it warm.
package keepalive

import (
	"context"
	"log"
	"net/http"
	"time"
)

type Worker struct {
	url      string
	interval time.Duration
	client   *http.Client
}

func New(url string, interval time.Duration) *Worker {
	return &Worker{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *Worker) Start(ctx context.Context) {
	if w.url == "" {
		return
	}
	log.Printf("[KeepAlive] pinging %s every %s", w.url, w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ping(ctx)
		}
	}
}

func (w *Worker) ping(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.url, nil)
	if err != nil {
		log.Printf("[KeepAlive] bad request: %v", err)
		return
	}
	resp, err := w.client.Do(req)
	if err != nil {
		log.Printf("[KeepAlive] ping failed: %v", err)
		return
	}
	resp.Body.Close()
}
