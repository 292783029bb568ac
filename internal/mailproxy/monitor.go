package mailproxy

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"
)

type targetStatus struct {
	healthy      bool
	failureCount int
	lastCheck    time.Time
}

// Monitor polls each mail-server upstream's health endpoint and maintains
// the set the proxy is allowed to route to. An upstream needs maxFailures
// consecutive failed probes before it is taken out of rotation.
type Monitor struct {
	mu       sync.RWMutex
	targets  []string
	statuses map[string]*targetStatus

	endpoint    string
	interval    time.Duration
	timeout     time.Duration
	maxFailures int

	stopChan chan struct{}
	stopOnce sync.Once
}

func NewMonitor(targets []string, endpoint string) *Monitor {
	if endpoint == "" {
		endpoint = "/health"
	}

	m := &Monitor{
		targets:     targets,
		statuses:    make(map[string]*targetStatus),
		endpoint:    endpoint,
		interval:    10 * time.Second,
		timeout:     5 * time.Second,
		maxFailures: 3,
		stopChan:    make(chan struct{}),
	}

	// Assume healthy until probed, so startup does not block routing.
	for _, target := range targets {
		m.statuses[target] = &targetStatus{healthy: true}
	}

	return m
}

func (m *Monitor) Start() {
	m.checkAll()

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.checkAll()
			case <-m.stopChan:
				return
			}
		}
	}()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
}

func (m *Monitor) checkAll() {
	var wg sync.WaitGroup
	for _, target := range m.targets {
		wg.Add(1)
		go func(t string) {
			defer wg.Done()
			m.probe(t)
		}(target)
	}
	wg.Wait()
}

func (m *Monitor) probe(target string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	ok := false
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target+m.endpoint, nil)
	if err == nil {
		resp, doErr := http.DefaultClient.Do(req)
		if doErr == nil {
			resp.Body.Close()
			ok = resp.StatusCode >= 200 && resp.StatusCode < 400
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	status := m.statuses[target]
	status.lastCheck = time.Now()

	if ok {
		status.failureCount = 0
		if !status.healthy {
			log.Printf("mail-server upstream %s is healthy again", target)
			status.healthy = true
		}
		return
	}

	status.failureCount++
	if status.healthy && status.failureCount >= m.maxFailures {
		log.Printf("mail-server upstream %s marked unhealthy after %d failed probes", target, status.failureCount)
		status.healthy = false
	}
}

// Healthy returns the upstreams currently in rotation.
func (m *Monitor) Healthy() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	healthy := make([]string, 0, len(m.targets))
	for _, target := range m.targets {
		if m.statuses[target].healthy {
			healthy = append(healthy, target)
		}
	}
	return healthy
}

func (m *Monitor) AllHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, target := range m.targets {
		if !m.statuses[target].healthy {
			return false
		}
	}
	return true
}
