package health

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// ProbeFunc проверяет один компонент; nil означает, что компонент жив.
type ProbeFunc func() error

// ProbeResult результат одной проверки в ответе /healthz.
type ProbeResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// Report сводка по всем зарегистрированным проверкам.
type Report struct {
	Status        string                 `json:"status"`
	Version       string                 `json:"version,omitempty"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	CheckedAt     time.Time              `json:"checked_at"`
	Probes        map[string]ProbeResult `json:"probes,omitempty"`
}

const (
	statusOK   = "ok"
	statusFail = "fail"
)

// Registry держит именованные проверки и отдаёт их состояние по HTTP.
// Регистрация потокобезопасна, проверки выполняются на каждый запрос.
type Registry struct {
	mu      sync.RWMutex
	probes  map[string]ProbeFunc
	version string
	started time.Time
}

// NewRegistry создаёт реестр проверок для служебного сервера.
func NewRegistry(version string) *Registry {
	return &Registry{
		probes:  make(map[string]ProbeFunc),
		version: version,
		started: time.Now(),
	}
}

// Register добавляет проверку компонента под именем name.
func (r *Registry) Register(name string, probe ProbeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[name] = probe
}

func (r *Registry) snapshot() (names []string, probes map[string]ProbeFunc) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	probes = make(map[string]ProbeFunc, len(r.probes))
	for name, probe := range r.probes {
		names = append(names, name)
		probes[name] = probe
	}
	sort.Strings(names)
	return names, probes
}

func (r *Registry) run() Report {
	names, probes := r.snapshot()

	report := Report{
		Status:        statusOK,
		Version:       r.version,
		UptimeSeconds: int64(time.Since(r.started).Seconds()),
		CheckedAt:     time.Now(),
		Probes:        make(map[string]ProbeResult, len(names)),
	}

	for _, name := range names {
		begin := time.Now()
		err := probes[name]()
		result := ProbeResult{
			Status:    statusOK,
			LatencyMs: time.Since(begin).Milliseconds(),
		}
		if err != nil {
			result.Status = statusFail
			result.Error = err.Error()
			report.Status = statusFail
		}
		report.Probes[name] = result
	}

	return report
}

// ServeHTTP отдаёт полный отчёт: 200 когда все проверки прошли, иначе 503.
func (r *Registry) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	report := r.run()

	code := http.StatusOK
	if report.Status != statusOK {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// Ready проверяет готовность принимать трафик: любая упавшая проверка
// означает not ready.
func (r *Registry) Ready(w http.ResponseWriter, _ *http.Request) {
	_, probes := r.snapshot()

	for _, probe := range probes {
		if err := probe(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Liveness отвечает 200 пока процесс жив.
func Liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
