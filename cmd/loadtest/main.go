// Нагрузочный прогон витрины: оформляет заказы через HTTP API и считает
// латентности и классы исходов по каждому вызову.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	idempotencyHeader = "Idempotency-Key"
	defaultQty        = int32(1)
)

type loadMode string

const (
	modeCheckout       loadMode = "checkout"
	modeCheckoutCancel loadMode = "checkout-cancel"
)

// Классы исходов вызова; out_of_stock считается отдельно, потому что под
// нагрузкой исчерпание остатка — штатный ответ, а не сбой сервиса.
const (
	outcomeOK         = "ok"
	outcomeOutOfStock = "out_of_stock"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	productID   string
	qty         int32
	couponCode  string
	customerTag string
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls      int64            `json:"calls"`
	Success    int64            `json:"success"`
	OutOfStock int64            `json:"out_of_stock"`
	Failed     int64            `json:"failed"`
	ErrorRate  float64          `json:"error_rate"`
	Outcomes   map[string]int64 `json:"outcomes"`
	LatencyMs  latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt          time.Time               `json:"started_at"`
	DurationSeconds    float64                 `json:"duration_seconds"`
	TotalScenarios     int64                   `json:"total_scenarios"`
	SuccessScenarios   int64                   `json:"success_scenarios"`
	OutOfStockOutcomes int64                   `json:"out_of_stock_outcomes"`
	FailedScenarios    int64                   `json:"failed_scenarios"`
	ErrorRate          float64                 `json:"error_rate"`
	RPS                float64                 `json:"rps"`
	ScenarioLatencyMs  latencySummary          `json:"scenario_latency_ms"`
	Methods            map[string]methodReport `json:"methods"`
}

// series — накопленные наблюдения одного метода.
type series struct {
	calls      int64
	success    int64
	outOfStock int64
	failed     int64
	outcomes   map[string]int64
	latencies  []float64
}

func (s *series) observe(latency time.Duration, outcome string) {
	s.calls++
	switch outcome {
	case outcomeOK:
		s.success++
	case outcomeOutOfStock:
		s.outOfStock++
	default:
		s.failed++
	}
	s.outcomes[outcome]++
	s.latencies = append(s.latencies, float64(latency.Microseconds())/1000.0)
}

func (s *series) snapshot() methodReport {
	outcomes := make(map[string]int64, len(s.outcomes))
	for outcome, count := range s.outcomes {
		outcomes[outcome] = count
	}
	return methodReport{
		Calls:      s.calls,
		Success:    s.success,
		OutOfStock: s.outOfStock,
		Failed:     s.failed,
		ErrorRate:  ratio(s.failed, s.calls),
		Outcomes:   outcomes,
		LatencyMs:  summarizeLatencies(s.latencies),
	}
}

// recorder собирает наблюдения воркеров; потокобезопасен.
type recorder struct {
	mu      sync.Mutex
	methods map[string]*series
}

func newRecorder() *recorder {
	return &recorder{methods: make(map[string]*series)}
}

func (r *recorder) record(method string, latency time.Duration, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.methods[method]
	if !ok {
		s = &series{outcomes: make(map[string]int64)}
		r.methods[method] = s
	}
	s.observe(latency, outcome)
}

func (r *recorder) summarize(startedAt time.Time, duration time.Duration) report {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(r.methods)),
	}

	if scenario := r.methods["scenario"]; scenario != nil {
		result.TotalScenarios = scenario.calls
		result.SuccessScenarios = scenario.success
		result.OutOfStockOutcomes = scenario.outOfStock
		result.FailedScenarios = scenario.failed
		result.ErrorRate = ratio(scenario.failed, scenario.calls)
		result.ScenarioLatencyMs = summarizeLatencies(scenario.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, s := range r.methods {
		result.Methods[name] = s.snapshot()
	}

	return result
}

func parseConfig() (config, error) {
	var (
		cfg           config
		modeValue     string
		timeoutValue  string
		durationValue string
		qtyValue      int
	)

	flag.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080", "storefront API base URL")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	flag.StringVar(&modeValue, "mode", string(modeCheckout), "load mode: checkout | checkout-cancel")
	flag.IntVar(&cfg.cancelRate, "cancel-rate", 0, "cancel probability in percent for checkout mode (0..100)")
	flag.StringVar(&cfg.productID, "product-id", "", "product id to order (required)")
	flag.IntVar(&qtyValue, "qty", int(defaultQty), "item quantity per order")
	flag.StringVar(&cfg.couponCode, "coupon", "", "optional coupon code applied to every order")
	flag.StringVar(&cfg.customerTag, "customer-tag", "load", "customer name prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	cfg.qty = int32(qtyValue)
	cfg.baseURL = strings.TrimRight(cfg.baseURL, "/")

	switch {
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.qty <= 0:
		return cfg, errors.New("qty must be > 0")
	case cfg.cancelRate < 0 || cfg.cancelRate > 100:
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	case cfg.baseURL == "":
		return cfg, errors.New("base-url is required")
	case strings.TrimSpace(cfg.productID) == "":
		return cfg, errors.New("product-id is required")
	case strings.TrimSpace(cfg.customerTag) == "":
		return cfg, errors.New("customer-tag is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCheckout:
		return modeCheckout, nil
	case modeCheckoutCancel:
		return modeCheckoutCancel, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: cfg.timeout}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	rec := newRecorder()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(client, cfg, id, runID, rec); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	feedJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := rec.summarize(startedAt, duration)
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	printSummary(result, cfg)
	if cfg.outputPath != "" {
		if err := saveReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// feedJobs наполняет канал заданиями. В count-режиме ровно total штук,
// в duration-режиме до истечения таймера, с необязательным потолком total.
func feedJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	deadline := time.NewTimer(cfg.duration)
	defer deadline.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-deadline.C:
			return
		case jobs <- i:
		}
	}
}

type checkoutItemPayload struct {
	ProductID string `json:"product_id"`
	Qty       int32  `json:"qty"`
}

type checkoutPayload struct {
	CustomerName    string                `json:"customer_name"`
	CustomerEmail   string                `json:"customer_email"`
	ShippingAddress string                `json:"shipping_address"`
	ShippingCity    string                `json:"shipping_city"`
	ShippingZip     string                `json:"shipping_zip"`
	CouponCode      string                `json:"coupon_code,omitempty"`
	Items           []checkoutItemPayload `json:"items"`
}

type checkoutReply struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type cancelPayload struct {
	Reason string `json:"reason"`
}

func runScenario(client *http.Client, cfg config, index int, runID string, rec *recorder) error {
	scenarioStart := time.Now()
	scenarioOutcome := outcomeOK
	defer func() {
		rec.record("scenario", time.Since(scenarioStart), scenarioOutcome)
	}()

	customer := fmt.Sprintf("%s-%s-%d", cfg.customerTag, runID, index)
	payload := checkoutPayload{
		CustomerName:    customer,
		CustomerEmail:   customer + "@loadtest.invalid",
		ShippingAddress: "Load Street 1",
		ShippingCity:    "Loadville",
		ShippingZip:     "00000",
		CouponCode:      cfg.couponCode,
		Items: []checkoutItemPayload{
			{ProductID: cfg.productID, Qty: cfg.qty},
		},
	}

	checkoutKey := fmt.Sprintf("lt-checkout-%s-%d", runID, index)
	reply, outcome, err := callCheckout(client, cfg, payload, checkoutKey, rec)
	if err != nil || outcome != outcomeOK {
		scenarioOutcome = outcome
		return err
	}
	if reply.OrderID == "" {
		scenarioOutcome = "empty_order_id"
		return errors.New("checkout response returned empty order id")
	}

	if cfg.mode == modeCheckoutCancel || (cfg.mode == modeCheckout && shouldCancelScenario(index, cfg.cancelRate)) {
		if outcome, err := callCancel(client, cfg, reply.OrderID, rec); err != nil {
			scenarioOutcome = outcome
			return err
		}
	}

	return nil
}

func callCheckout(
	client *http.Client,
	cfg config,
	payload checkoutPayload,
	key string,
	rec *recorder,
) (checkoutReply, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return checkoutReply{}, "encode_error", err
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/api/v1/checkout", bytes.NewReader(body))
	if err != nil {
		return checkoutReply{}, "request_error", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(idempotencyHeader, key)

	resp, err := client.Do(req)
	if err != nil {
		rec.record("Checkout", time.Since(start), "transport_error")
		return checkoutReply{}, "transport_error", err
	}
	defer resp.Body.Close()

	outcome := classifyStatus(resp.StatusCode, http.StatusCreated)
	rec.record("Checkout", time.Since(start), outcome)

	if outcome == outcomeOutOfStock {
		_, _ = io.Copy(io.Discard, resp.Body)
		return checkoutReply{}, outcome, nil
	}
	if outcome != outcomeOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return checkoutReply{}, outcome, fmt.Errorf("checkout returned status %d", resp.StatusCode)
	}

	var reply checkoutReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return checkoutReply{}, "decode_error", err
	}
	return reply, outcomeOK, nil
}

func callCancel(client *http.Client, cfg config, orderID string, rec *recorder) (string, error) {
	body, err := json.Marshal(cancelPayload{Reason: "load-cancel"})
	if err != nil {
		return "encode_error", err
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/admin/orders/%s/cancel", cfg.baseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "request_error", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		rec.record("CancelOrder", time.Since(start), "transport_error")
		return "transport_error", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	outcome := classifyStatus(resp.StatusCode, http.StatusOK)
	rec.record("CancelOrder", time.Since(start), outcome)
	if outcome != outcomeOK {
		return outcome, fmt.Errorf("cancel returned status %d", resp.StatusCode)
	}
	return outcomeOK, nil
}

func classifyStatus(status, expected int) string {
	switch {
	case status == expected:
		return outcomeOK
	case status == http.StatusConflict:
		return outcomeOutOfStock
	default:
		return fmt.Sprintf("http_%d", status)
	}
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}

func saveReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printSummary(result report, cfg config) {
	fmt.Println("Load test summary")
	fmt.Printf("mode=%s run=%s total=%d success=%d out_of_stock=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.OutOfStockOutcomes,
		result.FailedScenarios,
		result.ErrorRate,
	)
	fmt.Printf("duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Printf("scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	names := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name != "scenario" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		stats := result.Methods[name]
		fmt.Printf(
			"%s: calls=%d success=%d out_of_stock=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.OutOfStock,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func summarizeLatencies(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: quantile(sorted, 50),
		P95: quantile(sorted, 95),
		P99: quantile(sorted, 99),
	}
}

// quantile ожидает отсортированный срез; между соседними точками
// интерполирует линейно.
func quantile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
