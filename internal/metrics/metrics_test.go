package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordQuerySuccess_IncrementsCounter はクエリ成功カウンタが増加することを検証する。
func TestRecordQuerySuccess_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordQuerySuccess()
	c.RecordQuerySuccess()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "genie_query_success_total" {
			found = true
			if len(mf.GetMetric()) != 1 {
				t.Fatalf("expected 1 metric, got %d", len(mf.GetMetric()))
			}
			val := mf.GetMetric()[0].GetCounter().GetValue()
			if val != 2 {
				t.Errorf("query_success_total = %v, want 2", val)
			}
		}
	}
	if !found {
		t.Error("genie_query_success_total metric not found")
	}
}

// TestRecordQueryDegraded_IncrementsCounter は劣化応答カウンタが増加することを検証する。
func TestRecordQueryDegraded_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordQueryDegraded()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "genie_query_degraded_total" {
			found = true
			val := mf.GetMetric()[0].GetCounter().GetValue()
			if val != 1 {
				t.Errorf("query_degraded_total = %v, want 1", val)
			}
		}
	}
	if !found {
		t.Error("genie_query_degraded_total metric not found")
	}
}

// TestRecordValidationReject_IncrementsCounterWithLabel は検証拒否カウンタが
// 理由ラベル付きで増加することを検証する。
func TestRecordValidationReject_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordValidationReject("forbidden_keyword")
	c.RecordValidationReject("forbidden_keyword")
	c.RecordValidationReject("multiple_statements")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "genie_validation_reject_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
			for _, m := range mf.GetMetric() {
				label := m.GetLabel()[0].GetValue()
				val := m.GetCounter().GetValue()
				switch label {
				case "forbidden_keyword":
					if val != 2 {
						t.Errorf("validation_reject_total{reason=forbidden_keyword} = %v, want 2", val)
					}
				case "multiple_statements":
					if val != 1 {
						t.Errorf("validation_reject_total{reason=multiple_statements} = %v, want 1", val)
					}
				default:
					t.Errorf("unexpected label value: %s", label)
				}
			}
		}
	}
	if !found {
		t.Error("genie_validation_reject_total metric not found")
	}
}

// TestRecordSourceCounters_LabelledBySourceID はソース別カウンタが
// ソースIDラベル付きで増加することを検証する。
func TestRecordSourceCounters_LabelledBySourceID(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSourceSuccess("hcms-core")
	c.RecordSourceSuccess("hcms-core")
	c.RecordSourceFailure("pharma-pulse")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	var successVal, failureVal float64
	for _, mf := range metrics {
		switch mf.GetName() {
		case "genie_source_success_total":
			successVal = mf.GetMetric()[0].GetCounter().GetValue()
			if got := mf.GetMetric()[0].GetLabel()[0].GetValue(); got != "hcms-core" {
				t.Errorf("success label = %q, want hcms-core", got)
			}
		case "genie_source_failure_total":
			failureVal = mf.GetMetric()[0].GetCounter().GetValue()
			if got := mf.GetMetric()[0].GetLabel()[0].GetValue(); got != "pharma-pulse" {
				t.Errorf("failure label = %q, want pharma-pulse", got)
			}
		}
	}

	if successVal != 2 {
		t.Errorf("source_success_total = %v, want 2", successVal)
	}
	if failureVal != 1 {
		t.Errorf("source_failure_total = %v, want 1", failureVal)
	}
}

// TestRecordSourceLatency_ObservesHistogram はソース別レイテンシのヒストグラムに
// 値が記録されることを検証する。
func TestRecordSourceLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSourceLatency("hcms-core", 100*time.Millisecond)
	c.RecordSourceLatency("hcms-core", 2*time.Second)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "genie_source_latency_seconds" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 2 {
				t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
			}
			// 合計は0.1 + 2.0 = 2.1秒
			if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
				t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
			}
		}
	}
	if !found {
		t.Error("genie_source_latency_seconds metric not found")
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	// いくつかのメトリクスを記録
	c.RecordQuerySuccess()
	c.RecordQueryDegraded()
	c.RecordValidationReject("forbidden_keyword")
	c.RecordSourceSuccess("hcms-core")
	c.RecordSourceLatency("hcms-core", 500*time.Millisecond)
	c.RecordGenerationLatency(800 * time.Millisecond)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	// Prometheus形式のメトリクスが含まれていることを確認
	expectedMetrics := []string{
		"genie_query_success_total",
		"genie_query_degraded_total",
		"genie_validation_reject_total",
		"genie_source_success_total",
		"genie_source_latency_seconds",
		"genie_generation_latency_seconds",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestCollector_ImplementsMetricsCollectorInterface はCollectorがMetricsCollectorインターフェースを実装することを検証する。
func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	reg := prometheus.NewRegistry()
	var _ MetricsCollector = NewCollector(reg)
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordQuerySuccess()
	c2.RecordQuerySuccess()
	c2.RecordQuerySuccess()

	metrics1, _ := reg1.Gather()
	metrics2, _ := reg2.Gather()

	var val1, val2 float64
	for _, mf := range metrics1 {
		if mf.GetName() == "genie_query_success_total" {
			val1 = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	for _, mf := range metrics2 {
		if mf.GetName() == "genie_query_success_total" {
			val2 = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}

	if val1 != 1 {
		t.Errorf("reg1 query_success = %v, want 1", val1)
	}
	if val2 != 2 {
		t.Errorf("reg2 query_success = %v, want 2", val2)
	}
}
