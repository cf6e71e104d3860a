package deployments

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Groups []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Record string            `yaml:"record"`
			Alert  string            `yaml:"alert"`
			Expr   string            `yaml:"expr"`
			Labels map[string]string `yaml:"labels"`
		} `yaml:"rules"`
	} `yaml:"groups"`
}

// exportedMetrics lists the series the binaries register.
var exportedMetrics = map[string]struct{}{
	"linkreach_http_requests_total":           {},
	"linkreach_http_request_duration_seconds": {},
	"linkreach_http_response_bytes":           {},
	"linkreach_http_in_flight_requests":       {},
	"linkreach_uploads_total":                 {},
	"linkreach_upload_rows_total":             {},
	"linkreach_filter_requests_total":         {},
	"linkreach_generation_latency_ms":         {},
	"linkreach_row_evaluation_errors_total":   {},
	"linkreach_artifacts_written_total":       {},
	"linkreach_artifact_bytes_total":          {},
	"linkreach_sessions_expired_total":        {},
	"linkreach_active_sessions":               {},
	"linkreach_sweep_runs_total":              {},
	"linkreach_sweep_duration_ms":             {},
}

var metricRef = regexp.MustCompile(`\blinkreach_[a-z_]+`)

func TestRecordingRulesReferenceExportedMetrics(t *testing.T) {
	rules := loadRules(t, "linkreach_recording_rules.yaml")

	records := map[string]struct{}{}
	for _, group := range rules.Groups {
		for _, rule := range group.Rules {
			if rule.Record == "" || strings.TrimSpace(rule.Expr) == "" {
				t.Fatalf("group %s has a rule without record or expr", group.Name)
			}
			records[rule.Record] = struct{}{}
			for _, ref := range metricRef.FindAllString(rule.Expr, -1) {
				name := strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(ref, "_bucket"), "_sum"), "_count")
				if _, ok := exportedMetrics[name]; !ok {
					t.Fatalf("record %s references unknown metric %q", rule.Record, ref)
				}
			}
		}
	}

	for _, required := range []string{
		"linkreach:slo_http_error_rate_5m",
		"linkreach:slo_generation_latency_ms_p95",
		"linkreach:slo_generation_failure_ratio_15m",
		"linkreach:slo_sweep_failures_30m",
	} {
		if _, ok := records[required]; !ok {
			t.Fatalf("recording rules missing record %q", required)
		}
	}
}

func TestAlertRulesUseRecordedSeries(t *testing.T) {
	recorded := map[string]struct{}{}
	for _, group := range loadRules(t, "linkreach_recording_rules.yaml").Groups {
		for _, rule := range group.Rules {
			recorded[rule.Record] = struct{}{}
		}
	}

	alerts := loadRules(t, "linkreach_rules.yaml")
	seen := map[string]struct{}{}
	for _, group := range alerts.Groups {
		for _, rule := range group.Rules {
			if rule.Alert == "" {
				t.Fatalf("group %s has a rule without alert name", group.Name)
			}
			seen[rule.Alert] = struct{}{}
			severity := rule.Labels["severity"]
			if severity != "critical" && severity != "warning" {
				t.Fatalf("alert %s severity = %q", rule.Alert, severity)
			}
			series := strings.Fields(rule.Expr)[0]
			if _, ok := recorded[series]; !ok {
				t.Fatalf("alert %s uses unrecorded series %q", rule.Alert, series)
			}
		}
	}
	for _, required := range []string{"LinkReachHTTPErrorRateHigh", "LinkReachGenerationFailuresHigh", "LinkReachSweepFailing"} {
		if _, ok := seen[required]; !ok {
			t.Fatalf("rules missing alert %q", required)
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	content := readAsset(t, "prometheus-scrape.example.yaml")

	var parsed struct {
		RuleFiles     []string `yaml:"rule_files"`
		ScrapeConfigs []struct {
			JobName     string `yaml:"job_name"`
			MetricsPath string `yaml:"metrics_path"`
		} `yaml:"scrape_configs"`
	}
	if err := yaml.Unmarshal(content, &parsed); err != nil {
		t.Fatalf("parse scrape example: %v", err)
	}
	if len(parsed.ScrapeConfigs) == 0 || parsed.ScrapeConfigs[0].JobName != "linkreach-api" {
		t.Fatalf("scrape configs = %#v", parsed.ScrapeConfigs)
	}
	if parsed.ScrapeConfigs[0].MetricsPath != "/api/metrics" {
		t.Fatalf("metrics_path = %q", parsed.ScrapeConfigs[0].MetricsPath)
	}
	if strings.Join(parsed.RuleFiles, ",") != "linkreach_recording_rules.yaml,linkreach_rules.yaml" {
		t.Fatalf("rule_files = %v", parsed.RuleFiles)
	}
}

func loadRules(t *testing.T, name string) ruleFile {
	t.Helper()
	var rules ruleFile
	if err := yaml.Unmarshal(readAsset(t, name), &rules); err != nil {
		t.Fatalf("parse %s: %v", name, err)
	}
	if len(rules.Groups) == 0 {
		t.Fatalf("%s has no rule groups", name)
	}
	return rules
}

func readAsset(t *testing.T, name string) []byte {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(repoRoot(t), "deployments", "observability", "prometheus", name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return content
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
