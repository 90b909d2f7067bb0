package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for HTTP requests and the exam
// generation pipeline. This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)
	llmGenerations = make(map[llmKey]int64)
	jobsFinished   = make(map[string]int64)
	artifactsTotal = make(map[string]int64)
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type llmKey struct {
	Provider string
	Model    string
	Success  string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordLLMGeneration increments content-generation call counters.
func RecordLLMGeneration(provider, model string, success bool) {
	mu.Lock()
	defer mu.Unlock()

	s := "false"
	if success {
		s = "true"
	}
	key := llmKey{Provider: provider, Model: model, Success: s}
	llmGenerations[key]++
}

// RecordJobFinished increments the counter of jobs that reached a
// terminal status.
func RecordJobFinished(status string) {
	mu.Lock()
	defer mu.Unlock()
	jobsFinished[status]++
}

// RecordArtifact increments the counter of persisted artifacts by kind.
func RecordArtifact(kind string) {
	mu.Lock()
	defer mu.Unlock()
	artifactsTotal[kind]++
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP examgen_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE examgen_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		v := requestsTotal[k]
		fmt.Fprintf(&b, "examgen_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, v)
	}

	b.WriteString("# HELP examgen_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE examgen_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP examgen_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE examgen_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		sum := latencyMsSum[k]
		cnt := latencyMsCount[k]
		fmt.Fprintf(&b, "examgen_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, sum)
		fmt.Fprintf(&b, "examgen_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, cnt)
	}

	// Content generation metrics
	b.WriteString("# HELP examgen_llm_generations_total Total content-generation calls\n")
	b.WriteString("# TYPE examgen_llm_generations_total counter\n")

	var llmKeys []llmKey
	for k := range llmGenerations {
		llmKeys = append(llmKeys, k)
	}
	sort.Slice(llmKeys, func(i, j int) bool {
		if llmKeys[i].Provider != llmKeys[j].Provider {
			return llmKeys[i].Provider < llmKeys[j].Provider
		}
		if llmKeys[i].Model != llmKeys[j].Model {
			return llmKeys[i].Model < llmKeys[j].Model
		}
		return llmKeys[i].Success < llmKeys[j].Success
	})

	for _, k := range llmKeys {
		v := llmGenerations[k]
		fmt.Fprintf(&b, "examgen_llm_generations_total{provider=\"%s\",model=\"%s\",success=\"%s\"} %d\n",
			k.Provider, k.Model, k.Success, v)
	}

	// Job and artifact metrics
	b.WriteString("# HELP examgen_jobs_finished_total Jobs that reached a terminal status\n")
	b.WriteString("# TYPE examgen_jobs_finished_total counter\n")

	var statuses []string
	for s := range jobsFinished {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(&b, "examgen_jobs_finished_total{status=\"%s\"} %d\n", s, jobsFinished[s])
	}

	b.WriteString("# HELP examgen_artifacts_total Persisted artifacts by kind\n")
	b.WriteString("# TYPE examgen_artifacts_total counter\n")

	var kinds []string
	for k := range artifactsTotal {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(&b, "examgen_artifacts_total{kind=\"%s\"} %d\n", k, artifactsTotal[k])
	}

	return b.String()
}
