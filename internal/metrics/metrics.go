package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for the API and the ingestion
// pipeline. This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	pagesCrawledTotal int64
	documentsIngested = make(map[string]int64)
	embeddingsTotal   = make(map[embKey]int64)
	jobTransitions    = make(map[string]int64)

	searchRequestsTotal int64
	searchResultsTotal  int64
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

type embKey struct {
	Model   string
	Success string
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

// RecordPageCrawled counts one fetched page during discovery.
func RecordPageCrawled() {
	mu.Lock()
	defer mu.Unlock()
	pagesCrawledTotal++
}

// RecordDocumentIngested counts a finished document by final status.
func RecordDocumentIngested(status string) {
	mu.Lock()
	defer mu.Unlock()
	documentsIngested[status]++
}

// RecordEmbeddings counts embedded chunks by model and outcome.
func RecordEmbeddings(model string, success bool, count int) {
	if count <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	s := "false"
	if success {
		s = "true"
	}
	embeddingsTotal[embKey{Model: model, Success: s}] += int64(count)
}

// RecordJobTransition counts a job entering a status.
func RecordJobTransition(status string) {
	mu.Lock()
	defer mu.Unlock()
	jobTransitions[status]++
}

// RecordSearch counts one vector search and its result rows.
func RecordSearch(results int) {
	mu.Lock()
	defer mu.Unlock()
	searchRequestsTotal++
	if results > 0 {
		searchResultsTotal += int64(results)
	}
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP quarry_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE quarry_http_requests_total counter\n")

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
		fmt.Fprintf(&b, "quarry_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, requestsTotal[k])
	}

	b.WriteString("# HELP quarry_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE quarry_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP quarry_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE quarry_http_request_duration_ms_count counter\n")

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
		fmt.Fprintf(&b, "quarry_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "quarry_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	b.WriteString("# HELP quarry_pages_crawled_total Pages fetched during discovery\n")
	b.WriteString("# TYPE quarry_pages_crawled_total counter\n")
	fmt.Fprintf(&b, "quarry_pages_crawled_total %d\n", pagesCrawledTotal)

	b.WriteString("# HELP quarry_documents_ingested_total Documents finished by final status\n")
	b.WriteString("# TYPE quarry_documents_ingested_total counter\n")
	var docStatuses []string
	for s := range documentsIngested {
		docStatuses = append(docStatuses, s)
	}
	sort.Strings(docStatuses)
	for _, s := range docStatuses {
		fmt.Fprintf(&b, "quarry_documents_ingested_total{status=\"%s\"} %d\n", s, documentsIngested[s])
	}

	b.WriteString("# HELP quarry_embedded_chunks_total Chunks embedded by model and outcome\n")
	b.WriteString("# TYPE quarry_embedded_chunks_total counter\n")
	var embKeys []embKey
	for k := range embeddingsTotal {
		embKeys = append(embKeys, k)
	}
	sort.Slice(embKeys, func(i, j int) bool {
		if embKeys[i].Model != embKeys[j].Model {
			return embKeys[i].Model < embKeys[j].Model
		}
		return embKeys[i].Success < embKeys[j].Success
	})
	for _, k := range embKeys {
		fmt.Fprintf(&b, "quarry_embedded_chunks_total{model=\"%s\",success=\"%s\"} %d\n",
			k.Model, k.Success, embeddingsTotal[k])
	}

	b.WriteString("# HELP quarry_job_transitions_total Job status transitions\n")
	b.WriteString("# TYPE quarry_job_transitions_total counter\n")
	var statuses []string
	for s := range jobTransitions {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(&b, "quarry_job_transitions_total{status=\"%s\"} %d\n", s, jobTransitions[s])
	}

	b.WriteString("# HELP quarry_search_requests_total Total vector search requests\n")
	b.WriteString("# TYPE quarry_search_requests_total counter\n")
	fmt.Fprintf(&b, "quarry_search_requests_total %d\n", searchRequestsTotal)

	b.WriteString("# HELP quarry_search_results_total Total search result rows returned\n")
	b.WriteString("# TYPE quarry_search_results_total counter\n")
	fmt.Fprintf(&b, "quarry_search_results_total %d\n", searchResultsTotal)

	return b.String()
}
