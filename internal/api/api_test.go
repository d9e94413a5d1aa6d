package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/ingestion"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/retrieval"
)

type stubQuery struct {
	resp retrieval.QueryResponse
	err  error
	last retrieval.QueryRequest
}

func (s *stubQuery) Answer(ctx context.Context, req retrieval.QueryRequest) (retrieval.QueryResponse, error) {
	s.last = req
	return s.resp, s.err
}

type stubIngest struct {
	result       ingestion.DocumentResult
	lastFilename string
	lastBucket   bucket.Bucket
	lastFlags    ingestion.StageFlags

	batchResult     ingestion.BatchResult
	lastBatchScope  []bucket.Bucket
	lastBatchOpts   ingestion.BatchOptions
	batchInvocation string
}

func (s *stubIngest) ProcessDocument(ctx context.Context, data []byte, filename string, b bucket.Bucket, flags ingestion.StageFlags) ingestion.DocumentResult {
	s.lastFilename = filename
	s.lastBucket = b
	s.lastFlags = flags
	return s.result
}

func (s *stubIngest) ProcessAllBuckets(ctx context.Context, source ingestion.DocumentSource, flags ingestion.StageFlags, opts ingestion.BatchOptions) ingestion.BatchResult {
	s.batchInvocation = "all"
	s.lastBatchScope = bucket.All()
	s.lastBatchOpts = opts
	s.lastFlags = flags
	return s.batchResult
}

func (s *stubIngest) ProcessBuckets(ctx context.Context, source ingestion.DocumentSource, buckets []bucket.Bucket, flags ingestion.StageFlags, opts ingestion.BatchOptions) ingestion.BatchResult {
	s.batchInvocation = "scoped"
	s.lastBatchScope = buckets
	s.lastBatchOpts = opts
	s.lastFlags = flags
	return s.batchResult
}

// stubSource is an in-memory document source keyed by bucket and name.
type stubSource struct {
	objects map[bucket.Bucket]map[string][]byte
}

func (s *stubSource) ListDocuments(ctx context.Context, b bucket.Bucket) ([]string, error) {
	names := make([]string, 0, len(s.objects[b]))
	for name := range s.objects[b] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *stubSource) FetchDocument(ctx context.Context, b bucket.Bucket, name string) ([]byte, error) {
	data, ok := s.objects[b][name]
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", b, name)
	}
	return data, nil
}

func newTestServer(t *testing.T, query *stubQuery, ingest *stubIngest, opts ...Option) (*Server, *ingestion.TaskManager) {
	t.Helper()
	tasks := ingestion.NewTaskManager(nil)
	t.Cleanup(tasks.Shutdown)
	return NewServer("localhost:0", query, ingest, tasks, opts...), tasks
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	s.handler().ServeHTTP(rr, req)
	return rr
}

func TestQueryEndpoint(t *testing.T) {
	query := &stubQuery{resp: retrieval.QueryResponse{
		Answer: "Tipping cascades can be triggered by divestment.",
		Status: retrieval.StatusSuccess,
	}}
	s, _ := newTestServer(t, query, &stubIngest{})

	rr := doJSON(t, s, http.MethodPost, "/api/query", retrieval.QueryRequest{
		Query:  "What triggers tipping cascades?",
		UserID: "u1",
	})

	require.Equal(t, http.StatusOK, rr.Code)
	var resp retrieval.QueryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, retrieval.StatusSuccess, resp.Status)
	assert.Equal(t, "What triggers tipping cascades?", query.last.Query)
}

func TestQueryEndpointRejectsBadJSON(t *testing.T) {
	s, _ := newTestServer(t, &stubQuery{}, &stubIngest{})

	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	s.handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestQueryEndpointErrorMapsToBadRequest(t *testing.T) {
	query := &stubQuery{err: fmt.Errorf("query must not be empty")}
	s, _ := newTestServer(t, query, &stubIngest{})

	rr := doJSON(t, s, http.MethodPost, "/api/query", retrieval.QueryRequest{})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "query must not be empty")
}

func TestIngestEndpointCreatesTask(t *testing.T) {
	ingest := &stubIngest{result: ingestion.DocumentResult{OverallStatus: ingestion.StatusSuccess}}
	s, tasks := newTestServer(t, &stubQuery{}, ingest)

	rr := doJSON(t, s, http.MethodPost, "/api/ingest", ingestRequest{
		Filename: "policy-brief.pdf",
		Bucket:   "policy",
		Content:  []byte("%PDF-1.4 body"),
	})

	require.Equal(t, http.StatusAccepted, rr.Code)
	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &accepted))
	taskID := accepted["task_id"]
	require.NotEmpty(t, taskID)

	require.Eventually(t, func() bool {
		task, err := tasks.Get(taskID)
		return err == nil && task.Status == ingestion.TaskCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, "policy-brief.pdf", ingest.lastFilename)
	assert.Equal(t, bucket.Policy, ingest.lastBucket)
	assert.True(t, ingest.lastFlags.Chunking)
	assert.True(t, ingest.lastFlags.STP)
}

func TestIngestEndpointStageOverride(t *testing.T) {
	ingest := &stubIngest{result: ingestion.DocumentResult{OverallStatus: ingestion.StatusSuccess}}
	s, tasks := newTestServer(t, &stubQuery{}, ingest)

	rr := doJSON(t, s, http.MethodPost, "/api/ingest", ingestRequest{
		Filename: "paper.pdf",
		Bucket:   "researchpapers",
		Content:  []byte("body"),
		Stages:   &ingestion.StageFlags{Chunking: true},
	})

	require.Equal(t, http.StatusAccepted, rr.Code)
	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &accepted))

	require.Eventually(t, func() bool {
		task, err := tasks.Get(accepted["task_id"])
		return err == nil && task.Status == ingestion.TaskCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.True(t, ingest.lastFlags.Chunking)
	assert.False(t, ingest.lastFlags.Summarization)
	assert.False(t, ingest.lastFlags.GraphRAG)
	assert.False(t, ingest.lastFlags.STP)
}

func TestIngestEndpointValidation(t *testing.T) {
	tests := []struct {
		name string
		req  ingestRequest
	}{
		{"missing filename", ingestRequest{Bucket: "policy", Content: []byte("x")}},
		{"missing content", ingestRequest{Filename: "a.pdf", Bucket: "policy"}},
		{"unknown bucket", ingestRequest{Filename: "a.pdf", Bucket: "fiction", Content: []byte("x")}},
		{"no stages", ingestRequest{Filename: "a.pdf", Bucket: "policy", Content: []byte("x"), Stages: &ingestion.StageFlags{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, &stubQuery{}, &stubIngest{})
			rr := doJSON(t, s, http.MethodPost, "/api/ingest", tt.req)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestTaskEndpointNotFound(t *testing.T) {
	s, _ := newTestServer(t, &stubQuery{}, &stubIngest{})

	rr := doJSON(t, s, http.MethodGet, "/api/tasks/nope", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTasksEndpointLists(t *testing.T) {
	ingest := &stubIngest{result: ingestion.DocumentResult{OverallStatus: ingestion.StatusSuccess}}
	s, _ := newTestServer(t, &stubQuery{}, ingest)

	rr := doJSON(t, s, http.MethodPost, "/api/ingest", ingestRequest{
		Filename: "a.pdf",
		Bucket:   "policy",
		Content:  []byte("x"),
	})
	require.Equal(t, http.StatusAccepted, rr.Code)

	rr = doJSON(t, s, http.MethodGet, "/api/tasks", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var listing struct {
		Tasks  []ingestion.Task     `json:"tasks"`
		Counts ingestion.TaskCounts `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listing))
	assert.Len(t, listing.Tasks, 1)
}

func TestProcessDocumentFetchesFromStore(t *testing.T) {
	ingest := &stubIngest{result: ingestion.DocumentResult{OverallStatus: ingestion.StatusSuccess}}
	source := &stubSource{objects: map[bucket.Bucket]map[string][]byte{
		bucket.Policy: {"directive.pdf": []byte("%PDF-")},
	}}
	s, tasks := newTestServer(t, &stubQuery{}, ingest, WithDocumentSource(source))

	rr := doJSON(t, s, http.MethodPost, "/process/document", processRequest{
		Bucket:   "policy",
		Filename: "directive.pdf",
	})

	require.Equal(t, http.StatusAccepted, rr.Code)
	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted["task_id"])
	assert.Equal(t, "/tasks/"+accepted["task_id"], accepted["status_endpoint"])

	require.Eventually(t, func() bool {
		task, err := tasks.Get(accepted["task_id"])
		return err == nil && task.Status == ingestion.TaskCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, "directive.pdf", ingest.lastFilename)
	assert.Equal(t, bucket.Policy, ingest.lastBucket)
	// no flags in the request selects every stage
	assert.True(t, ingest.lastFlags.Chunking)
	assert.True(t, ingest.lastFlags.GraphRAG)
}

func TestProcessDocumentMissingObjectFailsTask(t *testing.T) {
	ingest := &stubIngest{}
	source := &stubSource{objects: map[bucket.Bucket]map[string][]byte{}}
	s, tasks := newTestServer(t, &stubQuery{}, ingest, WithDocumentSource(source))

	rr := doJSON(t, s, http.MethodPost, "/process/document", processRequest{
		Bucket:   "policy",
		Filename: "ghost.pdf",
	})
	require.Equal(t, http.StatusAccepted, rr.Code)

	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &accepted))
	require.Eventually(t, func() bool {
		task, err := tasks.Get(accepted["task_id"])
		return err == nil && task.Status == ingestion.TaskFailed
	}, 5*time.Second, 10*time.Millisecond)
}

func TestProcessStageRunsOnlyThatStage(t *testing.T) {
	ingest := &stubIngest{result: ingestion.DocumentResult{OverallStatus: ingestion.StatusSuccess}}
	source := &stubSource{objects: map[bucket.Bucket]map[string][]byte{
		bucket.News: {"digest.xlsx": []byte("PK")},
	}}
	s, tasks := newTestServer(t, &stubQuery{}, ingest, WithDocumentSource(source))

	rr := doJSON(t, s, http.MethodPost, "/process/summary", processRequest{
		Bucket:   "news",
		Filename: "digest.xlsx",
	})
	require.Equal(t, http.StatusAccepted, rr.Code)

	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &accepted))
	require.Eventually(t, func() bool {
		task, err := tasks.Get(accepted["task_id"])
		return err == nil && task.Status == ingestion.TaskCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.False(t, ingest.lastFlags.Chunking)
	assert.True(t, ingest.lastFlags.Summarization)
	assert.False(t, ingest.lastFlags.GraphRAG)
	assert.False(t, ingest.lastFlags.STP)
}

func TestProcessDocumentRejectsAllStagesDisabled(t *testing.T) {
	source := &stubSource{objects: map[bucket.Bucket]map[string][]byte{
		bucket.Policy: {"directive.pdf": []byte("%PDF-")},
	}}
	s, tasks := newTestServer(t, &stubQuery{}, &stubIngest{}, WithDocumentSource(source))

	off := new(bool)
	disabled := stageSelection{Chunking: off, Summarization: off, GraphRAG: off, STP: off}

	tests := []struct {
		name string
		path string
		body any
	}{
		{"process document", "/process/document", processRequest{
			Bucket: "policy", Filename: "directive.pdf", stageSelection: disabled}},
		{"queue add-task", "/queue/add-task", processRequest{
			Bucket: "policy", Filename: "directive.pdf", stageSelection: disabled}},
		{"batch all", "/batch/process-all", batchRequest{stageSelection: disabled}},
		{"batch bucket", "/batch/process-bucket", batchRequest{
			Bucket: "policy", stageSelection: disabled}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, s, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}

	listing, _ := tasks.List()
	assert.Empty(t, listing)
}

func TestProcessDocumentPartialStageSelection(t *testing.T) {
	ingest := &stubIngest{result: ingestion.DocumentResult{OverallStatus: ingestion.StatusSuccess}}
	source := &stubSource{objects: map[bucket.Bucket]map[string][]byte{
		bucket.Policy: {"directive.pdf": []byte("%PDF-")},
	}}
	s, tasks := newTestServer(t, &stubQuery{}, ingest, WithDocumentSource(source))

	on := true
	rr := doJSON(t, s, http.MethodPost, "/process/document", processRequest{
		Bucket:         "policy",
		Filename:       "directive.pdf",
		stageSelection: stageSelection{Summarization: &on},
	})
	require.Equal(t, http.StatusAccepted, rr.Code)

	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &accepted))
	require.Eventually(t, func() bool {
		task, err := tasks.Get(accepted["task_id"])
		return err == nil && task.Status == ingestion.TaskCompleted
	}, 5*time.Second, 10*time.Millisecond)

	// naming any flag makes the selection explicit; unnamed stages stay off
	assert.False(t, ingest.lastFlags.Chunking)
	assert.True(t, ingest.lastFlags.Summarization)
	assert.False(t, ingest.lastFlags.GraphRAG)
	assert.False(t, ingest.lastFlags.STP)
}

func TestProcessStageUnknown(t *testing.T) {
	source := &stubSource{}
	s, _ := newTestServer(t, &stubQuery{}, &stubIngest{}, WithDocumentSource(source))

	rr := doJSON(t, s, http.MethodPost, "/process/everything", processRequest{
		Bucket:   "policy",
		Filename: "a.pdf",
	})

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestObjectRoutesRequireSource(t *testing.T) {
	s, _ := newTestServer(t, &stubQuery{}, &stubIngest{})

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/process/document"},
		{http.MethodPost, "/batch/process-all"},
		{http.MethodGet, "/minio/buckets"},
		{http.MethodGet, "/minio/bucket/policy/objects"},
		{http.MethodPost, "/webhook/minio-events"},
	}
	for _, p := range paths {
		rr := doJSON(t, s, p.method, p.path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, p.path)
	}
}

func TestBatchProcessAll(t *testing.T) {
	ingest := &stubIngest{}
	source := &stubSource{}
	s, tasks := newTestServer(t, &stubQuery{}, ingest, WithDocumentSource(source))

	rr := doJSON(t, s, http.MethodPost, "/batch/process-all", batchRequest{
		MaxDocuments:  2,
		SkipProcessed: true,
	})
	require.Equal(t, http.StatusAccepted, rr.Code)

	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &accepted))
	require.Eventually(t, func() bool {
		task, err := tasks.Get(accepted["task_id"])
		return err == nil && task.Status == ingestion.TaskCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, "all", ingest.batchInvocation)
	assert.Equal(t, 2, ingest.lastBatchOpts.MaxDocumentsPerBucket)
	assert.True(t, ingest.lastBatchOpts.SkipProcessed)
	assert.True(t, ingest.lastFlags.Chunking)
}

func TestBatchProcessBucket(t *testing.T) {
	ingest := &stubIngest{}
	source := &stubSource{}
	s, tasks := newTestServer(t, &stubQuery{}, ingest, WithDocumentSource(source))

	rr := doJSON(t, s, http.MethodPost, "/batch/process-bucket", batchRequest{Bucket: "news"})
	require.Equal(t, http.StatusAccepted, rr.Code)

	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &accepted))
	require.Eventually(t, func() bool {
		task, err := tasks.Get(accepted["task_id"])
		return err == nil && task.Status == ingestion.TaskCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, "scoped", ingest.batchInvocation)
	assert.Equal(t, []bucket.Bucket{bucket.News}, ingest.lastBatchScope)
}

func TestBatchProcessBucketUnknown(t *testing.T) {
	source := &stubSource{}
	s, _ := newTestServer(t, &stubQuery{}, &stubIngest{}, WithDocumentSource(source))

	rr := doJSON(t, s, http.MethodPost, "/batch/process-bucket", batchRequest{Bucket: "fiction"})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTasksCleanupRemovesFinished(t *testing.T) {
	ingest := &stubIngest{result: ingestion.DocumentResult{OverallStatus: ingestion.StatusSuccess}}
	s, tasks := newTestServer(t, &stubQuery{}, ingest)

	rr := doJSON(t, s, http.MethodPost, "/api/ingest", ingestRequest{
		Filename: "a.pdf",
		Bucket:   "policy",
		Content:  []byte("x"),
	})
	require.Equal(t, http.StatusAccepted, rr.Code)
	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &accepted))
	require.Eventually(t, func() bool {
		task, err := tasks.Get(accepted["task_id"])
		return err == nil && task.Status == ingestion.TaskCompleted
	}, 5*time.Second, 10*time.Millisecond)

	rr = doJSON(t, s, http.MethodDelete, "/tasks/cleanup?max_age_hours=0", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var cleanup map[string]int
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cleanup))
	assert.Equal(t, 1, cleanup["removed"])

	_, err := tasks.Get(accepted["task_id"])
	assert.ErrorIs(t, err, ingestion.ErrTaskNotFound)
}

func TestTasksCleanupRejectsBadAge(t *testing.T) {
	s, _ := newTestServer(t, &stubQuery{}, &stubIngest{})

	rr := doJSON(t, s, http.MethodDelete, "/tasks/cleanup?max_age_hours=soon", nil)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestQueueStatus(t *testing.T) {
	ingest := &stubIngest{result: ingestion.DocumentResult{OverallStatus: ingestion.StatusSuccess}}
	s, tasks := newTestServer(t, &stubQuery{}, ingest)

	rr := doJSON(t, s, http.MethodPost, "/api/ingest", ingestRequest{
		Filename: "a.pdf",
		Bucket:   "policy",
		Content:  []byte("x"),
	})
	require.Equal(t, http.StatusAccepted, rr.Code)
	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &accepted))
	require.Eventually(t, func() bool {
		task, err := tasks.Get(accepted["task_id"])
		return err == nil && task.Status == ingestion.TaskCompleted
	}, 5*time.Second, 10*time.Millisecond)

	rr = doJSON(t, s, http.MethodGet, "/queue/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var counts ingestion.TaskCounts
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &counts))
	assert.Equal(t, 1, counts.Completed)
}

func TestQueueAddTaskAndControl(t *testing.T) {
	ingest := &stubIngest{result: ingestion.DocumentResult{OverallStatus: ingestion.StatusSuccess}}
	source := &stubSource{objects: map[bucket.Bucket]map[string][]byte{
		bucket.Policy: {"directive.pdf": []byte("%PDF-")},
	}}
	s, tasks := newTestServer(t, &stubQuery{}, ingest, WithDocumentSource(source))

	rr := doJSON(t, s, http.MethodPost, "/queue/control", map[string]string{"action": "stop"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, s, http.MethodPost, "/queue/add-task", processRequest{
		Bucket:   "policy",
		Filename: "directive.pdf",
	})
	require.Equal(t, http.StatusAccepted, rr.Code)
	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &accepted))

	// stopped queue holds the task in pending
	task, err := tasks.Get(accepted["task_id"])
	require.NoError(t, err)
	assert.Equal(t, ingestion.TaskPending, task.Status)

	rr = doJSON(t, s, http.MethodPost, "/queue/control", map[string]string{"action": "start"})
	require.Equal(t, http.StatusOK, rr.Code)

	require.Eventually(t, func() bool {
		task, err := tasks.Get(accepted["task_id"])
		return err == nil && task.Status == ingestion.TaskCompleted
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "directive.pdf", ingest.lastFilename)
}

func TestQueueControlClearDropsHeldTasks(t *testing.T) {
	source := &stubSource{objects: map[bucket.Bucket]map[string][]byte{
		bucket.Policy: {"directive.pdf": []byte("%PDF-")},
	}}
	s, tasks := newTestServer(t, &stubQuery{}, &stubIngest{}, WithDocumentSource(source))

	rr := doJSON(t, s, http.MethodPost, "/queue/control", map[string]string{"action": "stop"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, s, http.MethodPost, "/queue/add-task", processRequest{
		Bucket:   "policy",
		Filename: "directive.pdf",
	})
	require.Equal(t, http.StatusAccepted, rr.Code)
	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &accepted))

	rr = doJSON(t, s, http.MethodPost, "/queue/control", map[string]string{"action": "clear"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"cleared":1`)

	task, err := tasks.Get(accepted["task_id"])
	require.NoError(t, err)
	assert.Equal(t, ingestion.TaskFailed, task.Status)
}

func TestQueueControlUnknownAction(t *testing.T) {
	s, _ := newTestServer(t, &stubQuery{}, &stubIngest{})

	rr := doJSON(t, s, http.MethodPost, "/queue/control", map[string]string{"action": "reverse"})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBucketsInventory(t *testing.T) {
	source := &stubSource{objects: map[bucket.Bucket]map[string][]byte{
		bucket.Policy: {"a.pdf": []byte("x"), "b.pdf": []byte("y")},
		bucket.News:   {"digest.xlsx": []byte("z")},
	}}
	s, _ := newTestServer(t, &stubQuery{}, &stubIngest{}, WithDocumentSource(source))

	rr := doJSON(t, s, http.MethodGet, "/minio/buckets", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var listing struct {
		Buckets []struct {
			Name    string `json:"name"`
			Objects int    `json:"objects"`
		} `json:"buckets"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listing))
	require.Len(t, listing.Buckets, len(bucket.All()))

	byName := make(map[string]int, len(listing.Buckets))
	for _, b := range listing.Buckets {
		byName[b.Name] = b.Objects
	}
	assert.Equal(t, 2, byName["policy"])
	assert.Equal(t, 1, byName["news"])
	assert.Equal(t, 0, byName["researchpapers"])
}

func TestBucketObjectsPagination(t *testing.T) {
	source := &stubSource{objects: map[bucket.Bucket]map[string][]byte{
		bucket.Policy: {
			"a.pdf": []byte("1"),
			"b.pdf": []byte("2"),
			"c.pdf": []byte("3"),
		},
	}}
	s, _ := newTestServer(t, &stubQuery{}, &stubIngest{}, WithDocumentSource(source))

	rr := doJSON(t, s, http.MethodGet, "/minio/bucket/policy/objects?limit=2&offset=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var page struct {
		Bucket  string   `json:"bucket"`
		Total   int      `json:"total"`
		Offset  int      `json:"offset"`
		Objects []string `json:"objects"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Equal(t, "policy", page.Bucket)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, []string{"b.pdf", "c.pdf"}, page.Objects)
}

func TestObjectEventsWebhook(t *testing.T) {
	ingest := &stubIngest{result: ingestion.DocumentResult{OverallStatus: ingestion.StatusSuccess}}
	source := &stubSource{objects: map[bucket.Bucket]map[string][]byte{
		bucket.Policy: {"green deal.pdf": []byte("%PDF-")},
	}}
	s, tasks := newTestServer(t, &stubQuery{}, ingest, WithDocumentSource(source))

	record := func(event, bucketName, key string) map[string]any {
		return map[string]any{
			"eventName": event,
			"s3": map[string]any{
				"bucket": map[string]any{"name": bucketName},
				"object": map[string]any{"key": key},
			},
		}
	}
	body := map[string]any{"Records": []map[string]any{
		record("s3:ObjectCreated:Put", "policy", "green+deal.pdf"),
		record("s3:ObjectRemoved:Delete", "policy", "old.pdf"),
		record("s3:ObjectCreated:Put", "fiction", "novel.pdf"),
		record("s3:ObjectCreated:Put", "policy", "logo.png"),
	}}

	rr := doJSON(t, s, http.MethodPost, "/webhook/minio-events", body)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Queued  int      `json:"queued"`
		Skipped int      `json:"skipped"`
		TaskIDs []string `json:"task_ids"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Queued)
	assert.Equal(t, 3, resp.Skipped)
	require.Len(t, resp.TaskIDs, 1)

	require.Eventually(t, func() bool {
		task, err := tasks.Get(resp.TaskIDs[0])
		return err == nil && task.Status == ingestion.TaskCompleted
	}, 5*time.Second, 10*time.Millisecond)

	// keys arrive URL-encoded in the notification payload
	assert.Equal(t, "green deal.pdf", ingest.lastFilename)
	assert.Equal(t, bucket.Policy, ingest.lastBucket)
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &stubQuery{}, &stubIngest{},
		WithHealthCheck("tracker", func(ctx context.Context) error { return nil }),
		WithHealthCheck("graph", func(ctx context.Context) error { return nil }))

	rr := doJSON(t, s, http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
}

func TestHealthEndpointDegraded(t *testing.T) {
	s, _ := newTestServer(t, &stubQuery{}, &stubIngest{},
		WithHealthCheck("tracker", func(ctx context.Context) error { return nil }),
		WithHealthCheck("graph", func(ctx context.Context) error { return fmt.Errorf("connection refused") }))

	rr := doJSON(t, s, http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "degraded")
	assert.Contains(t, rr.Body.String(), "connection refused")
}
