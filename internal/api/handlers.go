package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/ingestion"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/retrieval"
)

// maxIngestBody caps inline uploads at 64 MiB.
const maxIngestBody = 64 << 20

// allStages is the default stage selection when a request names none.
func allStages() ingestion.StageFlags {
	return ingestion.StageFlags{Chunking: true, Summarization: true, GraphRAG: true, STP: true}
}

// ingestRequest is the inline ingestion payload. Content is
// base64-encoded in JSON. Stages defaults to all stages when omitted.
type ingestRequest struct {
	Filename string                `json:"filename"`
	Bucket   string                `json:"bucket"`
	Content  []byte                `json:"content"`
	Stages   *ingestion.StageFlags `json:"stages,omitempty"`
}

// stageSelection mirrors the include_* request fields with presence:
// omitted flags select every stage, while flags that are present but
// all false are an input error.
type stageSelection struct {
	Chunking      *bool `json:"include_chunking,omitempty"`
	Summarization *bool `json:"include_summarization,omitempty"`
	GraphRAG      *bool `json:"include_graphrag,omitempty"`
	STP           *bool `json:"include_stp,omitempty"`
}

// resolve maps the selection to stage flags.
func (sel stageSelection) resolve() (ingestion.StageFlags, error) {
	if sel.Chunking == nil && sel.Summarization == nil && sel.GraphRAG == nil && sel.STP == nil {
		return allStages(), nil
	}

	var flags ingestion.StageFlags
	if sel.Chunking != nil {
		flags.Chunking = *sel.Chunking
	}
	if sel.Summarization != nil {
		flags.Summarization = *sel.Summarization
	}
	if sel.GraphRAG != nil {
		flags.GraphRAG = *sel.GraphRAG
	}
	if sel.STP != nil {
		flags.STP = *sel.STP
	}
	if !flags.Any() {
		return ingestion.StageFlags{}, errors.New("at least one stage must be enabled")
	}
	return flags, nil
}

// processRequest names an object already in the store.
type processRequest struct {
	Bucket   string `json:"bucket"`
	Filename string `json:"filename"`
	stageSelection
}

// batchRequest scopes a batch run. Bucket is ignored by /batch/process-all.
type batchRequest struct {
	Bucket        string `json:"bucket,omitempty"`
	MaxDocuments  int    `json:"max_documents"`
	SkipProcessed bool   `json:"skip_processed"`
	stageSelection
}

// objectEvents is the MinIO bucket-notification envelope. Only the
// fields the webhook consumes are mapped.
type objectEvents struct {
	Records []struct {
		EventName string `json:"eventName"`
		S3        struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req retrieval.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	resp, err := s.query.Answer(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIngestInline(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBody)

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}
	if len(req.Content) == 0 {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	b, err := bucket.Parse(req.Bucket)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flags := allStages()
	if req.Stages != nil {
		flags = *req.Stages
	}
	if !flags.Any() {
		writeError(w, http.StatusBadRequest, "at least one stage must be enabled")
		return
	}

	taskID := s.tasks.Create("ingest_document", map[string]any{
		"filename": req.Filename,
		"bucket":   b.String(),
	}, func(ctx context.Context) (any, error) {
		return s.ingest.ProcessDocument(ctx, req.Content, req.Filename, b, flags), nil
	})

	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

// handleProcessDocument fetches one named object from the store and
// runs the selected stages as a background task.
func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	if !s.requireSource(w) {
		return
	}

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}
	b, err := bucket.Parse(req.Bucket)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flags, err := req.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	taskID := s.createFetchTask("process_document", b, req.Filename, flags)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"task_id":         taskID,
		"status_endpoint": "/tasks/" + taskID,
	})
}

// handleProcessStage runs exactly one pipeline stage for one object.
// The path segment names the stage: chunks, summary, graphrag, or stp.
func (s *Server) handleProcessStage(w http.ResponseWriter, r *http.Request) {
	if !s.requireSource(w) {
		return
	}

	var flags ingestion.StageFlags
	stage := r.PathValue("stage")
	switch stage {
	case "chunks":
		flags.Chunking = true
	case "summary":
		flags.Summarization = true
	case "graphrag":
		flags.GraphRAG = true
	case "stp":
		flags.STP = true
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown stage %q", stage))
		return
	}

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}
	b, err := bucket.Parse(req.Bucket)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	taskID := s.createFetchTask("process_"+stage, b, req.Filename, flags)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"task_id":         taskID,
		"status_endpoint": "/tasks/" + taskID,
	})
}

// handleBatchAll runs batch ingestion over every bucket as one task.
func (s *Server) handleBatchAll(w http.ResponseWriter, r *http.Request) {
	s.startBatch(w, r, nil)
}

// handleBatchBucket runs batch ingestion over one named bucket.
func (s *Server) handleBatchBucket(w http.ResponseWriter, r *http.Request) {
	s.startBatch(w, r, func(req batchRequest) ([]bucket.Bucket, error) {
		b, err := bucket.Parse(req.Bucket)
		if err != nil {
			return nil, err
		}
		return []bucket.Bucket{b}, nil
	})
}

func (s *Server) startBatch(w http.ResponseWriter, r *http.Request, scope func(batchRequest) ([]bucket.Bucket, error)) {
	if !s.requireSource(w) {
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	flags, err := req.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := ingestion.BatchOptions{
		MaxDocumentsPerBucket: req.MaxDocuments,
		SkipProcessed:         req.SkipProcessed,
	}

	var buckets []bucket.Bucket
	if scope != nil {
		var err error
		if buckets, err = scope(req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	metadata := map[string]any{"skip_processed": opts.SkipProcessed}
	if len(buckets) == 1 {
		metadata["bucket"] = buckets[0].String()
	}
	taskID := s.tasks.Create("batch_ingest", metadata, func(ctx context.Context) (any, error) {
		if buckets == nil {
			return s.ingest.ProcessAllBuckets(ctx, s.source, flags, opts), nil
		}
		return s.ingest.ProcessBuckets(ctx, s.source, buckets, flags, opts), nil
	})

	writeJSON(w, http.StatusAccepted, map[string]string{
		"task_id":         taskID,
		"status_endpoint": "/tasks/" + taskID,
	})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	tasks, counts := s.tasks.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks":  tasks,
		"counts": counts,
	})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ingestion.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleTasksCleanup drops finished tasks older than max_age_hours
// (default 24).
func (s *Server) handleTasksCleanup(w http.ResponseWriter, r *http.Request) {
	maxAge := 24 * time.Hour
	if raw := r.URL.Query().Get("max_age_hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours < 0 {
			writeError(w, http.StatusBadRequest, "max_age_hours must be a non-negative integer")
			return
		}
		maxAge = time.Duration(hours) * time.Hour
	}
	removed := s.tasks.Cleanup(maxAge)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// handleQueueAddTask queues a fetch-then-process job for one stored
// object. While the queue is stopped the task stays pending.
func (s *Server) handleQueueAddTask(w http.ResponseWriter, r *http.Request) {
	if !s.requireSource(w) {
		return
	}

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}
	b, err := bucket.Parse(req.Bucket)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flags, err := req.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	taskID := s.createFetchTask("queued_ingest", b, req.Filename, flags)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"task_id":         taskID,
		"status_endpoint": "/tasks/" + taskID,
	})
}

// handleQueueStatus reports task counts by state.
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	_, counts := s.tasks.List()
	writeJSON(w, http.StatusOK, counts)
}

// handleQueueControl pauses, resumes, or clears the held-task queue.
func (s *Server) handleQueueControl(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	switch req.Action {
	case "start":
		s.tasks.Resume()
		writeJSON(w, http.StatusOK, map[string]any{"action": "start"})
	case "stop":
		s.tasks.Pause()
		writeJSON(w, http.StatusOK, map[string]any{"action": "stop"})
	case "clear":
		cleared := s.tasks.Clear()
		writeJSON(w, http.StatusOK, map[string]any{"action": "clear", "cleared": cleared})
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
	}
}

// handleBucketsInventory lists every corpus bucket with its recognized
// document count.
func (s *Server) handleBucketsInventory(w http.ResponseWriter, r *http.Request) {
	if !s.requireSource(w) {
		return
	}

	type bucketInfo struct {
		Name    string `json:"name"`
		Objects int    `json:"objects"`
		Error   string `json:"error,omitempty"`
	}

	infos := make([]bucketInfo, 0, len(bucket.All()))
	for _, b := range bucket.All() {
		info := bucketInfo{Name: b.String()}
		names, err := s.source.ListDocuments(r.Context(), b)
		if err != nil {
			info.Error = err.Error()
		} else {
			info.Objects = len(names)
		}
		infos = append(infos, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"buckets": infos})
}

// handleBucketObjects pages through one bucket's recognized documents.
func (s *Server) handleBucketObjects(w http.ResponseWriter, r *http.Request) {
	if !s.requireSource(w) {
		return
	}

	b, err := bucket.Parse(r.PathValue("bucket"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	names, err := s.source.ListDocuments(r.Context(), b)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	total := len(names)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bucket":  b.String(),
		"total":   total,
		"offset":  offset,
		"objects": names[offset:end],
	})
}

// handleObjectEvents consumes MinIO bucket notifications. Only
// object-created events for recognized documents in known buckets are
// queued; everything else is counted as skipped.
func (s *Server) handleObjectEvents(w http.ResponseWriter, r *http.Request) {
	if !s.requireSource(w) {
		return
	}

	var events objectEvents
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	var queued []string
	skipped := 0
	for _, rec := range events.Records {
		if !strings.HasPrefix(rec.EventName, "s3:ObjectCreated:") {
			skipped++
			continue
		}

		// MinIO URL-encodes object keys in notification payloads.
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			key = rec.S3.Object.Key
		}

		b, err := bucket.Parse(rec.S3.Bucket.Name)
		if err != nil || !bucket.RecognizedExtension(key) {
			s.logger.Debug("ignoring object event",
				"bucket", rec.S3.Bucket.Name, "key", key)
			skipped++
			continue
		}

		queued = append(queued, s.createFetchTask("webhook_ingest", b, key, allStages()))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"queued":   len(queued),
		"skipped":  skipped,
		"task_ids": queued,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	components := make(map[string]string, len(s.checks))
	healthy := true
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			components[name] = err.Error()
			healthy = false
		} else {
			components[name] = "ok"
		}
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":     overall,
		"components": components,
	})
}

// createFetchTask queues a fetch-then-process job for one stored object.
func (s *Server) createFetchTask(kind string, b bucket.Bucket, name string, flags ingestion.StageFlags) string {
	return s.tasks.Create(kind, map[string]any{
		"filename": name,
		"bucket":   b.String(),
	}, func(ctx context.Context) (any, error) {
		data, err := s.source.FetchDocument(ctx, b, name)
		if err != nil {
			return nil, err
		}
		return s.ingest.ProcessDocument(ctx, data, name, b, flags), nil
	})
}

// requireSource rejects object-store routes when no store is configured.
func (s *Server) requireSource(w http.ResponseWriter) bool {
	if s.source == nil {
		writeError(w, http.StatusServiceUnavailable, "object store is not configured")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
