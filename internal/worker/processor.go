package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"docflow/apps/ingestion/features/job"
	"docflow/apps/ingestion/internal/config"
	"docflow/apps/ingestion/internal/extract"
	"docflow/apps/ingestion/internal/middleware"
	"docflow/apps/ingestion/internal/text"
)

const handlerName = "ingestion-worker"

// chunkNamespace seeds the name-based (v5) chunk ids.
var chunkNamespace = uuid.MustParse("8f0e6b7c-2d4a-4f5e-9b1c-3a7d2e6f4c10")

type Options struct {
	MaxAttempts     uint16
	MaxFileSize     int64
	JobTimeout      time.Duration
	ChunksKeyPrefix string
}

// Processor runs one delivery of an ingestion task. It knows nothing about
// the queue: the returned error decides between acknowledge (nil) and
// redelivery (non-nil).
type Processor struct {
	store     ObjectStore
	extractor Extractor
	chunker   Chunker
	embedders EmbedderProvider
	pub       Publisher
	failures  FailureRecorder
	opts      Options
	now       func() time.Time
}

// NewProcessor wires the pipeline. embedders and failures may be nil.
func NewProcessor(store ObjectStore, ex Extractor, ch Chunker, emb EmbedderProvider, pub Publisher, failures FailureRecorder, opts Options) *Processor {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 1
	}
	return &Processor{
		store:     store,
		extractor: ex,
		chunker:   ch,
		embedders: emb,
		pub:       pub,
		failures:  failures,
		opts:      opts,
		now:       time.Now,
	}
}

type parsedTask struct {
	IngestTask
	extractCfg extract.Config
	chunkCfg   text.Config
}

func (p *Processor) Process(ctx context.Context, body []byte, attempt uint16) error {
	started := p.now()

	var task IngestTask
	if err := json.Unmarshal(body, &task); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.ErrorContext(ctx, "poison pill: invalid json", "error", err, "size", len(body))
		return nil
	}

	correlationID := task.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx = middleware.WithCorrelationID(ctx, correlationID)
	ctx = middleware.WithJobID(ctx, task.JobID)

	res := IngestResult{
		JobID:         task.JobID,
		TransformID:   task.TransformID,
		Owner:         task.Owner,
		SourceFileKey: task.SourceFileKey,
		Bucket:        task.Bucket,
		Attempt:       int(attempt),
		CorrelationID: correlationID,
	}

	slog.InfoContext(ctx, "job received", "key", task.SourceFileKey, "bucket", task.Bucket, "attempt", attempt)

	err := p.run(ctx, task, &res)
	res.ProcessingDurationMS = p.now().Sub(started).Milliseconds()
	if err != nil {
		return p.fail(ctx, body, attempt, res, err)
	}

	res.Status = StatusSuccess
	if err := p.publish(ctx, res); err != nil {
		return err
	}
	slog.InfoContext(ctx, "job completed",
		"chunks", res.ChunkCount,
		"characters", res.TotalCharacters,
		"duration_ms", res.ProcessingDurationMS,
		"state", StateAcknowledged.String())
	return nil
}

func (p *Processor) run(ctx context.Context, task IngestTask, res *IngestResult) error {
	pt, err := p.parse(task)
	if err != nil {
		return failAt(StateReceived, err)
	}

	if p.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.JobTimeout)
		defer cancel()
	}

	enter(ctx, StateDownloading)
	data, err := p.download(ctx, pt)
	if err != nil {
		return failAt(StateDownloading, err)
	}

	enter(ctx, StateExtracting)
	doc, err := p.extractor.Extract(ctx, data, path.Base(pt.SourceFileKey), pt.MimeType, pt.extractCfg)
	if err != nil {
		return failAt(StateExtracting, err)
	}
	for _, w := range doc.Warnings {
		slog.WarnContext(ctx, "extraction warning", "warning", w)
	}
	res.Warnings = doc.Warnings
	res.TotalCharacters = utf8.RuneCountInString(doc.Text)
	if strings.TrimSpace(doc.Text) == "" {
		return failAt(StateExtracting, fmt.Errorf("%w: %s", ErrEmptyDocument, doc.Format))
	}

	enter(ctx, StateChunking)
	chunks, err := p.chunk(ctx, pt, doc)
	if err != nil {
		return failAt(StateChunking, err)
	}

	enter(ctx, StateUploading)
	key := p.artifactKey(pt.IngestTask)
	artifact, err := buildArtifact(pt.IngestTask, chunks)
	if err != nil {
		return failAt(StateUploading, err)
	}
	if err := p.store.Put(ctx, pt.destination(), key, artifact, "application/json"); err != nil {
		return failAt(StateUploading, err)
	}

	res.ChunksFileKey = key
	res.ChunkCount = len(chunks)
	return nil
}

func (p *Processor) parse(task IngestTask) (parsedTask, error) {
	pt := parsedTask{IngestTask: task}
	if err := task.validate(); err != nil {
		return pt, err
	}
	var err error
	if pt.extractCfg, err = extract.ParseConfig(task.ExtractionConfig); err != nil {
		return pt, err
	}
	if pt.chunkCfg, err = text.ParseConfig(task.ChunkingConfig); err != nil {
		return pt, err
	}
	if pt.chunkCfg.Strategy == text.StrategySemantic {
		if task.EmbedderConfig == nil {
			return pt, fmt.Errorf("semantic chunking requires embedder_config")
		}
		if err := task.EmbedderConfig.Validate(); err != nil {
			return pt, err
		}
	}
	return pt, nil
}

// download enforces the size cap before the GET when the size is known up
// front, and again while reading.
func (p *Processor) download(ctx context.Context, t parsedTask) ([]byte, error) {
	limit := p.opts.MaxFileSize
	size := t.FileSize
	if size == 0 {
		n, err := p.store.Size(ctx, t.Bucket, t.SourceFileKey)
		if err != nil {
			return nil, err
		}
		size = n
	}
	if limit > 0 && size > limit {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, size, limit)
	}
	return p.store.Get(ctx, t.Bucket, t.SourceFileKey, limit)
}

func (p *Processor) chunk(ctx context.Context, t parsedTask, doc *extract.Document) ([]text.Chunk, error) {
	var emb text.Embedder
	if t.chunkCfg.Strategy == text.StrategySemantic {
		if p.embedders == nil {
			return nil, fmt.Errorf("%w: no embedder registry configured", text.ErrInvalidConfig)
		}
		e, err := p.embedders.Get(ctx, *t.EmbedderConfig)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", text.ErrEmbedder, err)
		}
		emb = e
	}
	return p.chunker.Chunk(ctx, text.Source{Text: doc.Text, Locators: locators(doc)}, t.chunkCfg, emb)
}

// fail turns a failed attempt into either a redelivery or a terminal result.
func (p *Processor) fail(ctx context.Context, body []byte, attempt uint16, res IngestResult, err error) error {
	if ctx.Err() != nil {
		slog.WarnContext(ctx, "job interrupted", "error", err)
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}

	state := StateReceived
	var se *stageError
	if errors.As(err, &se) {
		state = se.state
	}
	status, retryable := classify(state, err)

	if retryable && attempt < p.opts.MaxAttempts {
		slog.WarnContext(ctx, "job attempt failed, requeueing",
			"state", state.String(), "status", status, "attempt", attempt, "max_attempts", p.opts.MaxAttempts, "error", err)
		return err
	}

	res.Status = status
	res.Error = err.Error()
	res.ChunksFileKey = ""
	res.ChunkCount = 0
	slog.ErrorContext(ctx, "job failed", "state", state.String(), "status", status, "attempt", attempt, "error", err)

	if perr := p.publish(ctx, res); perr != nil {
		return perr
	}
	p.recordFailure(ctx, body, res)
	return nil
}

func (p *Processor) publish(ctx context.Context, res IngestResult) error {
	enter(ctx, StatePublishing)
	body, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := p.pub.Publish(config.TopicIngestResult, body); err != nil {
		slog.WarnContext(ctx, "result publish failed", "error", err, "status", res.Status)
		return fmt.Errorf("publish result: %w", err)
	}
	return nil
}

func (p *Processor) recordFailure(ctx context.Context, body []byte, res IngestResult) {
	if p.failures == nil {
		return
	}
	j := &job.Job{
		JobID:    res.JobID,
		Handler:  handlerName,
		Status:   string(res.Status),
		Payload:  json.RawMessage(body),
		Error:    res.Error,
		Attempts: res.Attempt,
	}
	if err := p.failures.Save(ctx, j); err != nil {
		// The result event already carries the failure.
		slog.ErrorContext(ctx, "failed to save failed job", "error", err)
		return
	}
	slog.InfoContext(ctx, "saved failed job for retry", "failed_job_id", j.ID)
}

func (p *Processor) artifactKey(t IngestTask) string {
	return path.Join(p.opts.ChunksKeyPrefix, strconv.FormatInt(t.TransformID, 10), t.JobID+".json")
}

func enter(ctx context.Context, s State) {
	slog.DebugContext(ctx, "job state", "state", s.String())
}

// buildArtifact renders the chunks file. Ids and bytes depend only on the
// job id and the chunks, so a redelivery rewrites identical content.
func buildArtifact(t IngestTask, chunks []text.Chunk) ([]byte, error) {
	records := make([]ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = ChunkRecord{
			ID:   chunkID(t.JobID, c.Index),
			Text: c.Text,
			Metadata: ChunkMetadata{
				SourceFile: t.SourceFileKey,
				ChunkIndex: c.Index,
				Page:       c.Page,
				Sheet:      c.Sheet,
			},
		}
	}
	return json.Marshal(records)
}

func chunkID(jobID string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(jobID+":"+strconv.Itoa(index))).String()
}

// locators converts the byte spans of doc into rune-offset locators.
func locators(doc *extract.Document) []text.Locator {
	if len(doc.Spans) == 0 {
		return nil
	}
	clamp := func(off int) int { return max(0, min(off, len(doc.Text))) }

	offs := make([]int, 0, 2*len(doc.Spans))
	for _, s := range doc.Spans {
		offs = append(offs, clamp(s.Start), clamp(s.End))
	}
	sort.Ints(offs)

	runeAt := make(map[int]int, len(offs))
	r, b := 0, 0
	for _, off := range offs {
		r += utf8.RuneCountInString(doc.Text[b:off])
		b = off
		runeAt[off] = r
	}

	out := make([]text.Locator, 0, len(doc.Spans))
	for _, s := range doc.Spans {
		if s.Page == 0 && s.Sheet == "" {
			continue
		}
		out = append(out, text.Locator{
			Start: runeAt[clamp(s.Start)],
			End:   runeAt[clamp(s.End)],
			Page:  s.Page,
			Sheet: s.Sheet,
		})
	}
	return out
}
