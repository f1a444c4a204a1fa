package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdftools/internal/metrics"
	"github.com/local/pdftools/internal/storage"
	"github.com/local/pdftools/internal/tools"
)

type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	Consumer     string
}

// Worker pulls jobs off the queue with a fixed number of goroutines.
type Worker struct {
	cfg    WorkerConfig
	svc    *Service
	stop   chan struct{}
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewWorker(cfg WorkerConfig, svc *Service) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "worker"
	}
	return &Worker{cfg: cfg, svc: svc, stop: make(chan struct{})}
}

func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(ctx, i)
	}
}

// Stop asks the loops to finish their current job and waits for them or ctx.
func (w *Worker) Stop(ctx context.Context) error {
	close(w.stop)
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if w.cancel != nil {
			w.cancel()
		}
		return ctx.Err()
	}
}

func (w *Worker) loop(ctx context.Context, id int) {
	defer w.wg.Done()
	consumer := fmt.Sprintf("%s-%d", w.cfg.Consumer, id)
	log.Info().Int("worker", id).Msg("job worker started")
	for {
		select {
		case <-w.stop:
			log.Info().Int("worker", id).Msg("job worker stopped")
			return
		case <-ctx.Done():
			return
		default:
		}

		if _, err := w.ProcessNext(ctx, consumer); err != nil {
			log.Error().Err(err).Int("worker", id).Msg("queue dequeue error")
			time.Sleep(500 * time.Millisecond)
		}
	}
}

// ProcessNext handles at most one queued job. It reports whether a message
// was taken off the queue.
func (w *Worker) ProcessNext(ctx context.Context, consumer string) (bool, error) {
	q := w.svc.queue
	msgID, payload, err := q.Dequeue(ctx, consumer, w.cfg.PollInterval)
	if err != nil {
		return false, err
	}
	if msgID == "" {
		return false, nil
	}
	defer func() {
		if err := q.Ack(context.Background(), msgID); err != nil {
			log.Warn().Err(err).Str("msg_id", msgID).Msg("ack failed")
		}
		if depth, err := q.Depth(context.Background()); err == nil {
			metrics.SetQueueDepth(depth)
		}
	}()

	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil || msg.JobID == "" {
		log.Error().Err(err).Str("msg_id", msgID).Msg("dropping malformed job message")
		_ = q.AddDLQ(ctx, payload, "malformed message")
		return true, nil
	}
	w.process(ctx, msg, payload)
	return true, nil
}

func (w *Worker) process(ctx context.Context, msg Message, payload []byte) {
	svc := w.svc
	logger := log.With().Str("job_id", msg.JobID).Str("tool", msg.Tool).Logger()

	if cancelled, _ := svc.queue.IsCancelled(ctx, msg.JobID); cancelled {
		logger.Warn().Msg("job cancelled before processing; skipping")
		w.cleanupInputs(ctx, msg)
		return
	}

	start := time.Now().UTC()
	st := Status{State: StateProcessing, Tool: msg.Tool, Message: "Processing", Start: &start}
	if err := svc.status.Set(ctx, msg.JobID, st); err != nil {
		logger.Error().Err(err).Msg("failed to set processing status")
	}

	req := tools.Request{Tool: msg.Tool, Params: msg.Params}
	for _, in := range msg.Inputs {
		data, _, err := svc.blobs.Get(ctx, in.Key)
		if err != nil {
			w.fail(ctx, msg, st, payload, fmt.Errorf("load input %s: %w", in.Key, err))
			return
		}
		req.Files = append(req.Files, tools.File{Name: in.Name, Data: data})
	}

	res, err := svc.runner.Run(ctx, req)
	if err != nil {
		w.fail(ctx, msg, st, payload, err)
		return
	}

	// a cancel may have landed while the tool ran
	if cancelled, _ := svc.queue.IsCancelled(ctx, msg.JobID); cancelled {
		logger.Warn().Msg("job cancelled during processing; discarding result")
		w.markCancelled(ctx, msg, st)
		return
	}

	key := resultKey(msg.JobID)
	if err := svc.blobs.Put(ctx, key, res.Data, storage.Metadata{Name: res.Filename, ContentType: res.ContentType}); err != nil {
		w.fail(ctx, msg, st, payload, fmt.Errorf("store result: %w", err))
		return
	}

	end := time.Now().UTC()
	st.State, st.Message, st.End = StateCompleted, res.Message, &end
	st.Filename, st.ResultKey, st.Metadata = res.Filename, key, res.Meta
	if err := svc.status.Set(ctx, msg.JobID, st); err != nil {
		logger.Error().Err(err).Msg("failed to set completed status")
	}
	metrics.IncJob(StateCompleted)
	w.cleanupInputs(ctx, msg)
	logger.Info().Dur("duration", end.Sub(start)).Str("output", res.Filename).Msg("job completed")
}

func (w *Worker) fail(ctx context.Context, msg Message, st Status, payload []byte, err error) {
	if cancelled, _ := w.svc.queue.IsCancelled(ctx, msg.JobID); cancelled {
		log.Warn().Err(err).Str("job_id", msg.JobID).Msg("cancelled job failed; keeping cancelled state")
		w.markCancelled(ctx, msg, st)
		return
	}
	end := time.Now().UTC()
	st.State, st.Message, st.End = StateFailed, tools.UserMessage(err), &end
	if serr := w.svc.status.Set(ctx, msg.JobID, st); serr != nil {
		log.Error().Err(serr).Str("job_id", msg.JobID).Msg("failed to set failed status")
	}
	metrics.IncJob(StateFailed)
	if !tools.IsInputError(err) {
		_ = w.svc.queue.AddDLQ(ctx, payload, err.Error())
	}
	w.cleanupInputs(ctx, msg)
	log.Warn().Err(err).Str("job_id", msg.JobID).Str("tool", msg.Tool).Msg("job failed")
}

// markCancelled restores the cancelled state after the worker overwrote it
// with processing.
func (w *Worker) markCancelled(ctx context.Context, msg Message, st Status) {
	end := time.Now().UTC()
	st.State, st.Message, st.End = StateCancelled, "Cancelled", &end
	if err := w.svc.status.Set(ctx, msg.JobID, st); err != nil {
		log.Error().Err(err).Str("job_id", msg.JobID).Msg("failed to set cancelled status")
	}
	w.cleanupInputs(ctx, msg)
}

func (w *Worker) cleanupInputs(ctx context.Context, msg Message) {
	for _, in := range msg.Inputs {
		if err := w.svc.blobs.Delete(ctx, in.Key); err != nil {
			log.Warn().Err(err).Str("key", in.Key).Msg("failed to delete job input")
		}
	}
}
