package moderation

import (
	"context"
	"sync"
	"time"

	"github.com/formsentry/formsentry/internal/config"
	"github.com/formsentry/formsentry/internal/policy"
	log "github.com/sirupsen/logrus"
)

// stageTimeout bounds each moderation stage so a slow oracle or classifier
// cannot pin a worker indefinitely. A timeout takes the stage's normal
// failure path: fail-closed for reputation, fail-open for classification.
const stageTimeout = 30 * time.Second

// ReputationChecker is the reputation stage of the pipeline.
type ReputationChecker interface {
	Check(ctx context.Context, submissionID uint64, ip string, pol policy.FeaturePolicy) bool
}

// SpamClassifier is the LLM spam stage of the pipeline.
type SpamClassifier interface {
	Classify(ctx context.Context, submissionID uint64, form map[string]any, pol policy.FeaturePolicy) *bool
}

// Job is one stored submission awaiting moderation.
type Job struct {
	SubmissionID uint64
	FormData     map[string]any
	IPAddress    string
	Policy       policy.FeaturePolicy
}

// Orchestrator runs the moderation stages on a bounded worker pool,
// decoupled from the request path. Delivery is at-most-once: a full queue
// or a process exit loses the job, and nothing is retried.
type Orchestrator struct {
	checker    ReputationChecker
	classifier SpamClassifier
	jobs       chan Job
	workers    int
	wg         sync.WaitGroup
	stopOnce   sync.Once
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(checker ReputationChecker, classifier SpamClassifier, cfg config.ModerationConfig) *Orchestrator {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Orchestrator{
		checker:    checker,
		classifier: classifier,
		jobs:       make(chan Job, queueSize),
		workers:    workers,
	}
}

// Start launches the worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for i := 0; i < o.workers; i++ {
		o.wg.Add(1)
		go o.run(ctx)
	}
	log.Infof("moderation: started %d workers (queue=%d)", o.workers, cap(o.jobs))
}

// Enqueue hands a stored submission to the pool without blocking the
// request path. It reports false when the queue is full and the job was
// dropped.
func (o *Orchestrator) Enqueue(job Job) bool {
	select {
	case o.jobs <- job:
		return true
	default:
		log.Warnf("moderation: queue full, dropping submission %d", job.SubmissionID)
		return false
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.jobs) })
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-o.jobs:
			if !ok {
				return
			}
			o.process(ctx, job)
		}
	}
}

// process runs the stages in order for one submission. Reputation goes
// first so its outcome lands on the record before classification; a
// reputation failure never prevents the classifier from running. Both
// stages swallow their own errors, so this is a terminal sink.
func (o *Orchestrator) process(ctx context.Context, job Job) {
	repCtx, cancelRep := context.WithTimeout(ctx, stageTimeout)
	o.checker.Check(repCtx, job.SubmissionID, job.IPAddress, job.Policy)
	cancelRep()

	spamCtx, cancelSpam := context.WithTimeout(ctx, stageTimeout)
	o.classifier.Classify(spamCtx, job.SubmissionID, job.FormData, job.Policy)
	cancelSpam()

	log.Debugf("moderation: submission %d processed", job.SubmissionID)
}
