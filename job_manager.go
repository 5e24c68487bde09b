package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type jobState string

const (
	jobRunning   jobState = "running"
	jobSucceeded jobState = "succeeded"
	jobFailed    jobState = "failed"
	jobCancelled jobState = "cancelled"

	defaultJobRetention = time.Hour
)

var (
	errJobNotFound        = errors.New("audit job not found")
	errJobAlreadyFinished = errors.New("audit job already finished")
)

// jobStatus is a point-in-time copy of a job, safe to hand to callers.
type jobStatus struct {
	ID         string
	Name       string
	State      jobState
	StartedAt  time.Time
	FinishedAt time.Time
	Result     string
	Err        string
}

type auditJob struct {
	jobStatus
	cancel          context.CancelFunc
	cancelRequested bool
}

// jobManager tracks background audits started by start_competitor_audit.
type jobManager struct {
	mu        sync.Mutex
	jobs      map[string]*auditJob
	root      context.Context
	stopRoot  context.CancelFunc
	wg        sync.WaitGroup
	retention time.Duration
	now       func() time.Time
}

func newJobManager(retention time.Duration) *jobManager {
	if retention <= 0 {
		retention = defaultJobRetention
	}
	root, stop := context.WithCancel(context.Background())
	return &jobManager{
		jobs:      make(map[string]*auditJob),
		root:      root,
		stopRoot:  stop,
		retention: retention,
		now:       time.Now,
	}
}

// start runs fn in the background and returns the new job's ID immediately.
func (m *jobManager) start(name string, fn func(ctx context.Context) (string, error)) string {
	ctx, cancel := context.WithCancel(m.root)
	job := &auditJob{
		jobStatus: jobStatus{
			ID:    uuid.NewString(),
			Name:  name,
			State: jobRunning,
		},
		cancel: cancel,
	}

	m.mu.Lock()
	m.pruneLocked()
	job.StartedAt = m.now()
	m.jobs[job.ID] = job
	m.wg.Add(1)
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{"job": job.ID, "name": name}).Info("Audit started")

	go func() {
		defer m.wg.Done()
		defer cancel()
		result, err := fn(ctx)
		m.finish(job, result, err)
	}()
	return job.ID
}

func (m *jobManager) finish(job *auditJob, result string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.FinishedAt = m.now()
	switch {
	case job.cancelRequested:
		job.State = jobCancelled
		job.Err = context.Canceled.Error()
	case err != nil:
		job.State = jobFailed
		job.Err = err.Error()
	default:
		job.State = jobSucceeded
		job.Result = result
	}

	entry := logrus.WithFields(logrus.Fields{
		"job":      job.ID,
		"state":    job.State,
		"duration": job.FinishedAt.Sub(job.StartedAt).Round(time.Millisecond),
	})
	if err != nil && job.State == jobFailed {
		entry.WithError(err).Warn("Audit finished")
		return
	}
	entry.Info("Audit finished")
}

// pruneLocked drops finished jobs older than the retention window. m.mu must be held.
func (m *jobManager) pruneLocked() {
	cutoff := m.now().Add(-m.retention)
	for id, job := range m.jobs {
		if job.State != jobRunning && job.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
}

func (m *jobManager) get(id string) (jobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return jobStatus{}, fmt.Errorf("%w: %s", errJobNotFound, id)
	}
	return job.jobStatus, nil
}

// cancel asks a running job to stop. The job moves to cancelled once its
// goroutine returns.
func (m *jobManager) cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", errJobNotFound, id)
	}
	if job.State != jobRunning {
		return fmt.Errorf("%w: %s is %s", errJobAlreadyFinished, id, job.State)
	}
	job.cancelRequested = true
	job.cancel()
	logrus.WithField("job", id).Info("Audit cancellation requested")
	return nil
}

// cancelAll cancels every running job and waits for their goroutines.
func (m *jobManager) cancelAll() {
	m.mu.Lock()
	running := 0
	for _, job := range m.jobs {
		if job.State == jobRunning {
			job.cancelRequested = true
			running++
		}
	}
	m.mu.Unlock()

	if running > 0 {
		logrus.Infof("Cancelling %d running audits", running)
	}
	m.stopRoot()
	m.wg.Wait()
}

// setupSignalHandler cancels running audits when the server is asked to stop.
func setupSignalHandler(jobs *jobManager) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigs
		logrus.Infof("Received signal: %s. Cancelling running audits...", sig)
		jobs.cancelAll()
		logrus.Info("Cleanup finished.")
	}()
}
