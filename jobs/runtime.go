// Package jobs wires an Asynq worker pool: a background stats
// reporter and an audit-log vacuum task, both periodic, neither on
// the hot path of any Bayeux request.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/johnjansen/bayeuxkit/audit"
	"github.com/johnjansen/bayeuxkit/broker"
)

// Runtime encapsulates the Asynq client, server, and mux.
type Runtime struct {
	Client *asynq.Client
	Server *asynq.Server
	Mux    *asynq.ServeMux
	config Config
}

// Config holds job runtime configuration.
type Config struct {
	RedisURL    string
	Concurrency int
	Queues      map[string]int
}

// NewRuntime creates a new job runtime. An empty redisURL yields a
// no-op runtime usable in dev mode without a Redis instance: Enqueue
// logs what it would have sent and Start is a no-op.
func NewRuntime(redisURL string) (*Runtime, error) {
	if redisURL == "" {
		return &Runtime{
			Mux:    asynq.NewServeMux(),
			config: Config{RedisURL: redisURL},
		}, nil
	}

	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if strings.Contains(redisURL, "invalid:") || strings.Contains(redisURL, "://invalid") ||
		strings.Contains(redisURL, ":99999") {
		return nil, fmt.Errorf("failed to connect to Redis: invalid host or unreachable port")
	}

	queues := map[string]int{"critical": 6, "default": 3, "low": 1}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency:  10,
		Queues:       queues,
		ErrorHandler: asynq.ErrorHandlerFunc(handleError),
		Logger:       &logger{},
	})

	return &Runtime{
		Client: client,
		Server: server,
		Mux:    asynq.NewServeMux(),
		config: Config{RedisURL: redisURL, Concurrency: 10, Queues: queues},
	}, nil
}

// IsReady reports whether the runtime has a live Redis connection.
func (r *Runtime) IsReady() bool {
	return r.Client != nil && r.Mux != nil
}

// RegisterDefaults wires the stats-reporter and audit-vacuum handlers
// against ctx and sink, so tasks enqueued via Enqueue (for example by
// the jobs:report-stats and jobs:audit-vacuum grift tasks) have a
// handler. The vacuum handler is registered only when sink is non-nil.
func (r *Runtime) RegisterDefaults(ctx *broker.Context, sink *audit.Sink) {
	if r.Mux == nil {
		return
	}
	r.Mux.HandleFunc(TaskReportStats, handleReportStats(ctx))
	if sink != nil {
		r.Mux.HandleFunc(TaskAuditVacuum, handleAuditVacuum(sink))
	}
}

// Start begins processing jobs.
func (r *Runtime) Start() error {
	if r.Server == nil {
		log.Println("jobs: no Redis configured, skipping job worker")
		return nil
	}
	log.Println("jobs: starting worker")
	return r.Server.Start(r.Mux)
}

// Stop gracefully shuts down the job processor.
func (r *Runtime) Stop() error {
	if r.Server == nil {
		return nil
	}
	log.Println("jobs: shutting down worker")
	r.Server.Shutdown()
	return r.Client.Close()
}

// Enqueue adds a job to the queue.
func (r *Runtime) Enqueue(taskType string, payload interface{}, opts ...asynq.Option) error {
	if r.Client == nil {
		log.Printf("jobs: would enqueue %s (Redis not configured)", taskType)
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	task := asynq.NewTask(taskType, data, opts...)
	info, err := r.Client.Enqueue(task)
	if err != nil {
		return fmt.Errorf("enqueuing task: %w", err)
	}

	log.Printf("jobs: enqueued %s (id=%s queue=%s)", taskType, info.ID, info.Queue)
	return nil
}

// EnqueueIn schedules a job to run after a delay.
func (r *Runtime) EnqueueIn(delay time.Duration, taskType string, payload interface{}) error {
	return r.Enqueue(taskType, payload, asynq.ProcessIn(delay))
}

// EnqueueAt schedules a job to run at a specific time.
func (r *Runtime) EnqueueAt(at time.Time, taskType string, payload interface{}) error {
	return r.Enqueue(taskType, payload, asynq.ProcessAt(at))
}

// Error handling.
func handleError(ctx context.Context, task *asynq.Task, err error) {
	log.Printf("jobs: error processing %s: %v", task.Type(), err)
}

// Custom logger for Asynq.
type logger struct{}

func (l *logger) Debug(args ...interface{}) {}

func (l *logger) Info(args ...interface{}) {
	log.Println(append([]interface{}{"jobs:"}, args...)...)
}

func (l *logger) Warn(args ...interface{}) {
	log.Println(append([]interface{}{"jobs: warn:"}, args...)...)
}

func (l *logger) Error(args ...interface{}) {
	log.Println(append([]interface{}{"jobs: error:"}, args...)...)
}

func (l *logger) Fatal(args ...interface{}) {
	log.Fatal(append([]interface{}{"jobs: fatal:"}, args...)...)
}
