package taskqueue

import (
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Worker runs the asynq server that delivers alert notifications
type Worker struct {
	srv *asynq.Server
	mux *asynq.ServeMux
	log *zap.Logger
}

// NewWorker creates a worker consuming from redisAddr
func NewWorker(redisAddr string, concurrency int, d Deliverer, log *zap.Logger) *Worker {
	log = log.Named("taskqueue")
	if concurrency <= 0 {
		concurrency = 10
	}
	mux := asynq.NewServeMux()
	mux.Handle(TypeAlertNotify, HandleAlertNotify(d, log))
	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: concurrency,
		Logger:      log.Sugar(),
	})
	return &Worker{srv: srv, mux: mux, log: log}
}

// Start starts processing in the background
func (w *Worker) Start() error {
	w.log.Info("starting workers")
	return w.srv.Start(w.mux)
}

// Stop stops the workers
func (w *Worker) Stop() {
	w.log.Info("stopping workers")
	w.srv.Shutdown()
	w.log.Info("workers stopped")
}
