package recompute

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

const TaskHTTPDispatch = "recompute.http_dispatch"

const defaultMaxRetry = 10

func NewHTTPDispatchTask(d Dispatch) (*asynq.Task, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskHTTPDispatch, data), nil
}

func ParseHTTPDispatchPayload(task *asynq.Task) (Dispatch, error) {
	var d Dispatch
	if err := json.Unmarshal(task.Payload(), &d); err != nil {
		return Dispatch{}, err
	}
	if d.URL == "" || d.Queue == "" {
		return Dispatch{}, errors.New("recompute: dispatch without url or queue")
	}
	return d, nil
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqDispatcher schedules dispatches as asynq tasks processed at NotBefore on the dispatch's queue.
type AsynqDispatcher struct {
	client   enqueuer
	maxRetry int
}

func NewAsynqDispatcher(client *asynq.Client, maxRetry int) *AsynqDispatcher {
	return newAsynqDispatcher(client, maxRetry)
}

func newAsynqDispatcher(client enqueuer, maxRetry int) *AsynqDispatcher {
	if maxRetry <= 0 {
		maxRetry = defaultMaxRetry
	}
	return &AsynqDispatcher{client: client, maxRetry: maxRetry}
}

func (a *AsynqDispatcher) Schedule(ctx context.Context, d Dispatch) error {
	if a == nil || a.client == nil {
		return errors.New("recompute: dispatcher not configured")
	}
	task, err := NewHTTPDispatchTask(d)
	if err != nil {
		return err
	}
	_, err = a.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(d.NotBefore),
		asynq.Queue(d.Queue),
		asynq.MaxRetry(a.maxRetry),
	)
	return err
}
