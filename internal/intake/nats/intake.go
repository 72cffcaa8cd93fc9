package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/djlord-it/easy-relay/internal/domain"
)

const DefaultQueueGroup = "easyrelay"

// Submitter accepts requests for delivery.
type Submitter interface {
	Submit(req domain.DeliveryRequest) error
}

// Subscriber is the subset of *nats.Conn used by Intake.
type Subscriber interface {
	QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Reply is sent back when the message carries a reply subject.
type Reply struct {
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// Intake turns messages on a subject into submitted requests. Malformed
// messages are logged and dropped.
type Intake struct {
	conn      Subscriber
	subject   string
	queue     string
	submitter Submitter
	logger    *zap.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

func NewIntake(conn Subscriber, subject string, submitter Submitter) *Intake {
	return &Intake{
		conn:      conn,
		subject:   subject,
		queue:     DefaultQueueGroup,
		submitter: submitter,
		logger:    zap.NewNop(),
	}
}

func (i *Intake) WithQueueGroup(queue string) *Intake {
	if queue != "" {
		i.queue = queue
	}
	return i
}

func (i *Intake) WithLogger(logger *zap.Logger) *Intake {
	if logger != nil {
		i.logger = logger.Named("intake")
	}
	return i
}

func (i *Intake) Start() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	sub, err := i.conn.QueueSubscribe(i.subject, i.queue, i.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", i.subject, err)
	}
	i.sub = sub
	i.logger.Info("listening", zap.String("subject", i.subject), zap.String("queue", i.queue))
	return nil
}

// Stop drains the subscription so buffered messages are still handled.
func (i *Intake) Stop() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.sub == nil {
		return nil
	}
	err := i.sub.Drain()
	i.sub = nil
	return err
}

func (i *Intake) handle(msg *nats.Msg) {
	id, err := i.accept(msg.Data)
	if err != nil {
		i.logger.Warn("message dropped", zap.String("subject", msg.Subject), zap.Error(err))
		i.reply(msg, Reply{Error: err.Error()})
		return
	}
	i.reply(msg, Reply{ID: id})
}

func (i *Intake) accept(data []byte) (string, error) {
	var body domain.Submission
	if err := json.Unmarshal(data, &body); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if err := body.Validate(); err != nil {
		return "", err
	}

	req := body.Request()
	if err := i.submitter.Submit(req); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}

	i.logger.Debug("request accepted", zap.String("request_id", req.ID.String()))
	return req.ID.String(), nil
}

func (i *Intake) reply(msg *nats.Msg, r Reply) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := msg.Respond(data); err != nil && !errors.Is(err, nats.ErrMsgNotBound) {
		i.logger.Warn("reply failed", zap.Error(err))
	}
}
