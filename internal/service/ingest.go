package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/did-node/internal/metrics"
)

// Message 一条入站 gossip 消息；From 为发送方 peer id，仅供参考
type Message struct {
	Data  []byte
	From  string
	enqAt time.Time
}

// Ingester gossip 入站队列：有界通道 + 固定 worker，单条失败不影响循环
type Ingester struct {
	validator  *Validator
	posts      PostStore
	log        *zap.Logger
	metrics    *metrics.Metrics
	ch         chan Message
	jobTimeout time.Duration

	// 每处理一条回调一次，测试用
	onDone func(Message, error)
}

// IngesterOption 可选项
type IngesterOption func(*Ingester)

// WithIngestHook 每条消息处理完毕后回调
func WithIngestHook(fn func(Message, error)) IngesterOption {
	return func(i *Ingester) { i.onDone = fn }
}

func NewIngester(v *Validator, posts PostStore, queueSize int, jobTimeout time.Duration, log *zap.Logger, m *metrics.Metrics, opts ...IngesterOption) *Ingester {
	if queueSize <= 0 {
		queueSize = 10000
	}
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Second
	}
	i := &Ingester{
		validator:  v,
		posts:      posts,
		log:        log,
		metrics:    m,
		ch:         make(chan Message, queueSize),
		jobTimeout: jobTimeout,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Start 启动 workers，返回的 stop 等待在途消息处理完毕（受 ctx 限制）
func (i *Ingester) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	stopCh := make(chan struct{})
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case msg := <-i.ch:
					i.metrics.GossipQueue(len(i.ch))
					i.process(msg)
				case <-stopCh:
					return
				}
			}
		}()
	}
	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() { close(stopCh) })
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Enqueue 入队；队列满时丢弃并告警
func (i *Ingester) Enqueue(msg Message) bool {
	msg.enqAt = time.Now()
	select {
	case i.ch <- msg:
		i.metrics.GossipQueue(len(i.ch))
		return true
	default:
		i.log.Warn("ingest queue full, drop message", zap.String("from", msg.From), zap.Int("bytes", len(msg.Data)))
		i.metrics.Gossip("in", "dropped")
		return false
	}
}

// QueueLen 当前队列长度（采样值）
func (i *Ingester) QueueLen() int { return len(i.ch) }

func (i *Ingester) process(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), i.jobTimeout)
	defer cancel()

	err := i.handle(ctx, msg)
	if i.onDone != nil {
		i.onDone(msg, err)
	}
}

func (i *Ingester) handle(ctx context.Context, msg Message) error {
	sub, err := DecodeSubmission(msg.Data)
	if err != nil {
		i.log.Warn("malformed gossip payload", zap.String("from", msg.From), zap.Error(err))
		i.metrics.Gossip("in", "malformed")
		return reject(ReasonMalformedPayload, "undecodable gossip payload", err)
	}

	out, err := i.validator.ValidateSubmission(ctx, sub, false)
	if err == nil {
		err = store(ctx, i.posts, out, msg.From)
	}
	if err != nil {
		reason := ReasonOf(err)
		i.metrics.Submission("gossip", "rejected", string(reason))
		i.metrics.Gossip("in", "rejected")
		if reason == ReasonDuplicate {
			i.log.Debug("gossip redelivery ignored", zap.String("signature", sub.SignatureHex))
		} else {
			i.log.Info("gossip submission rejected", zap.String("from", msg.From),
				zap.String("reason", string(reason)), zap.Error(err))
		}
		return err
	}

	i.metrics.Submission("gossip", "accepted", "")
	i.metrics.Gossip("in", "ok")
	i.log.Info("gossip post stored", zap.String("from", msg.From),
		zap.String("domain", out.OwnerDomain), zap.String("block", out.BlockHash),
		zap.Duration("queued", time.Since(msg.enqAt)))
	return nil
}
