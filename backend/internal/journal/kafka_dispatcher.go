package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
)

// KafkaDispatcher：本地有界队列 + worker 异步发送 + 有限重试。
// - 不阻塞提交流程（Enqueue 只负责入队）
// - Kafka 短暂阻塞时靠队列吸收，后台慢慢补发
// - 队列满时允许降级（丢弃），避免内存无限增长
type KafkaDispatcher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger

	queue chan TxCommitted
	wg    sync.WaitGroup
	once  sync.Once

	// sem 限制并发的 SendMessage 数量
	sem *SemaphoreControl

	workers        int
	maxRetry       int
	baseBackoff    time.Duration
	maxBackoff     time.Duration
	acquireTimeout time.Duration

	sent    atomic.Uint64
	dropped atomic.Uint64
}

type KafkaDispatcherOptions struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// AcquireTimeout 等发送名额的上限，超时算一次失败的尝试；0 表示一直等
	AcquireTimeout time.Duration
}

func NewKafkaDispatcher(producer sarama.SyncProducer, topic string, sem *SemaphoreControl, opt KafkaDispatcherOptions, logger *slog.Logger) *KafkaDispatcher {
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &KafkaDispatcher{
		producer:    producer,
		topic:       topic,
		logger:      logger,
		queue:       make(chan TxCommitted, opt.QueueSize),
		sem:         sem,
		workers:     opt.Workers,
		maxRetry:    opt.MaxRetry,
		baseBackoff: opt.BaseBackoff,
		maxBackoff:  opt.MaxBackoff,

		acquireTimeout: opt.AcquireTimeout,
	}
	d.start()
	return d
}

// Enqueue 队列满时等到 ctx 结束，超时返回错误（事件不要求每条必达）
func (d *KafkaDispatcher) Enqueue(ctx context.Context, evt TxCommitted) error {
	select {
	case d.queue <- evt:
		return nil
	case <-ctx.Done():
		d.dropped.Add(1)
		return ctx.Err()
	}
}

func (d *KafkaDispatcher) start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.workerLoop(i)
	}
}

// Close 停止接收并等待队列发完；之后不能再 Enqueue
func (d *KafkaDispatcher) Close() {
	d.once.Do(func() {
		close(d.queue)
		d.wg.Wait()
	})
}

func (d *KafkaDispatcher) Sent() uint64    { return d.sent.Load() }
func (d *KafkaDispatcher) Dropped() uint64 { return d.dropped.Load() }

func (d *KafkaDispatcher) workerLoop(workerID int) {
	defer d.wg.Done()
	for evt := range d.queue {
		d.sendWithRetry(workerID, evt)
	}
}

func (d *KafkaDispatcher) sendWithRetry(workerID int, evt TxCommitted) {
	for attempt := 0; attempt <= d.maxRetry; attempt++ {
		err := d.sendGuarded(evt)
		if err == nil {
			d.sent.Add(1)
			return
		}
		if attempt == d.maxRetry {
			d.dropped.Add(1)
			d.logger.Error("kafka send failed, drop event",
				slog.String("event", evt.EventID),
				slog.String("key", evt.Key()),
				slog.Int("worker", workerID),
				slog.String("error", err.Error()))
			return
		}
		// 退避，每次退避时间X2
		backoff := d.baseBackoff * time.Duration(1<<attempt)
		if d.maxBackoff > 0 && backoff > d.maxBackoff {
			backoff = d.maxBackoff
		}
		time.Sleep(backoff)
	}
}

// sendGuarded 拿到发送名额后发一次；拿不到名额不发，返回等待的错误
func (d *KafkaDispatcher) sendGuarded(evt TxCommitted) error {
	if d.sem == nil {
		return d.sendOnce(evt)
	}
	ctx := context.Background()
	if d.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.acquireTimeout)
		defer cancel()
	}
	if err := d.sem.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		if err := d.sem.Release(); err != nil {
			d.logger.Error("kafka send slot release failed", slog.String("error", err.Error()))
		}
	}()
	return d.sendOnce(evt)
}

func (d *KafkaDispatcher) sendOnce(evt TxCommitted) error {
	if d.producer == nil || d.topic == "" {
		return nil
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(evt.Key()),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = d.producer.SendMessage(msg)
	return err
}
