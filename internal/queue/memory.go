package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// jobItem — элемент heap: приоритет по убыванию, затем порядок постановки.
type jobItem struct {
	job *Job
	seq uint64
}

type jobHeap []jobItem

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority > h[j].job.Priority
	}
	return h[i].seq < h[j].seq
}
func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x any)   { *h = append(*h, x.(jobItem)) }
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

type memoryQueue struct {
	mu      sync.Mutex
	ready   jobHeap
	delayed int
	dead    []*Job
	seq     uint64
	notify  chan struct{}
}

func newMemoryQueue() *memoryQueue {
	return &memoryQueue{notify: make(chan struct{}, 1)}
}

func (q *memoryQueue) push(job *Job) {
	q.mu.Lock()
	q.seq++
	heap.Push(&q.ready, jobItem{job: job, seq: q.seq})
	q.mu.Unlock()
	q.signal()
}

func (q *memoryQueue) pop() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ready.Len() == 0 {
		return nil
	}
	item := heap.Pop(&q.ready).(jobItem)
	if q.ready.Len() > 0 {
		q.signal()
	}
	return item.job
}

func (q *memoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// MemoryBroker — in-process Broker.
//
// Задачи живут в памяти процесса и теряются при рестарте.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string]*memoryQueue
}

// NewMemoryBroker создаёт MemoryBroker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{queues: make(map[string]*memoryQueue)}
}

func (b *MemoryBroker) queue(name string) *memoryQueue {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		q = newMemoryQueue()
		b.queues[name] = q
	}
	return q
}

func (b *MemoryBroker) Declare(_ context.Context, def Definition) error {
	b.queue(def.Name)
	return nil
}

func (b *MemoryBroker) Publish(_ context.Context, job *Job, delay time.Duration) error {
	q := b.queue(job.Queue)
	clone := *job

	if delay <= 0 {
		q.push(&clone)
		return nil
	}

	q.mu.Lock()
	q.delayed++
	q.mu.Unlock()

	time.AfterFunc(delay, func() {
		q.mu.Lock()
		q.delayed--
		q.mu.Unlock()
		q.push(&clone)
	})
	return nil
}

func (b *MemoryBroker) Consume(ctx context.Context, name string, concurrency int, handle Handler) error {
	q := b.queue(name)
	if concurrency <= 0 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job := q.pop()
				if job == nil {
					select {
					case <-ctx.Done():
						return
					case <-q.notify:
						continue
					}
				}

				if err := handle(ctx, job); err != nil {
					q.push(job)
				}

				if ctx.Err() != nil {
					return
				}
			}
		}()
	}

	wg.Wait()
	return ctx.Err()
}

func (b *MemoryBroker) DeadLetter(_ context.Context, job *Job, _ error) error {
	q := b.queue(job.Queue)
	clone := *job

	q.mu.Lock()
	q.dead = append(q.dead, &clone)
	q.mu.Unlock()
	return nil
}

func (b *MemoryBroker) Stats(_ context.Context, name string) (BrokerStats, error) {
	q := b.queue(name)

	q.mu.Lock()
	defer q.mu.Unlock()

	return BrokerStats{
		Waiting: q.ready.Len(),
		Delayed: q.delayed,
		Dead:    len(q.dead),
	}, nil
}

// DeadLetters возвращает задачи из DLQ очереди.
func (b *MemoryBroker) DeadLetters(name string) []*Job {
	q := b.queue(name)

	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*Job, len(q.dead))
	copy(out, q.dead)
	return out
}
