package debugger

import (
	"sync"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
)

// MessageQueue 线程安全的先进先出消息队列
// 解释器线程写入，任意线程读取
type MessageQueue struct {
	lock  sync.Mutex
	queue *linkedlistqueue.Queue
}

func NewMessageQueue() *MessageQueue {
	return &MessageQueue{
		queue: linkedlistqueue.New(),
	}
}

// Push 入队并返回当前长度
func (q *MessageQueue) Push(message string) int {
	q.lock.Lock()
	defer q.lock.Unlock()
	q.queue.Enqueue(message)
	return q.queue.Size()
}

// Pop 出队，队列为空时返回 false
func (q *MessageQueue) Pop() (string, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	value, ok := q.queue.Dequeue()
	if !ok {
		return "", false
	}
	return value.(string), true
}

func (q *MessageQueue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.queue.Size()
}

// Clear 清空队列，返回丢弃的消息数量
func (q *MessageQueue) Clear() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	n := q.queue.Size()
	q.queue.Clear()
	return n
}
