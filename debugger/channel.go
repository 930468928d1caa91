package debugger

// protocolChannel 把代理的响应和通知统一写入发送队列
// 客户端依靠消息内的 id 关联响应，所以不区分两种消息
type protocolChannel struct {
	queue    *MessageQueue
	observer Observer
}

func newProtocolChannel(queue *MessageQueue, observer Observer) *protocolChannel {
	return &protocolChannel{queue: queue, observer: observer}
}

func (c *protocolChannel) SendResponse(callID int, message string) {
	c.observer.MessageQueued(c.queue.Push(message))
}

func (c *protocolChannel) SendNotification(message string) {
	c.observer.MessageQueued(c.queue.Push(message))
}

func (c *protocolChannel) FlushProtocolNotifications() {}
