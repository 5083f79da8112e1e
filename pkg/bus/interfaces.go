package bus

type Publisher interface {
	Publish(StatusEvent)
}

type Subscriber interface {
	Subscribe(buffer int) (uint64, <-chan StatusEvent)
	Unsubscribe(id uint64)
}

type Broker interface {
	Publisher
	Subscriber
	Last() (StatusEvent, bool)
	Close()
}
