package eventbus

type (
	MessageWriter = messageWriter
	MessageReader = messageReader
)

func NewKafkaPublisherWithWriter(w MessageWriter, opts ...Option) *KafkaPublisher {
	return newKafkaPublisher(w, opts...)
}

func NewKafkaSubscriberWithReader(r MessageReader, opts ...Option) *KafkaSubscriber {
	return newKafkaSubscriber(r, opts...)
}
