package kafka

import "github.com/segmentio/kafka-go"

// KafkaHeaderCarrier adapts message headers to propagation.TextMapCarrier so
// trace context travels with each published event.
type KafkaHeaderCarrier struct {
	headers *[]kafka.Header
}

// NewHeaderCarrier wraps headers. Set appends to or overwrites entries in place.
func NewHeaderCarrier(headers *[]kafka.Header) *KafkaHeaderCarrier {
	return &KafkaHeaderCarrier{headers: headers}
}

func (c *KafkaHeaderCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *KafkaHeaderCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *KafkaHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}
