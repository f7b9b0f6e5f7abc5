package kafka

import (
	"github.com/IBM/sarama"
)

// NewSyncProducer builds the acknowledged, hash-partitioned producer used
// for audit records.
func NewSyncProducer(brokers []string, clientID string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V2_0_0_0
	config.ClientID = clientID
	config.Producer.MaxMessageBytes = 1000000

	return sarama.NewSyncProducer(brokers, config)
}
