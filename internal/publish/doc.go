// Package publish sends crawl results to Kafka with segmentio/kafka-go so
// downstream consumers (indexers, change trackers) can pick them up.
package publish
