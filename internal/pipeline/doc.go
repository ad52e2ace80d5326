// Package pipeline runs the post-crawl steps on a CrawlReport: writing the
// report, saving it to the results database and publishing it to Kafka.
//
// Steps run in order. By default the first failure stops the pipeline;
// with WithContinueOnError every step runs and the failures are joined.
package pipeline
