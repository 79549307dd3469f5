package ingestion

const (
	StreamName = "fundtrail_ingestion"

	JobsQueueTopic    = "fundtrail.ingestion.jobs"
	ResultsQueueTopic = "fundtrail.ingestion.results"

	// Progress events are published per session under this prefix; the
	// stream subscribes to the wildcard so late observers can replay.
	ProgressTopicPrefix   = "fundtrail.ingestion.progress."
	ProgressTopicWildcard = "fundtrail.ingestion.progress.>"

	ConsumerGroup = "ingest-worker"
)

// Source tags stored on funding records.
const (
	SourceTagUSASpending = "USAspending.gov"
	SourceTagGrantsGov   = "Grants.gov"
	SourceTagNASBO       = "NASBO"
)
