package monitor

type MetricTag string

const (
	SuccessfulQueryDurationTag MetricTag = "successful_queries_duration"
	FailureQueryDurationTag    MetricTag = "failure_queries_duration"
	HttpRequestDurationTag     MetricTag = "requests_duration_seconds"
	// Transactions:
	TransactionsCounterTag  MetricTag = "transactions_counter"
	OperationsCounterTag    MetricTag = "operations_counter"
	OperationDurationTag    MetricTag = "operation_duration_seconds"
	DescriptorsEvictedCount MetricTag = "descriptors_evicted_counter"
)

func (m MetricTag) ListAll() []MetricTag {
	return []MetricTag{
		SuccessfulQueryDurationTag,
		FailureQueryDurationTag,
		HttpRequestDurationTag,
		TransactionsCounterTag,
		OperationsCounterTag,
		OperationDurationTag,
		DescriptorsEvictedCount,
	}
}
