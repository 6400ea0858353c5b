package aggregator

import "fmt"

// MinDocumentsForAggregation is the smallest document set that can produce
// cross-document insights.
const MinDocumentsForAggregation = 2

// InsufficientDocumentsError is the only failure surfaced to callers as an
// error: the request named fewer than the minimum number of documents.
// Every other failure is absorbed into telemetry.
type InsufficientDocumentsError struct {
	Requested int
}

func (e *InsufficientDocumentsError) Error() string {
	return fmt.Sprintf("need at least %d documents for aggregation, received %d",
		MinDocumentsForAggregation, e.Requested)
}
