package events

// Topic constants for billing domain events.
const (
	TopicInvoiceCreated  = "invoice.created"
	TopicInvoiceUpdated  = "invoice.updated"
	TopicInvoicePaid     = "invoice.paid"
	TopicInvoiceDeleted  = "invoice.deleted"
	TopicEstimateCreated = "estimate.created"
	TopicEstimateUpdated = "estimate.updated"
	TopicEstimateDeleted = "estimate.deleted"
)

// Topic returns "<kind>.<action>", e.g. Topic("invoice", "created").
func Topic(kind, action string) string {
	return kind + "." + action
}
