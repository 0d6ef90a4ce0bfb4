package constants

// Mapping status
const (
	MappingStatusInitiated = "initiated"
	MappingStatusPaid      = "paid"
)

// Payment provider written into external order documents
const (
	PaymentProviderPayPro = "paypro"
)

// Sources that can drive a paid transition
const (
	PaidSourceCallback        = "callback"
	PaidSourceInvoiceCallback = "invoice_callback"
	PaidSourcePoll            = "poll"
)

// Invoice callback acknowledgement codes
const (
	InvoiceStatusSuccess      = "00"
	InvoiceStatusInvalidInput = "01"
	InvoiceStatusServiceError = "02"
	InvoiceStatusNoData       = "03"

	// InvoiceCallbackIDsField carries the comma separated order ids.
	InvoiceCallbackIDsField = "csvinvoiceids"
)

// Queue names and task types
const (
	QueueDefault          = "default"
	TaskPaidReceiptEmail  = "paypro:paid_receipt"
	LockPrefixInitiate    = "initiate:"
	LockPrefixPaid        = "paid:"
	LockPrefixReceipt     = "receipt:"
	ExternalOrdersPattern = "artifacts/%s/users/%s/orders/%s"
)
