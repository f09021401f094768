package http

const (
	Health   = "Health"
	Webhook  = "Webhook"
	Status   = "Status"
	Version  = "Version"
	Metrics  = "Metrics"
	NotFound = "NotFound"
)
