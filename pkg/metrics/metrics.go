package metrics

/*
Labels and so on for metrics used in fhdeploy.
*/

const (
	LabelMethod  = "method"
	LabelRoute   = "route"
	LabelSuccess = "success"

	// Labels for deployment cycle metrics
	LabelResult = "result"
	LabelStep   = "step"
)
