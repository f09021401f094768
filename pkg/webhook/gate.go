package webhook

import (
	"fmt"
	"net/http"

	"github.com/Jeffail/gabs"
	"github.com/google/go-github/v28/github"
	pkgerrors "github.com/pkg/errors"
	"github.com/ryanuber/go-glob"

	fhdeployerr "github.com/fluxcd/fhdeploy/pkg/errors"
)

const workflowJobEvent = "workflow_job"

// Gate decides whether an authenticated GitHub event is one that
// should trigger a deployment: the completion, with success, of a
// workflow job whose name matches one of JobPatterns. It only ever
// decides *whether* to run a cycle; nothing in the payload has any
// say in what gets deployed.
type Gate struct {
	// Glob patterns (`*` matches anything) for the job name
	JobPatterns []string
}

// DefaultJobPatterns matches any job with the hostname in its name.
func DefaultJobPatterns(hostname string) []string {
	return []string{"*" + hostname + "*"}
}

// Admit returns whether the event should trigger a cycle, and if not,
// why not. A workflow_job event that can't be parsed is an error,
// rather than a reason to ignore it.
func (g Gate) Admit(r *http.Request, body []byte) (bool, string, error) {
	if event := github.WebHookType(r); event != workflowJobEvent {
		return false, fmt.Sprintf("event %q is not %s", event, workflowJobEvent), nil
	}

	payload, err := gabs.ParseJSON(body)
	if err != nil {
		return false, "", invalidPayload(err)
	}
	if action, _ := payload.Path("action").Data().(string); action != "completed" {
		return false, fmt.Sprintf("action %q is not completed", action), nil
	}
	if conclusion, _ := payload.Path("workflow_job.conclusion").Data().(string); conclusion != "success" {
		return false, fmt.Sprintf("conclusion %q is not success", conclusion), nil
	}
	name, _ := payload.Path("workflow_job.name").Data().(string)
	for _, pattern := range g.JobPatterns {
		if glob.Glob(pattern, name) {
			return true, "", nil
		}
	}
	return false, fmt.Sprintf("job %q does not match %v", name, g.JobPatterns), nil
}

func invalidPayload(err error) error {
	return &fhdeployerr.Error{
		Type: fhdeployerr.User,
		Err:  pkgerrors.Wrap(err, "invalid payload"),
		Help: `Invalid payload

The request was signed, but its body is not the JSON of a GitHub
workflow_job event.
`,
	}
}
