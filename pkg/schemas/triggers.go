package schemas

// TriggerSource identifies what initiated a deployment run.
type TriggerSource string

const (
	// TriggerSourceManual marks a run started from the command line.
	TriggerSourceManual TriggerSource = "manual"

	// TriggerSourceWebhook marks a run started by a push event webhook.
	TriggerSourceWebhook TriggerSource = "webhook"
)

// Trigger carries everything needed to start one deployment run: the target
// to deploy to and the (branch, revision) pair identifying the release.
type Trigger struct {
	Target   string        // Name of the configured target
	Branch   string        // Source branch name
	Revision string        // Revision identifier
	Source   TriggerSource // What initiated the run
}
