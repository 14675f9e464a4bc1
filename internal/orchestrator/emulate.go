package orchestrator

import (
	"fmt"

	"github.com/digital-iq/llm-report/pkg/models"
)

// emulatedTemplate is the placeholder for subtasks that need live command
// output. The canned listing sits in an AsciiDoc listing block so it
// renders verbatim.
const emulatedTemplate = `[EMULATED OUTPUT]

This is simulated command output for subtask:

%s

Example results:

----
$ oc get nodes
NAME       STATUS   ROLES    AGE   VERSION
master-0   Ready    master   60d   v4.12.3
worker-0   Ready    worker   60d   v4.12.3

$ oc get pods --all-namespaces
NAMESPACE       NAME                           READY   STATUS
openshift-api   api-server-xyz                 1/1     Running
...
----`

// Emulate synthesizes the deterministic placeholder output for d.
// No backend is called.
func Emulate(d models.SubtaskDescriptor) string {
	return fmt.Sprintf(emulatedTemplate, d.Title)
}
