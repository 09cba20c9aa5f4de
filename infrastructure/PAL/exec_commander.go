// Package PAL abstracts the platform tooling the tunnel shells out to.
package PAL

import "os/exec"

// Commander runs platform commands such as ip and resolvectl.
type Commander interface {
	CombinedOutput(name string, args ...string) ([]byte, error)
}

type ExecCommander struct {
}

func NewExecCommander() Commander {
	return &ExecCommander{}
}

func (r *ExecCommander) CombinedOutput(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}
