package conversation

import "github.com/m-mizutani/goerr/v2"

const (
	DefaultHardCap = 5
	DefaultSoftCap = 2
)

// Policy holds the thresholds that bound the clarifying-question dialogue.
// Reaching HardCap skips assessment entirely; reaching SoftCap after a
// reassessment forces advice even when the model asks for more.
type Policy struct {
	HardCap int
	SoftCap int
}

func DefaultPolicy() Policy {
	return Policy{HardCap: DefaultHardCap, SoftCap: DefaultSoftCap}
}

func (p Policy) Validate() error {
	if p.HardCap < 1 {
		return goerr.New("hard cap must be positive", goerr.V("hard_cap", p.HardCap))
	}
	if p.SoftCap < 1 || p.SoftCap > p.HardCap {
		return goerr.New("soft cap must be between 1 and hard cap",
			goerr.V("soft_cap", p.SoftCap),
			goerr.V("hard_cap", p.HardCap))
	}
	return nil
}

// ShouldForceProceed reports whether advice must be generated without asking
// the model whether more information is needed.
func (p Policy) ShouldForceProceed(contextSize int) bool {
	return contextSize >= p.HardCap
}

func (p Policy) SoftCapReached(contextSize int) bool {
	return contextSize >= p.SoftCap
}
