package types

// InstanceCondition is the provider-neutral classification of a provider state name
type InstanceCondition string

const (
	ConditionPending    InstanceCondition = "pending"    // Still converging
	ConditionReady      InstanceCondition = "ready"      // Running and usable
	ConditionTerminated InstanceCondition = "terminated" // Gone or going away, will never become ready
)

// InstanceSnapshot represents a point-in-time view of a launched instance
type InstanceSnapshot struct {
	InstanceID     string            `json:"instance_id"`
	StateName      string            `json:"state"`
	Condition      InstanceCondition `json:"condition"`
	PublicAddress  string            `json:"public_ip,omitempty"`
	PrivateAddress string            `json:"private_ip,omitempty"`
}
