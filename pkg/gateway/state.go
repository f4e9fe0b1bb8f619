package gateway

// State is a step of the per-request redirect state machine.
type State string

const (
	StateInit             State = "INIT"
	StateLookup           State = "LOOKUP"
	StateNotFound         State = "ERROR_NOT_FOUND"
	StateInactive         State = "ERROR_INACTIVE"
	StatePassthrough      State = "PASSTHROUGH"
	StateAwaitIdentity    State = "AWAIT_IDENTITY"
	StateVisitRecorded    State = "VISIT_RECORDED"
	StateIdentityVerified State = "IDENTITY_VERIFIED"
	StateIdentityRejected State = "IDENTITY_REJECTED"
	StateReleased         State = "RELEASED"
)

// Terminal reports whether the invocation ends in s.
func (s State) Terminal() bool {
	switch s {
	case StateReleased, StateInactive, StateNotFound, StateIdentityRejected:
		return true
	}
	return false
}
