package gateway

import (
	"fmt"

	"linkgate/pkg/identity"
	"linkgate/pkg/storage"
)

type policy struct {
	// requireIdentity holds the destination until a proof is accepted or,
	// with allowFallback, the visitor opts out.
	requireIdentity bool
	acceptPassive   bool
	allowFallback   bool
}

// policyFor is the only place identity modes are interpreted.
func policyFor(mode storage.IdentityMode) (policy, error) {
	switch mode {
	case storage.IdentityOff:
		return policy{}, nil
	case storage.IdentityRequired:
		return policy{requireIdentity: true}, nil
	case storage.IdentityOptional:
		return policy{requireIdentity: true, acceptPassive: true, allowFallback: true}, nil
	}
	return policy{}, fmt.Errorf("%w %q", ErrUnknownMode, mode)
}

func (p policy) channels() []identity.Channel {
	if p.acceptPassive {
		return []identity.Channel{identity.ChannelExplicit, identity.ChannelPassive}
	}
	return []identity.Channel{identity.ChannelExplicit}
}
