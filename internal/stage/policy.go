// Package stage resolves the ordered approval path for a purchase request.
package stage

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/fx"

	"github.com/unipro/procurement/internal/config"
	"github.com/unipro/procurement/internal/entity"
	"github.com/unipro/procurement/internal/identity"
)

// ErrConfiguration flags broken stage policy data. It is an operator problem,
// never a user-correctable one.
var ErrConfiguration = errors.New("invalid stage configuration")

// Stage is one step of the approval path, bound to exactly one deciding role.
type Stage struct {
	Name string
	Role identity.Role
}

// List is an ordered approval path.
type List []Stage

// First returns the opening stage.
func (l List) First() Stage {
	return l[0]
}

// ByName looks a stage up by its name.
func (l List) ByName(name string) (Stage, bool) {
	for _, s := range l {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// Next returns the stage after the named one, or false when the named stage
// is last (or unknown).
func (l List) Next(name string) (Stage, bool) {
	for i, s := range l {
		if s.Name == name && i+1 < len(l) {
			return l[i+1], true
		}
	}
	return Stage{}, false
}

// Policy derives the approval path for a purchase request. Resolution must be
// deterministic: the same request always yields the same list, so policy
// changes never reroute an in-flight request.
type Policy interface {
	Resolve(pr *entity.PurchaseRequest) (List, error)
	// ForRole returns the stage the given role decides in, used for
	// pending-approval work queues.
	ForRole(role identity.Role) (Stage, bool)
}

// Module provides the configured policy.
var Module = fx.Provide(NewPolicy)

// DefaultSequence is the built-in three-step path. Stage names are display
// vocabulary; the deciding role is bound explicitly rather than inferred from
// the name.
func DefaultSequence() List {
	return List{
		{Name: "Purchasing", Role: identity.RolePurchasing},
		{Name: "Cost Control", Role: identity.RoleCostControl},
		{Name: "GM", Role: identity.RoleGM},
	}
}

// FixedPolicy applies one constant sequence to every purchase request.
type FixedPolicy struct {
	sequence List
}

// NewPolicy builds the policy from configuration, falling back to the
// built-in sequence.
func NewPolicy(cfg config.Config) (Policy, error) {
	if len(cfg.Approval.Stages) == 0 {
		return NewFixedPolicy(DefaultSequence())
	}
	seq, err := parseSequence(cfg.Approval.Stages)
	if err != nil {
		return nil, err
	}
	return NewFixedPolicy(seq)
}

// NewFixedPolicy validates and wraps a constant sequence.
func NewFixedPolicy(seq List) (*FixedPolicy, error) {
	if len(seq) == 0 {
		return nil, fmt.Errorf("%w: empty stage list", ErrConfiguration)
	}
	seen := make(map[string]struct{}, len(seq))
	for _, s := range seq {
		if s.Name == "" {
			return nil, fmt.Errorf("%w: stage with empty name", ErrConfiguration)
		}
		if s.Role == "" {
			return nil, fmt.Errorf("%w: stage %q has no role", ErrConfiguration, s.Name)
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate stage %q", ErrConfiguration, s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return &FixedPolicy{sequence: seq}, nil
}

// Resolve returns the approval path. The path depends only on immutable
// request attributes, so for a fixed policy it is the same for every request.
func (p *FixedPolicy) Resolve(_ *entity.PurchaseRequest) (List, error) {
	return p.sequence, nil
}

// ForRole returns the stage a role decides in.
func (p *FixedPolicy) ForRole(role identity.Role) (Stage, bool) {
	for _, s := range p.sequence {
		if s.Role == role {
			return s, true
		}
	}
	return Stage{}, false
}

// parseSequence reads "Stage Name:role" pairs from configuration.
func parseSequence(pairs []string) (List, error) {
	seq := make(List, 0, len(pairs))
	for _, pair := range pairs {
		name, rawRole, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("%w: malformed stage %q, want name:role", ErrConfiguration, pair)
		}
		role, ok := identity.ParseRole(strings.TrimSpace(rawRole))
		if !ok {
			return nil, fmt.Errorf("%w: unknown role in stage %q", ErrConfiguration, pair)
		}
		seq = append(seq, Stage{Name: strings.TrimSpace(name), Role: role})
	}
	return seq, nil
}
