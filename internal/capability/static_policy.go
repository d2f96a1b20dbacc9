package capability

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/FallSteph/Syllabuksu/model"
)

//go:embed default_policy.yaml
var defaultPolicy []byte

type policyFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// StaticPolicyEvaluator resolves capabilities from a YAML document mapping
// roles to capability strings.
type StaticPolicyEvaluator struct {
	path   string
	mu     sync.RWMutex
	policy policyFile
}

// NewStaticPolicyEvaluator creates a new evaluator that loads policies from
// path. An empty path uses the built-in policy.
func NewStaticPolicyEvaluator(path string) (*StaticPolicyEvaluator, error) {
	e := &StaticPolicyEvaluator{path: path}
	if err := e.Sync(); err != nil {
		return nil, err
	}
	return e, nil
}

// ResolveCapabilities returns the capabilities granted to the role in the
// request context.
func (e *StaticPolicyEvaluator) ResolveCapabilities(rctx *model.RequestContext) (model.CapabilitySet, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return model.NewCapabilitySet(e.policy.Roles[string(rctx.Role)]...), nil
}

// Loaded reports whether a policy with at least one role is in place.
func (e *StaticPolicyEvaluator) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.policy.Roles) > 0
}

// Sync reloads the policy from disk, or from the built-in copy when no path
// is configured.
func (e *StaticPolicyEvaluator) Sync() error {
	data := defaultPolicy
	source := "built-in policy"
	if e.path != "" {
		var err error
		data, err = os.ReadFile(e.path)
		if err != nil {
			return fmt.Errorf("capability: reading policy file %s: %w", e.path, err)
		}
		source = e.path
	}

	var p policyFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("capability: parsing %s: %w", source, err)
	}
	for role := range p.Roles {
		if !model.Role(role).Valid() {
			return fmt.Errorf("capability: %s: unknown role %q", source, role)
		}
	}

	e.mu.Lock()
	e.policy = p
	e.mu.Unlock()

	return nil
}
