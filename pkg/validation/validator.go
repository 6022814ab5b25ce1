package validation

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/turtacn/littlejwt/pkg/keys"
	"github.com/turtacn/littlejwt/pkg/revocation"
	"github.com/turtacn/littlejwt/pkg/signing"
	"github.com/turtacn/littlejwt/pkg/token"
	"github.com/turtacn/littlejwt/pkg/utils"
)

// errRuleFailed stops a run. It never leaves this package.
var errRuleFailed = stderrors.New("rule failed")

// AfterHook observes the outcome of a run.
type AfterHook func(ctx context.Context, tok token.Claims, passed bool, errs map[string]string)

// Validator accumulates rules. Validatables add to it the way buildables add
// claims to a builder. Once configured it can validate any number of tokens
// concurrently as long as it is not modified.
type Validator struct {
	before        []Rule
	rules         []Rule
	after         []AfterHook
	stopOnFailure bool
}

// NewValidator returns an empty validator that stops on the first failure.
func NewValidator() *Validator {
	return &Validator{stopOnFailure: true}
}

// AddBeforeRule appends rules that run first and always stop the run on failure.
func (v *Validator) AddBeforeRule(rules ...Rule) *Validator {
	v.before = append(v.before, rules...)
	return v
}

// AddRule appends rules.
func (v *Validator) AddRule(rules ...Rule) *Validator {
	v.rules = append(v.rules, rules...)
	return v
}

// AddAfterHook appends a hook run once the outcome is known.
func (v *Validator) AddAfterHook(hooks ...AfterHook) *Validator {
	v.after = append(v.after, hooks...)
	return v
}

// StopOnFailure sets whether the first failing rule ends the run.
func (v *Validator) StopOnFailure(stop bool) *Validator {
	v.stopOnFailure = stop
	return v
}

// Rules returns the before-rules followed by the rules.
func (v *Validator) Rules() []Rule {
	out := make([]Rule, 0, len(v.before)+len(v.rules))
	out = append(out, v.before...)
	return append(out, v.rules...)
}

// ValidSignature adds a before-rule verifying the signature with key.
func (v *Validator) ValidSignature(engine *signing.Engine, key *keys.Key) *Validator {
	return v.AddBeforeRule(ValidSignature(engine, key))
}

// ContainsClaims adds a before-rule requiring keys in the payload.
func (v *Validator) ContainsClaims(keys ...string) *Validator {
	return v.AddBeforeRule(ContainsClaims(keys, false))
}

// ContainsHeaderClaims adds a before-rule requiring keys in the header.
func (v *Validator) ContainsHeaderClaims(keys ...string) *Validator {
	return v.AddBeforeRule(ContainsHeaderClaims(keys, false))
}

// Equals adds a loose equality rule on a payload claim.
func (v *Validator) Equals(claim string, expected interface{}) *Validator {
	return v.AddRule(Equals(claim, expected, false))
}

// Past adds a rule requiring claim to be at or before now plus leeway.
func (v *Validator) Past(claim string, leeway time.Duration, clock utils.Clock) *Validator {
	return v.AddRule(Past(claim, leeway, clock))
}

// Future adds a rule requiring claim to be after now minus leeway.
func (v *Validator) Future(claim string, leeway time.Duration, clock utils.Clock) *Validator {
	return v.AddRule(Future(claim, leeway, clock))
}

// Allowed adds a rule failing tokens the store reports as revoked.
func (v *Validator) Allowed(store revocation.Store) *Validator {
	return v.AddRule(Allowed(store))
}

// Result is the outcome of a run. Failed lists rule identifiers in the order
// they failed; Errors maps each to its message.
type Result struct {
	Passed bool
	Errors map[string]string
	Failed []string
}

// Err returns the failures as one error, or nil when the run passed.
func (r Result) Err() error {
	if r.Passed {
		return nil
	}
	var merr *multierror.Error
	for _, id := range r.Failed {
		merr = multierror.Append(merr, &RuleError{Rule: id, Message: r.Errors[id]})
	}
	if merr == nil {
		return &RuleError{Message: "validation stopped"}
	}
	return merr.ErrorOrNil()
}

// RuleError is one failed rule.
type RuleError struct {
	Rule    string
	Message string
}

func (e *RuleError) Error() string {
	if e.Rule == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

type run struct {
	result Result
	stop   bool
}

func (r *run) check(ctx context.Context, tok token.Claims, rules []Rule, alwaysStop bool) error {
	for _, rule := range rules {
		if rule.Passes(ctx, tok) {
			continue
		}
		id := rule.Identifier()
		if _, seen := r.result.Errors[id]; !seen {
			r.result.Errors[id] = rule.Message()
			r.result.Failed = append(r.result.Failed, id)
		}
		if alwaysStop || r.stop {
			return errRuleFailed
		}
	}
	return nil
}

// Validate runs before-rules, then rules, then the after hooks. Ordinary rule
// failures are reported in the Result, never as errors.
func (v *Validator) Validate(ctx context.Context, tok token.Claims) Result {
	r := &run{
		result: Result{Errors: make(map[string]string)},
		stop:   v.stopOnFailure,
	}
	err := r.check(ctx, tok, v.before, true)
	if err == nil {
		err = r.check(ctx, tok, v.rules, false)
	}
	r.result.Passed = err == nil && len(r.result.Errors) == 0

	for _, hook := range v.after {
		hook(ctx, tok, r.result.Passed, r.result.Errors)
	}
	return r.result
}
