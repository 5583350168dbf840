// Package policy classifies coalesced file changes into reload decisions.
//
// Classification is a pure function of the change paths and the configured
// pattern rules. Severity is ordered: full restart dominates asset reload
// dominates ignore, so one code-file change anywhere in a set forces a full
// restart no matter how many asset paths accompany it.
package policy

import "sort"

// Kind is the severity-ordered outcome of classifying a change set.
type Kind int

const (
	// DecisionIgnore means no action is required.
	DecisionIgnore Kind = iota

	// DecisionAssetReload means browsers should re-fetch the changed assets.
	DecisionAssetReload

	// DecisionFullRestart means the application process must be restarted.
	DecisionFullRestart
)

// String returns a human-readable decision name.
func (k Kind) String() string {
	switch k {
	case DecisionFullRestart:
		return "full-restart"
	case DecisionAssetReload:
		return "asset-reload"
	default:
		return "ignore"
	}
}

// Decision is the outcome of classifying one change set.
type Decision struct {
	Kind Kind

	// Assets carries the changed asset paths when Kind is DecisionAssetReload.
	Assets []string
}

// Rules configures the classifier.
type Rules struct {
	// Code patterns force a full restart.
	Code []string

	// Asset patterns allow a browser-side reload.
	Asset []string

	// Ignore patterns produce no action.
	Ignore []string
}

// Policy classifies change sets according to compiled rules.
type Policy struct {
	code   *PatternSet
	asset  *PatternSet
	ignore *PatternSet
}

// New compiles rules into a Policy.
func New(rules Rules) (*Policy, error) {
	code, err := CompilePatterns(rules.Code)
	if err != nil {
		return nil, err
	}
	asset, err := CompilePatterns(rules.Asset)
	if err != nil {
		return nil, err
	}
	ignore, err := CompilePatterns(rules.Ignore)
	if err != nil {
		return nil, err
	}
	return &Policy{code: code, asset: asset, ignore: ignore}, nil
}

// Decide classifies the paths of one change set and returns the most severe
// applicable decision. Paths matching no rule at all are treated as code: a
// restart is the only decision that is always safe for an unknown file.
func (p *Policy) Decide(paths []string) Decision {
	kind := DecisionIgnore
	var assets []string

	for _, path := range paths {
		switch p.classify(path) {
		case DecisionFullRestart:
			// Highest severity, nothing can override it.
			return Decision{Kind: DecisionFullRestart}
		case DecisionAssetReload:
			kind = DecisionAssetReload
			assets = append(assets, path)
		}
	}

	if kind != DecisionAssetReload {
		return Decision{Kind: DecisionIgnore}
	}

	sort.Strings(assets)
	return Decision{Kind: DecisionAssetReload, Assets: assets}
}

// classify resolves the severity of a single path. Ignore rules win over
// classification rules so excluded paths never escalate, and asset rules are
// checked before code rules so extensions appearing in both lists stay
// browser-reloadable.
func (p *Policy) classify(path string) Kind {
	switch {
	case p.ignore.Match(path):
		return DecisionIgnore
	case p.asset.Match(path):
		return DecisionAssetReload
	case p.code.Match(path):
		return DecisionFullRestart
	default:
		return DecisionFullRestart
	}
}
