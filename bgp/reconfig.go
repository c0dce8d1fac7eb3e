package bgp

import (
	"encoding/json"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

// PolicyRuleConfig is the JSON-documented form of one rule: a reject-all,
// a fixed local-pref override, or (with neither set) an accept-everything
// no-op. Real deployments would carry richer match/action
// vocabularies; this is enough structure for a reconfiguration round
// trip to be meaningful.
type PolicyRuleConfig struct {
	Name           string `json:"name"`
	SetLocalPref   bool   `json:"set_local_pref"`
	LocalPrefValue uint32 `json:"local_pref_value,omitempty"`
	RejectAll      bool   `json:"reject_all,omitempty"`
}

// PolicyConfigDocument is a PolicyTable's rule set rendered as the JSON
// document a JSON Merge Patch (RFC 7396) is applied against to reconfigure
// a running Export/SourceMatch table without tearing down the peering.
type PolicyConfigDocument struct {
	Rules []PolicyRuleConfig `json:"rules"`
}

func (c PolicyRuleConfig) toRule() PolicyRule {
	switch {
	case c.RejectAll:
		return func(*BGPVarRW) bool { return false }
	case c.SetLocalPref:
		value := c.LocalPrefValue
		return func(rw *BGPVarRW) bool {
			rw.LocalPref = value
			rw.HasLocalPref = true
			return true
		}
	default:
		return func(*BGPVarRW) bool { return true }
	}
}

// ApplyConfig replaces pt's rule set with doc's, in order.
func (pt *PolicyTable) ApplyConfig(doc PolicyConfigDocument) {
	rules := make([]PolicyRule, len(doc.Rules))
	for i, rc := range doc.Rules {
		rules[i] = rc.toRule()
	}
	pt.SetRules(rules)
}

// ReconfigureFromPatch marshals current, applies a JSON Merge Patch to it,
// unmarshals the result, and installs it as pt's new rule set — used by a
// config-reload path that only has a patch document, not a full new one.
// json-patch only computes the merged document; re-filtering existing RIB
// state is FilterStage.ReapplyAll's job, not this function's.
func (pt *PolicyTable) ReconfigureFromPatch(current PolicyConfigDocument, mergePatch []byte) (PolicyConfigDocument, error) {
	currentJSON, err := json.Marshal(current)
	if err != nil {
		return PolicyConfigDocument{}, err
	}
	merged, err := jsonpatch.MergePatch(currentJSON, mergePatch)
	if err != nil {
		return PolicyConfigDocument{}, err
	}
	var next PolicyConfigDocument
	if err := json.Unmarshal(merged, &next); err != nil {
		return PolicyConfigDocument{}, err
	}
	pt.ApplyConfig(next)
	return next, nil
}
