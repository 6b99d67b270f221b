package sqlbuild

import "fmt"

// AdvancedCriteriaConstructor is the `_constructor` marker distinguishing an
// AdvancedCriteria tree from simple field/value criteria.
const AdvancedCriteriaConstructor = "AdvancedCriteria"

// Criterion is one node of an AdvancedCriteria tree: either a logical node
// (and/or/not over Criteria) or a field node testing FieldName against Value
// or the Start/End range.
type Criterion struct {
	Operator  Operator
	FieldName string
	Value     interface{}
	Start     interface{}
	End       interface{}
	Criteria  []*Criterion

	// badChildren marks a logical node whose `criteria` attribute was present
	// but not a list. Such a node compiles to the always-false constant so the
	// containing expression stays well-formed.
	badChildren bool
}

// IsAdvancedCriteria reports whether a decoded criteria object carries the
// AdvancedCriteria marker or otherwise looks like a criterion node (an
// `operator` key), as opposed to a simple field/value map.
func IsAdvancedCriteria(criteria map[string]interface{}) bool {
	if criteria == nil {
		return false
	}
	if ctor, ok := criteria["_constructor"].(string); ok && ctor == AdvancedCriteriaConstructor {
		return true
	}
	return false
}

// ParseCriterion converts a decoded JSON/XML object into a Criterion tree.
func ParseCriterion(raw map[string]interface{}) (*Criterion, error) {
	opStr, ok := raw["operator"].(string)
	if !ok || opStr == "" {
		return nil, fmt.Errorf("criterion has no operator: %v", raw)
	}

	crit := &Criterion{Operator: Operator(opStr)}

	if crit.Operator.IsLogical() {
		children, present := raw["criteria"]
		if !present || children == nil {
			// Missing child list; the compiler logs and omits the node.
			return crit, nil
		}
		list, ok := children.([]interface{})
		if !ok {
			crit.badChildren = true
			return crit, nil
		}
		for _, child := range list {
			childMap, ok := child.(map[string]interface{})
			if !ok {
				crit.badChildren = true
				return crit, nil
			}
			childCrit, err := ParseCriterion(childMap)
			if err != nil {
				return nil, err
			}
			crit.Criteria = append(crit.Criteria, childCrit)
		}
		return crit, nil
	}

	fieldName, _ := raw["fieldName"].(string)
	crit.FieldName = fieldName
	crit.Value = raw["value"]
	crit.Start = raw["start"]
	crit.End = raw["end"]
	return crit, nil
}
