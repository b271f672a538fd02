package dedup

import (
	"fmt"

	"github.com/kirillkom/property-docs/internal/core/domain"
)

// PolicyVersion identifies the decision table and default thresholds below.
// Bump it whenever either changes so stored decisions can be traced back.
const PolicyVersion = "2024-01"

const (
	DefaultExactTextThreshold = 0.995
	DefaultProbableThreshold  = 0.70
)

// MatchRule names the row of the decision table that fired.
type MatchRule string

const (
	RuleChecksum          MatchRule = "checksum"
	RuleExactText         MatchRule = "exact_text"
	RuleProbableText      MatchRule = "probable_text"
	RuleProbablePeriodCtx MatchRule = "period_and_context"
	RuleNone              MatchRule = "none"
)

type Thresholds struct {
	ExactText float64
	Probable  float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		ExactText: DefaultExactTextThreshold,
		Probable:  DefaultProbableThreshold,
	}
}

func (t Thresholds) Validate() error {
	if t.Probable <= 0 || t.Probable > 1 {
		return fmt.Errorf("probable threshold must be in (0,1], got %v", t.Probable)
	}
	if t.ExactText < t.Probable || t.ExactText > 1 {
		return fmt.Errorf("exact text threshold must be in [%v,1], got %v", t.Probable, t.ExactText)
	}
	return nil
}

type Decision struct {
	Status domain.DuplicateStatus
	Action domain.SuggestedAction
	Rule   MatchRule
}

// Policy maps the winning signal set to a status and an action. Rows are evaluated in order:
//
//  1. checksum match                           -> exact, cancel
//  2. similarity >= ExactText                  -> exact, cancel (probable when only filler words matched)
//  3. similarity >= Probable or period+context -> probable; action by context then quality
//  4. otherwise                                -> not a duplicate, proceed
type Policy struct {
	thresholds Thresholds
}

func NewPolicy(thresholds Thresholds) (Policy, error) {
	if err := thresholds.Validate(); err != nil {
		return Policy{}, err
	}
	return Policy{thresholds: thresholds}, nil
}

func (p Policy) Thresholds() Thresholds {
	return p.thresholds
}

func (p Policy) Decide(s domain.SignalSet) Decision {
	if s.ChecksumMatch {
		return Decision{Status: domain.StatusExactDuplicate, Action: domain.ActionCancel, Rule: RuleChecksum}
	}
	if s.TextSimilarity >= p.thresholds.ExactText && !s.FillerOnlyText {
		return Decision{Status: domain.StatusExactDuplicate, Action: domain.ActionCancel, Rule: RuleExactText}
	}

	byText := s.TextSimilarity >= p.thresholds.Probable
	if !byText && !(s.SamePeriod && s.SameContext) {
		return NoDuplicate()
	}

	rule := RuleProbableText
	if !byText {
		rule = RuleProbablePeriodCtx
	}
	return Decision{Status: domain.StatusProbableDuplicate, Action: probableAction(s), Rule: rule}
}

// probableAction never merges across different entities; quality only decides
// between copies attached to the same context.
func probableAction(s domain.SignalSet) domain.SuggestedAction {
	if !s.SameContext {
		return domain.ActionKeepBoth
	}
	switch s.QualityComparison {
	case domain.QualityNewBetter:
		return domain.ActionReplace
	case domain.QualityExistingBetter:
		return domain.ActionCancel
	default:
		return domain.ActionAskUser
	}
}

func NoDuplicate() Decision {
	return Decision{Status: domain.StatusNotDuplicate, Action: domain.ActionProceed, Rule: RuleNone}
}
