package models

import (
	"fmt"
	"time"
)

// PolicyType declares the traffic directions a network policy governs.
type PolicyType string

const (
	PolicyIngress PolicyType = "ingress"
	PolicyEgress  PolicyType = "egress"
	PolicyBoth    PolicyType = "both"
)

// Valid reports whether the policy type is one of the supported values.
func (t PolicyType) Valid() bool {
	switch t {
	case PolicyIngress, PolicyEgress, PolicyBoth:
		return true
	}
	return false
}

// RuleDirection is the direction of a single policy rule.
type RuleDirection string

const (
	DirectionIngress RuleDirection = "ingress"
	DirectionEgress  RuleDirection = "egress"
)

// RuleAction is the verdict a policy rule applies to matching traffic.
type RuleAction string

const (
	ActionAllow RuleAction = "allow"
	ActionDeny  RuleAction = "deny"
)

// Valid reports whether the action is one of the supported verdicts.
func (a RuleAction) Valid() bool {
	return a == ActionAllow || a == ActionDeny
}

// PolicyRule is one ordered rule of a network policy.
type PolicyRule struct {
	Direction RuleDirection `json:"direction"`
	Action    RuleAction    `json:"action"`
	Ports     []int         `json:"ports,omitempty" validate:"dive,min=1,max=65535"`
	Protocols []string      `json:"protocols,omitempty"`
}

// NetworkPolicy restricts traffic to or from pods selected by label equality.
type NetworkPolicy struct {
	ID        string     `json:"id"`
	MeshID    string     `json:"meshId"`
	Name      string     `json:"name" validate:"required"`
	Namespace string     `json:"namespace"`
	Type      PolicyType `json:"type" validate:"required"`

	PodSelector map[string]string `json:"podSelector,omitempty"`
	Rules       []PolicyRule      `json:"rules"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CheckRuleDirections verifies that every rule direction is consistent with
// the declared policy type. A "both" policy accepts either direction. The
// registry enforces this at create time rather than assuming it.
func (p *NetworkPolicy) CheckRuleDirections() error {
	if p.Type == PolicyBoth {
		return nil
	}
	for i, rule := range p.Rules {
		if p.Type == PolicyIngress && rule.Direction == DirectionEgress {
			return fmt.Errorf("rules[%d].direction: egress rule not allowed in ingress policy", i)
		}
		if p.Type == PolicyEgress && rule.Direction == DirectionIngress {
			return fmt.Errorf("rules[%d].direction: ingress rule not allowed in egress policy", i)
		}
	}
	return nil
}
