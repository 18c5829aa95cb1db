package cluster

import (
	"fmt"
	"strings"
)

// Risk is an operation's risk tier. Ordering: Safe < Low < Medium < High <
// Critical.
type Risk string

const (
	RiskSafe     Risk = "safe"
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

var riskOrder = map[Risk]int{
	RiskSafe:     0,
	RiskLow:      1,
	RiskMedium:   2,
	RiskHigh:     3,
	RiskCritical: 4,
}

// Order returns the numeric ordering of a risk tier, higher is riskier.
func (r Risk) Order() int { return riskOrder[r] }

// Max returns the riskier of r and other.
func (r Risk) Max(other Risk) Risk {
	if other.Order() > r.Order() {
		return other
	}
	return r
}

// tiers lists resource kinds per risk tier, checked from critical downward.
var tiers = []struct {
	level     Risk
	resources map[string]bool
}{
	{RiskCritical, map[string]bool{
		"namespace": true, "project": true,
		"clusterrole": true, "clusterrolebinding": true,
		"node": true, "persistentvolume": true,
		"customresourcedefinition": true, "crd": true,
		"apiservice":                     true,
		"mutatingwebhookconfiguration":   true,
		"validatingwebhookconfiguration": true,
	}},
	{RiskHigh, map[string]bool{
		"deployment": true, "statefulset": true, "daemonset": true,
		"replicaset": true, "service": true, "ingress": true, "route": true,
		"configmap": true, "secret": true, "serviceaccount": true,
		"role": true, "rolebinding": true, "networkpolicy": true,
		"persistentvolumeclaim": true, "pvc": true,
		"job": true, "cronjob": true,
	}},
	{RiskMedium, map[string]bool{
		"pod": true, "replicationcontroller": true, "endpoints": true,
		"event": true, "horizontalpodautoscaler": true, "hpa": true,
		"poddisruptionbudget": true, "pdb": true,
		"limitrange": true, "resourcequota": true,
	}},
	{RiskLow, map[string]bool{
		"build": true, "buildconfig": true, "imagestream": true,
		"imagestreamtag": true, "template": true, "catalog": true,
		"packagemanifest": true,
	}},
}

// resourceRisk returns the tier of a resource kind, or RiskSafe if unlisted.
func resourceRisk(resource string) Risk {
	for _, t := range tiers {
		if t.resources[resource] {
			return t.level
		}
	}
	return RiskSafe
}

var mutatingVerbs = map[string]bool{
	"create": true, "apply": true, "delete": true, "patch": true,
	"replace": true, "set": true, "edit": true, "scale": true,
	"rollout": true, "expose": true, "label": true, "annotate": true,
	"taint": true, "adm": true, "policy": true,
}

// execVerbs give direct container or node access and are always high risk.
var execVerbs = map[string]bool{
	"exec": true, "rsh": true, "debug": true,
	"attach": true, "port-forward": true, "cp": true,
}

var readOnlyVerbs = map[string]bool{
	"get": true, "describe": true, "logs": true, "status": true,
	"explain": true, "api-resources": true, "api-versions": true,
}

// Classify returns the risk tier of a parsed command and a short reason.
func Classify(c *Command) (Risk, string) {
	if c == nil || c.Verb == "" {
		return RiskSafe, ""
	}

	if execVerbs[c.Verb] {
		return RiskHigh, fmt.Sprintf("%s provides direct container access", c.Verb)
	}
	if readOnlyVerbs[c.Verb] {
		return RiskSafe, ""
	}
	for _, f := range c.Flags {
		if strings.HasPrefix(f, "--dry-run") {
			return RiskSafe, "dry-run mode"
		}
	}

	if c.Verb == "delete" {
		if c.Resource != "" && resourceRisk(c.Resource) == RiskCritical {
			return RiskCritical, "deleting critical resource type: " + c.Resource
		}
		if c.Resource != "" {
			return RiskHigh, "deleting resource: " + c.Resource
		}
		return RiskHigh, "deleting resource"
	}

	if mutatingVerbs[c.Verb] {
		if c.Resource != "" {
			if level := resourceRisk(c.Resource); level != RiskSafe {
				return level, fmt.Sprintf("%s on %s-risk resource: %s", c.Verb, level, c.Resource)
			}
		}
		return RiskMedium, "mutating verb: " + c.Verb
	}

	return RiskSafe, ""
}
