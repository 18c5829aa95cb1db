package cluster

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		want *Command
	}{
		{
			"get pods",
			"oc get pods -n openshift-monitoring",
			&Command{Tool: "oc", Verb: "get", Resource: "pods", Namespace: "openshift-monitoring"},
		},
		{
			"kubectl delete with resource/name",
			"kubectl delete Deployment/web",
			&Command{Tool: "kubectl", Verb: "delete", Resource: "deployment"},
		},
		{
			"apply with filename",
			"oc apply -f deploy.yaml --namespace=prod",
			&Command{Tool: "oc", Verb: "apply", Namespace: "prod", Filename: "deploy.yaml"},
		},
		{
			"filename equals form",
			"kubectl apply --filename=app.yaml",
			&Command{Tool: "kubectl", Verb: "apply", Filename: "app.yaml"},
		},
		{
			"env prefix before tool",
			"KUBECONFIG=kc oc get nodes",
			&Command{Tool: "oc", Verb: "get", Resource: "nodes"},
		},
		{
			"flags collected",
			"oc delete pod web-1 --grace-period=0",
			&Command{Tool: "oc", Verb: "delete", Resource: "pod", Flags: []string{"--grace-period=0"}},
		},
		{"not oc", "ls -la", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCommand(tt.cmd)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.cmd, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		want Risk
	}{
		{"get is safe", "oc get pods", RiskSafe},
		{"describe is safe", "kubectl describe node worker-1", RiskSafe},
		{"logs are safe", "oc logs deploy/web", RiskSafe},
		{"exec is high", "oc exec -it web-1 -- sh", RiskHigh},
		{"rsh is high", "oc rsh web-1", RiskHigh},
		{"port-forward is high", "kubectl port-forward svc/web 8080:80", RiskHigh},
		{"dry run is safe", "kubectl apply -f x.yaml --dry-run=client", RiskSafe},
		{"delete namespace is critical", "oc delete namespace staging", RiskCritical},
		{"delete pod is high", "kubectl delete pod web-1", RiskHigh},
		{"delete with no resource is high", "oc delete -f app.yaml", RiskHigh},
		{"apply crd is critical", "oc apply crd mine", RiskCritical},
		{"scale deployment is high", "kubectl scale deployment web --replicas=3", RiskHigh},
		{"label pod is medium", "oc label pod web-1 tier=api", RiskMedium},
		{"create imagestream is low", "oc create imagestream app", RiskLow},
		{"apply unknown resource is medium", "oc apply widget x", RiskMedium},
		{"version is safe", "oc version", RiskSafe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Classify(ParseCommand(tt.cmd))
			if got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.cmd, got, tt.want)
			}
		})
	}
}

func TestRiskOrdering(t *testing.T) {
	if RiskSafe.Max(RiskHigh) != RiskHigh {
		t.Error("Max(safe, high) should be high")
	}
	if RiskCritical.Max(RiskLow) != RiskCritical {
		t.Error("Max(critical, low) should be critical")
	}
	if !(RiskSafe.Order() < RiskLow.Order() && RiskLow.Order() < RiskMedium.Order() &&
		RiskMedium.Order() < RiskHigh.Order() && RiskHigh.Order() < RiskCritical.Order()) {
		t.Error("risk tiers out of order")
	}
}

func TestPipeSource(t *testing.T) {
	tests := []struct {
		cmd  string
		want string
	}{
		{"cat deploy.yaml | oc apply -f -", "deploy.yaml"},
		{"oc apply -f - < manifest.yaml", "manifest.yaml"},
		{"oc get pods", ""},
	}
	for _, tt := range tests {
		if got := PipeSource(tt.cmd); got != tt.want {
			t.Errorf("PipeSource(%q) = %q, want %q", tt.cmd, got, tt.want)
		}
	}
}

func writeManifest(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInspectManifestYAML(t *testing.T) {
	path := writeManifest(t, "deploy.yaml", `apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
  namespace: prod
spec:
  template:
    spec:
      hostNetwork: true
      containers:
        - name: app
          securityContext:
            privileged: true
---
kind: ConfigMap
metadata:
  name: web-config
`)

	infos := InspectManifest(path)
	if len(infos) != 2 {
		t.Fatalf("expected 2 documents, got %d: %+v", len(infos), infos)
	}

	if infos[0].Kind != "Deployment" || infos[0].Name != "web" || infos[0].Namespace != "prod" {
		t.Errorf("unexpected first doc: %+v", infos[0])
	}
	wantFields := []string{"hostNetwork", "privileged", "securityContext"}
	if !reflect.DeepEqual(infos[0].SecurityFields, wantFields) {
		t.Errorf("SecurityFields = %v, want %v", infos[0].SecurityFields, wantFields)
	}

	if infos[1].Kind != "ConfigMap" || len(infos[1].SecurityFields) != 0 {
		t.Errorf("unexpected second doc: %+v", infos[1])
	}

	risk, reason := ManifestRisk(infos)
	if risk != RiskHigh {
		t.Errorf("ManifestRisk = %q (%s), want high", risk, reason)
	}
}

func TestInspectManifestAnchors(t *testing.T) {
	path := writeManifest(t, "anchored.yaml", `kind: Pod
metadata:
  name: web
spec: &base
  restartPolicy: Always
status: *base
`)

	infos := InspectManifest(path)
	if len(infos) != 1 {
		t.Fatalf("expected 1 document, got %d", len(infos))
	}
	found := false
	for _, f := range infos[0].SecurityFields {
		if f == AnchorAliasField {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s flag, got %v", AnchorAliasField, infos[0].SecurityFields)
	}
}

func TestInspectManifestJSON(t *testing.T) {
	path := writeManifest(t, "list.json", `{
		"kind": "List",
		"items": [
			{"kind": "Secret", "metadata": {"name": "creds"}},
			{"kind": "Namespace", "metadata": {"name": "staging"}}
		]
	}`)

	infos := InspectManifest(path)
	if len(infos) != 2 {
		t.Fatalf("expected 2 items, got %d", len(infos))
	}
	if infos[0].Kind != "Secret" || infos[1].Kind != "Namespace" {
		t.Errorf("unexpected kinds: %+v", infos)
	}

	risk, _ := ManifestRisk(infos)
	if risk != RiskCritical {
		t.Errorf("ManifestRisk = %q, want critical", risk)
	}
}

func TestInspectManifestLimits(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if infos := InspectManifest(filepath.Join(t.TempDir(), "nope.yaml")); infos != nil {
			t.Errorf("expected nil, got %+v", infos)
		}
	})

	t.Run("binary file", func(t *testing.T) {
		path := writeManifest(t, "blob.yaml", "kind: \x00\x01binary")
		infos := InspectManifest(path)
		if len(infos) != 1 || infos[0].Err != "binary file" {
			t.Errorf("expected binary-file error, got %+v", infos)
		}
	})

	t.Run("outside allowed roots", func(t *testing.T) {
		infos := InspectManifest("/etc/passwd")
		if len(infos) != 1 || infos[0].Err != "path outside allowed directories" {
			t.Errorf("expected path error, got %+v", infos)
		}
	})
}
