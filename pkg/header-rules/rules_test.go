package headerrules

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestRuleFinder(t *testing.T) {
	makeReq := func(path string) *http.Request {
		req, _ := http.NewRequest("GET", path, nil)
		return req
	}

	rules := Rules{
		Rule{Prefix: "/assets/", Override: "immutable"},
		Rule{Target: TargetEntry, Override: "no-cache"},
		Rule{Suffix: ".webmanifest", Override: "manifest"},
		Rule{Override: "default"},
	}

	if rule := rules.find(makeReq("/"), TargetFile); rule == nil || rule.Override != "default" {
		t.Fatal("Incorrect rule")
	}
	if rule := rules.find(makeReq("/assets/index-abc123.js"), TargetFile); rule == nil || rule.Override != "immutable" {
		t.Fatal("Incorrect rule")
	}
	if rule := rules.find(makeReq("/magazine/foo"), TargetEntry); rule == nil || rule.Override != "no-cache" {
		t.Fatal("Incorrect rule")
	}
	if rule := rules.find(makeReq("/manifest.webmanifest"), TargetFile); rule == nil || rule.Override != "manifest" {
		t.Fatal("Incorrect rule")
	}
	if rule := (Rules{Rule{Path: "/x"}}).find(makeReq("/y"), TargetFile); rule != nil {
		t.Fatal("Incorrect rule")
	}
}

func TestQueryRule(t *testing.T) {
	rules := Rules{Rule{Query: map[string]string{"v": ""}, Override: "versioned"}}
	req, _ := http.NewRequest("GET", "/app.js?v=3", nil)
	if rule := rules.find(req, TargetFile); rule == nil {
		t.Fatal("Expected query rule to match")
	}
	req, _ = http.NewRequest("GET", "/app.js", nil)
	if rule := rules.find(req, TargetFile); rule != nil {
		t.Fatal("Expected query rule not to match")
	}
}

func TestApply(t *testing.T) {
	header := make(http.Header)
	ruleDefault := Rule{Default: "default"}
	ruleOverride := Rule{Override: "override", Headers: map[string]string{"Service-Worker-Allowed": "/"}}

	// try to apply default
	applyRuleToHeader(ruleDefault, header)
	if cc := header.Get("Cache-Control"); cc != "default" {
		t.Fatalf("Cache-Control header wrong, is '%s'", cc)
	}

	// change cc and check default is not set
	header.Set("Cache-Control", "no-cache")
	applyRuleToHeader(ruleDefault, header)
	if cc := header.Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("Cache-Control header wrong, is '%s'", cc)
	}

	// check that override works
	applyRuleToHeader(ruleOverride, header)
	if cc := header.Get("Cache-Control"); cc != "override" {
		t.Fatalf("Cache-Control header wrong, is '%s'", cc)
	}
	if swa := header.Get("Service-Worker-Allowed"); swa != "/" {
		t.Fatalf("Service-Worker-Allowed header wrong, is '%s'", swa)
	}
}

func TestLoad(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "headers.yaml")
	config := `rules:
  - prefix: /assets/
    target: file
    override: "public, max-age=31536000, immutable"
  - target: entry
    override: no-cache
    headers:
      X-Frame-Options: DENY
`
	if err := os.WriteFile(filename, []byte(config), 0644); err != nil {
		t.Fatal(err)
	}
	rules, err := Load(filename)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 2 {
		t.Fatalf("Loaded %d rules", len(rules))
	}
	if rules[0].Target != TargetFile || rules[1].Headers["X-Frame-Options"] != "DENY" {
		t.Fatalf("Rules loaded incorrectly: %+v", rules)
	}
}
