package config

import (
	"strings"
	"testing"
)

const sampleSSHConfig = `Host review.opendev.org
    User alice-gerrit
    IdentityFile ~/.ssh/gerrit_key

Host *.internal
    User corp
`

func TestMergeSSHConfig_FillsUnsetValues(t *testing.T) {
	r := Resolved{Host: "review.opendev.org"}
	if err := mergeSSHConfig(strings.NewReader(sampleSSHConfig), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.Username != "alice-gerrit" {
		t.Errorf("username: got %q", r.Username)
	}
	if r.Key != "~/.ssh/gerrit_key" {
		t.Errorf("key: got %q", r.Key)
	}
}

func TestMergeSSHConfig_DoesNotOverride(t *testing.T) {
	r := Resolved{Host: "review.opendev.org", Username: "explicit", Key: "/tmp/key"}
	if err := mergeSSHConfig(strings.NewReader(sampleSSHConfig), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.Username != "explicit" {
		t.Errorf("username overridden: got %q", r.Username)
	}
	if r.Key != "/tmp/key" {
		t.Errorf("key overridden: got %q", r.Key)
	}
}

func TestMergeSSHConfig_PatternMatch(t *testing.T) {
	r := Resolved{Host: "gerrit.internal"}
	if err := mergeSSHConfig(strings.NewReader(sampleSSHConfig), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Username != "corp" {
		t.Errorf("username: got %q", r.Username)
	}
}

func TestMergeSSHConfig_NoMatch(t *testing.T) {
	r := Resolved{Host: "elsewhere.example.org"}
	if err := mergeSSHConfig(strings.NewReader(sampleSSHConfig), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Username != "" || r.Key != "" {
		t.Errorf("unexpected merge: %+v", r)
	}
}
