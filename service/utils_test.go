package service

import (
	"testing"
)

func TestFormatBrackets(t *testing.T) {
	out := FormatBrackets("{base}/collections/{collection}/download", map[string]string{
		"base":       "https://example.org",
		"collection": "S2ST",
	})
	if out != "https://example.org/collections/S2ST/download" {
		t.Errorf("unexpected result: %s", out)
	}
	if FormatBrackets("{unknown}") != "{unknown}" {
		t.Error("unknown keys must be left untouched")
	}
}

func TestSlugify(t *testing.T) {
	if s := Slugify("urn:x-prod:1"); s != "urn-x-prod-1" {
		t.Errorf("unexpected slug: %s", s)
	}
	if s := Slugify("  A  B  "); s != "A-B" {
		t.Errorf("unexpected slug: %s", s)
	}
}

func TestTruncate(t *testing.T) {
	if s := Truncate("abcdef", 3); s != "abc..." {
		t.Errorf("unexpected truncation: %s", s)
	}
	if s := Truncate("abc", 10); s != "abc" {
		t.Errorf("unexpected truncation: %s", s)
	}
}

func TestStringSet(t *testing.T) {
	ss := StringSet{}
	ss.Push("a")
	ss.Push("a")
	ss.Push("b")
	if len(ss.Slice()) != 2 || !ss.Exists("a") {
		t.Fail()
	}
	ss.Pop("a")
	if ss.Exists("a") {
		t.Fail()
	}
}
