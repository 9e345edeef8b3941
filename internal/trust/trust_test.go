package trust

import (
	"reflect"
	"testing"
)

func TestFilterURLs_SubdomainAndExactMatch(t *testing.T) {
	f := New(nil)
	in := []string{
		"https://www.who.int/news/flu",
		"https://cdc.gov/flu/symptoms",
		"https://example.com/flu",
		"https://pubmed.ncbi.nlm.nih.gov/12345/",
		"https://notwho.int.evil.com/",
	}
	got := f.FilterURLs(in)
	want := []string{
		"https://www.who.int/news/flu",
		"https://cdc.gov/flu/symptoms",
		"https://pubmed.ncbi.nlm.nih.gov/12345/",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FilterURLs = %v, want %v", got, want)
	}
}

func TestFilterURLs_Idempotent(t *testing.T) {
	f := New([]string{"who.int", "cdc.gov"})
	in := []string{
		"https://who.int/a",
		"https://emergency.cdc.gov/b",
		"https://example.org/c",
		"::not a url::",
	}
	once := f.FilterURLs(in)
	twice := f.FilterURLs(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("filter not idempotent: %v != %v", once, twice)
	}
	for _, u := range once {
		if !f.Allowed(u) {
			t.Fatalf("filtered output contains untrusted URL %q", u)
		}
	}
}

func TestAllowed_MalformedAndSchemeless(t *testing.T) {
	f := New(nil)
	cases := []struct {
		url  string
		want bool
	}{
		{"https://who.int/", true},
		{"https://data.who.int/dashboards", true},
		{"who.int/path", false}, // no host without a scheme
		{"", false},
		{"http://%zz", false},
		{"https://whoint.example.com/", false},
		{"https://WHO.INT/caps", true},
	}
	for _, c := range cases {
		if got := f.Allowed(c.url); got != c.want {
			t.Errorf("Allowed(%q) = %v, want %v", c.url, got, c.want)
		}
	}
}

func TestNew_NormalizesDomains(t *testing.T) {
	f := New([]string{" .WHO.int ", "", "cdc.gov"})
	want := []string{"who.int", "cdc.gov"}
	if !reflect.DeepEqual(f.Domains(), want) {
		t.Fatalf("Domains() = %v, want %v", f.Domains(), want)
	}
}
