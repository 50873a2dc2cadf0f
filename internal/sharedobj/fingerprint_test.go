package sharedobj

import "testing"

func TestFingerprintParse(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"da39a3ee5e6b4b0d3255bfef95601890afd80709", false}, // sha1("")
		{"", true},
		{"abc", true},    // odd length
		{"zz39a3ee5e6b4b0d3255bfef95601890afd80709", true}, // not hex
	}

	for _, c := range cases {
		fp, err := FingerprintParse(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("FingerprintParse(%q): expected error, got none", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("FingerprintParse(%q): unexpected error: %v", c.in, err)
			continue
		}
		if got := fp.String(); got != c.in {
			t.Errorf("FingerprintParse(%q).String() = %q", c.in, got)
		}
		if fp.IsNull() {
			t.Errorf("FingerprintParse(%q): IsNull() = true for a parsed fingerprint", c.in)
		}
	}
}

func TestFingerprintNull(t *testing.T) {
	var fp Fingerprint
	if !fp.IsNull() {
		t.Error("zero Fingerprint: IsNull() = false")
	}
}

func TestFingerprintEquality(t *testing.T) {
	a, err := FingerprintParse("da39a3ee5e6b4b0d3255bfef95601890afd80709")
	if err != nil {
		t.Fatal(err)
	}
	b, err := FingerprintParse("da39a3ee5e6b4b0d3255bfef95601890afd80709")
	if err != nil {
		t.Fatal(err)
	}
	c, err := FingerprintParse("0000000000000000000000000000000000000000")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("two Fingerprints parsed from the same hex string compared unequal")
	}
	if a == c {
		t.Error("two Fingerprints parsed from different hex strings compared equal")
	}
}
