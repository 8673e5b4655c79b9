package domain

import "testing"

func TestRRTypeString(t *testing.T) {
	cases := []struct {
		t    RRType
		want string
	}{
		{RRTypeA, "A"}, {RRTypeNS, "NS"}, {RRTypeCNAME, "CNAME"}, {RRTypeSOA, "SOA"},
		{RRTypeMX, "MX"}, {RRTypeTXT, "TXT"}, {RRTypeAAAA, "AAAA"}, {RRTypeOPT, "OPT"},
		{RRTypeDNAME, "DNAME"}, {RRTypeAXFR, "AXFR"}, {RRTypeIXFR, "IXFR"}, {RRTypeANY, "ANY"},
		{RRType(9999), "TYPE9999"},
	}
	for _, tc := range cases {
		if got := tc.t.String(); got != tc.want {
			t.Errorf("String(%d) = %q, want %q", tc.t, got, tc.want)
		}
	}
}

func TestRRTypeFromString(t *testing.T) {
	if RRTypeFromString("A") != RRTypeA {
		t.Errorf("expected A")
	}
	if RRTypeFromString("bogus") != 0 {
		t.Errorf("expected 0 for unrecognized mnemonic")
	}
}

func TestRRTypeIsTransfer(t *testing.T) {
	if !RRTypeAXFR.IsTransfer() || !RRTypeIXFR.IsTransfer() {
		t.Errorf("AXFR/IXFR must report IsTransfer")
	}
	if RRTypeA.IsTransfer() {
		t.Errorf("A must not report IsTransfer")
	}
}
