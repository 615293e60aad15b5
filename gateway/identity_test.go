package gateway

import "testing"

func TestTranslateWalletAddress(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1234567890L", "1234567890L", true},
		{"  1234567890L  ", "1234567890L", true},
		{"123456789012345678901L", "123456789012345678901L", true},
		{"0xDEADbeefDEADbeefDEADbeefDEADbeefDEADbeef", "0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef", true},
		{"123456789L", "", false},  // too short
		{"1234567890", "", false},  // missing suffix
		{"1234567890l", "", false}, // lowercase suffix
		{"0x1234", "", false},
		{"deadbeefdeadbeefdeadbeefdeadbeefdeadbeef", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := TranslateWalletAddress(tc.in)
		if tc.ok {
			if err != nil {
				t.Fatalf("%q: unexpected error %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("%q: expected %q, got %q", tc.in, tc.want, got)
			}
			continue
		}
		if err == nil {
			t.Fatalf("%q: expected rejection, got %q", tc.in, got)
		}
	}
}
