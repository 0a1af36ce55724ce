package signature

import "testing"

func TestVerifyRoundTrip(t *testing.T) {
	body := []byte(`{"event":"answered","call_ref":"abc"}`)
	sig := Compute("secret-token", 1767345000, body)

	if !Verify("secret-token", 1767345000, body, sig) {
		t.Fatalf("valid signature must verify")
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	body := []byte(`{"event":"answered","call_ref":"abc"}`)
	sig := Compute("secret-token", 1767345000, body)

	if Verify("secret-token", 1767345000, []byte(`{"event":"hangup","call_ref":"abc"}`), sig) {
		t.Fatalf("modified body must not verify")
	}
	if Verify("secret-token", 1767345001, body, sig) {
		t.Fatalf("modified timestamp must not verify")
	}
	if Verify("other-token", 1767345000, body, sig) {
		t.Fatalf("wrong token must not verify")
	}
	if Verify("secret-token", 1767345000, body, sig+"00") {
		t.Fatalf("lengthened signature must not verify")
	}
}
