package validate

import "testing"

func TestPhone(t *testing.T) {
	valid := []string{"+15550100002", "+442071838750", "+919876543210"}
	for _, number := range valid {
		if !Phone(number) {
			t.Errorf("expected %q to be dialable", number)
		}
	}

	invalid := []string{"", "5550100002", "+1 555 010 0002", "not-a-number", "+0"}
	for _, number := range invalid {
		if Phone(number) {
			t.Errorf("expected %q to be rejected", number)
		}
	}
}

func TestStruct(t *testing.T) {
	type payload struct {
		Name  string `validate:"required"`
		Phone string `validate:"required,e164"`
	}

	if err := Struct(payload{Name: "Dana", Phone: "+15550100002"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Struct(payload{Name: "", Phone: "+15550100002"}); err == nil {
		t.Fatalf("expected a required error")
	}
	if err := Struct(payload{Name: "Dana", Phone: "bogus"}); err == nil {
		t.Fatalf("expected an e164 error")
	}
}
