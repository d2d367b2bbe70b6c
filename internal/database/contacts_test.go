package database

import "testing"

func TestPhoneKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "+54 9 341 555-1234", want: "15551234"},
		{in: "5493415551234", want: "15551234"},
		{in: "+54 (341) 155-51234", want: "15551234"},
		{in: "1234", want: "1234"},
		{in: "sin número", want: ""},
	}
	for _, tt := range tests {
		if got := PhoneKey(tt.in); got != tt.want {
			t.Errorf("PhoneKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if PhoneKey("+54 9 341 555-1234") != PhoneKey("5493415551234@s.whatsapp.net") {
		t.Error("stored and JID forms of one number should share a key")
	}
}

func TestSQLLimit(t *testing.T) {
	t.Parallel()

	if got := sqlLimit(0); got != nil {
		t.Errorf("sqlLimit(0) = %v, want nil", got)
	}
	if got := sqlLimit(-1); got != nil {
		t.Errorf("sqlLimit(-1) = %v, want nil", got)
	}
	if got := sqlLimit(10); got != 10 {
		t.Errorf("sqlLimit(10) = %v", got)
	}
}
