package control

import (
	"errors"
	"testing"

	"rmsched/internal/sched"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		line string
		want Request
	}{
		{"R,1,50,10", Request{Action: ActionRegister, ID: 1, Period: 50, Budget: 10}},
		{"R, 42 , 100 , 30\n", Request{Action: ActionRegister, ID: 42, Period: 100, Budget: 30}},
		{"Y,7", Request{Action: ActionYield, ID: 7}},
		{"D,7\x00\x00", Request{Action: ActionDeregister, ID: 7}},
	}
	for _, tt := range tests {
		got, err := ParseRequest(tt.line)
		if err != nil {
			t.Errorf("ParseRequest(%q) err=%v", tt.line, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRequest(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestParseRequest_Malformed(t *testing.T) {
	for _, line := range []string{
		"",
		"X,1",
		"RR,1,2,3",
		"R,1,2",
		"R,1,2,3,4",
		"Y",
		"Y,1,2",
		"D,abc",
		"R,1,-5,1",
		"R,1,0,1",
		"R,1,10,0",
	} {
		if _, err := ParseRequest(line); !errors.Is(err, ErrMalformedRequest) {
			t.Errorf("ParseRequest(%q) err=%v, want ErrMalformedRequest", line, err)
		}
	}
}

func TestRequest_StringRoundTrip(t *testing.T) {
	for _, r := range []Request{
		{Action: ActionRegister, ID: 3, Period: 100, Budget: 20},
		{Action: ActionYield, ID: 3},
		{Action: ActionDeregister, ID: 3},
	} {
		got, err := ParseRequest(r.String())
		if err != nil || got != r {
			t.Errorf("ParseRequest(%q) = %+v, %v; want %+v", r.String(), got, err, r)
		}
	}
}

func TestParseStatus(t *testing.T) {
	got, err := ParseStatus("1,50,10,0\n2,100,20,2\n")
	if err != nil {
		t.Fatalf("ParseStatus err=%v", err)
	}
	want := []StatusLine{
		{ID: 1, Period: 50, Budget: 10, State: sched.StateSleeping},
		{ID: 2, Period: 100, Budget: 20, State: sched.StateRunning},
	}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("ParseStatus = %+v, want %+v", got, want)
	}

	if lines, err := ParseStatus(""); err != nil || len(lines) != 0 {
		t.Fatalf("ParseStatus(\"\") = %v, %v", lines, err)
	}
	if _, err := ParseStatus("1,2,3\n"); err == nil {
		t.Fatal("ParseStatus accepted a 3-field line")
	}
}
