package http

import "testing"

func TestRelaySubject(t *testing.T) {
	tests := []struct {
		name    string
		msg     wsMessage
		want    string
		wantErr bool
	}{
		{"all steps", wsMessage{Action: "subscribe"}, "descent.step.>", false},
		{"one trajectory", wsMessage{Trajectory: "abc", Channel: "steps"}, "descent.step.abc", false},
		{"completed", wsMessage{Channel: "completed"}, "descent.completed.>", false},
		{"completed for one", wsMessage{Trajectory: "abc", Channel: "completed"}, "descent.completed.abc", false},
		{"unknown channel", wsMessage{Channel: "tiles"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := relaySubject(tt.msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("subject = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestETagMatches(t *testing.T) {
	const etag = `W/"0123456789abcdef"`
	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{etag, true},
		{`"0123456789abcdef"`, true},
		{`"other", ` + etag, true},
		{"*", true},
		{`W/"ffff"`, false},
	}
	for _, tt := range tests {
		if got := etagMatches(tt.header, etag); got != tt.want {
			t.Errorf("etagMatches(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
