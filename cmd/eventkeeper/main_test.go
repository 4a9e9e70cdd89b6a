package main

import (
	"encoding/json"
	"testing"

	"qanda/pkg/events"
)

func Test_documentID(t *testing.T) {
	e := events.New(events.TypeSubmitted, "c1")
	event, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}

	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{name: "discussion event", value: string(event), want: e.ID},
		{name: "access log", value: `{"service":"qanda-shell","request_id":"abc"}`, want: "qanda-shellabc"},
		{name: "unknown message", value: `{"foo":"bar"}`, wantErr: true},
		{name: "invalid JSON", value: `{`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := documentID([]byte(tt.value))
			if (err != nil) != tt.wantErr {
				t.Fatalf("want error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("want document id %q, got %q", tt.want, got)
			}
		})
	}
}
