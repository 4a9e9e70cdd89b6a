package logger

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResponseLogger(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantBytes  int
	}{
		{
			name: "implicit ok",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, "hello")
			},
			wantStatus: http.StatusOK,
			wantBytes:  5,
		},
		{
			name: "explicit status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			},
			wantStatus: http.StatusTeapot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			lw := New(rr)
			tt.handler(lw, httptest.NewRequest(http.MethodGet, "/", nil))

			if lw.Status() != tt.wantStatus {
				t.Errorf("want status %d, got %d", tt.wantStatus, lw.Status())
			}
			if rr.Code != tt.wantStatus {
				t.Errorf("want recorded status %d, got %d", tt.wantStatus, rr.Code)
			}
			if lw.Bytes() != tt.wantBytes {
				t.Errorf("want %d bytes, got %d", tt.wantBytes, lw.Bytes())
			}
		})
	}
}
