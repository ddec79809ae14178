package chat

import (
	"encoding/json"
	"testing"
	"time"
)

func TestClassifyWaitBoundaries(t *testing.T) {
	tests := []struct {
		elapsed time.Duration
		want    WaitState
	}{
		{-time.Second, WaitNormal},
		{0, WaitNormal},
		{9*time.Second + 999*time.Millisecond, WaitNormal},
		{10 * time.Second, WaitSlow},
		{29 * time.Second, WaitSlow},
		{30 * time.Second, WaitVerySlow},
		{59*time.Second + 999*time.Millisecond, WaitVerySlow},
		{60 * time.Second, WaitTimeoutWarning},
		{10 * time.Minute, WaitTimeoutWarning},
	}

	for _, tt := range tests {
		if got := ClassifyWait(tt.elapsed); got != tt.want {
			t.Errorf("ClassifyWait(%v) = %v, want %v", tt.elapsed, got, tt.want)
		}
	}
}

func TestWaitStateJSON(t *testing.T) {
	data, err := json.Marshal(map[string]WaitState{"state": WaitVerySlow})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"state":"very_slow"}` {
		t.Fatalf("unexpected JSON %s", data)
	}
}

func TestWaitStateUnmarshal(t *testing.T) {
	var got struct {
		State WaitState `json:"state"`
	}
	if err := json.Unmarshal([]byte(`{"state":"timeout_warning"}`), &got); err != nil {
		t.Fatal(err)
	}
	if got.State != WaitTimeoutWarning {
		t.Fatalf("expected timeout_warning, got %v", got.State)
	}
	if err := json.Unmarshal([]byte(`{"state":"glacial"}`), &got); err == nil {
		t.Fatal("expected error for unknown state")
	}
}
