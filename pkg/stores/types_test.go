package stores

import "testing"

func TestOperationKind_Validate(t *testing.T) {
	for _, kind := range []OperationKind{OperationProvision, OperationSync, OperationCleanup} {
		if err := kind.Validate(); err != nil {
			t.Errorf("%s.Validate() = %v, want nil", kind, err)
		}
	}
	if err := OperationKind("deploy").Validate(); err == nil {
		t.Error("invalid kind validated without error")
	}
}

func TestOperationStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status OperationStatus
		want   bool
	}{
		{OperationStatusRunning, false},
		{OperationStatusSucceeded, true},
		{OperationStatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("%s.IsTerminal() = %t, want %t", tt.status, got, tt.want)
		}
	}
}

func TestOperationStatus_Validate(t *testing.T) {
	if err := OperationStatusRunning.Validate(); err != nil {
		t.Errorf("running.Validate() = %v", err)
	}
	if err := OperationStatus("paused").Validate(); err == nil {
		t.Error("invalid status validated without error")
	}
}
