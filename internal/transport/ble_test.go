package transport

import "testing"

func TestIsHubName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Train Base", true},
		{"LEGO Hub@2", true},
		{"city hub", true},     // case-insensitive
		{"Move Hub", true},
		{"SmartTrain X1", true}, // keyword inside a longer name
		{"", false},
		{"Garmin Watch", false},
		{"JBL Speaker", false},
		{"TRAI N", false},
	}

	for _, tt := range tests {
		if got := IsHubName(tt.name); got != tt.want {
			t.Errorf("IsHubName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
