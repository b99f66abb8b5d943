package database

import (
	"context"
	"testing"
)

func TestDatabaseName(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"mongodb://localhost:27017/preventanyl", "preventanyl"},
		{"mongodb://localhost:27017/kits_dev?retryWrites=true", "kits_dev"},
		{"mongodb+srv://user:pw@cluster0.example.net/prod?w=majority", "prod"},
		{"mongodb://localhost:27017/", "preventanyl"},
		{"mongodb://localhost:27017", "preventanyl"},
		{"mongodb://localhost:27017/admin", "preventanyl"},
	}

	for _, tt := range tests {
		if got := DatabaseName(tt.uri); got != tt.want {
			t.Errorf("DatabaseName(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestDemoKitsAreValid(t *testing.T) {
	for _, kit := range DemoKits() {
		if kit.Title == "" {
			t.Error("demo kit without title")
		}
		if kit.Latitude < 49 || kit.Latitude > 49.5 || kit.Longitude > -122.9 || kit.Longitude < -123.3 {
			t.Errorf("%s is outside Vancouver: %v,%v", kit.Title, kit.Latitude, kit.Longitude)
		}
	}
}

func TestPingWithoutConnection(t *testing.T) {
	if err := Ping(context.Background()); err == nil {
		t.Error("Ping should fail before Connect")
	}
}
