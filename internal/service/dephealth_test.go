package service

import "testing"

func TestBackendHealthPath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"с префиксом api", "https://panel.example.com/api", "/api/categories/"},
		{"trailing slash", "https://panel.example.com/api/", "/api/categories/"},
		{"без пути", "http://backend:8000", "/categories/"},
		{"вложенный префикс", "http://backend:8000/v1/api", "/v1/api/categories/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := backendHealthPath(tt.input); got != tt.expected {
				t.Errorf("backendHealthPath(%q) = %q, ожидается %q", tt.input, got, tt.expected)
			}
		})
	}
}
