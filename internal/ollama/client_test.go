package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type mockListResponse struct {
	Models []mockModel `json:"models"`
}

type mockModel struct {
	Name string `json:"name"`
}

func newMockServer(t *testing.T, models ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.WriteHeader(http.StatusOK)
		case "/api/tags":
			response := mockListResponse{}
			for _, m := range models {
				response.Models = append(response.Models, mockModel{Name: m})
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(response)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		model     string
		wantModel string
		wantErr   bool
	}{
		{
			name:      "with custom url and model",
			url:       "http://localhost:11434",
			model:     "custom-model",
			wantModel: "custom-model",
		},
		{
			name:      "with default url",
			url:       "",
			model:     "test-model",
			wantModel: "test-model",
		},
		{
			name:      "with all defaults",
			wantModel: DefaultModel,
		},
		{
			name:    "url without scheme",
			url:     "localhost",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.url, tt.model)

			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if client.GetModel() != tt.wantModel {
				t.Errorf("expected model %s, got %s", tt.wantModel, client.GetModel())
			}
		})
	}
}

func TestIsAvailable(t *testing.T) {
	server := newMockServer(t)

	tests := []struct {
		name     string
		url      string
		expected bool
	}{
		{
			name:     "available server",
			url:      server.URL,
			expected: true,
		},
		{
			name:     "unavailable server",
			url:      "http://localhost:99999",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsAvailable(tt.url)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	server := newMockServer(t, "llama3.2:latest", "another-model")

	tests := []struct {
		name    string
		model   string
		wantErr bool
	}{
		{"model with implicit tag", "llama3.2", false},
		{"exact name", "another-model", false},
		{"missing model", "nonexistent-model-xyz", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(server.URL, tt.model)
			if err != nil {
				t.Fatalf("failed to create client: %v", err)
			}

			err = client.Check(context.Background())
			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCheckUnreachable(t *testing.T) {
	server := newMockServer(t)
	url := server.URL
	server.Close()

	client, err := NewClient(url, "")
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if err := client.Check(context.Background()); err == nil {
		t.Error("expected error for stopped server")
	}
	if client.Name() != "ollama" {
		t.Errorf("expected probe name 'ollama', got '%s'", client.Name())
	}
}
