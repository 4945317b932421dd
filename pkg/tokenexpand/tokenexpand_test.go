package tokenexpand

import (
	"errors"
	"testing"

	"swarmbender/pkg/caseinsens"
)

func TestExpandDefault(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		sources Sources
		want    string
	}{
		{
			name:  "default used when unset",
			input: "${API_HOST:-localhost}",
			want:  "localhost",
		},
		{
			name:  "default ignored when present",
			input: "${API_HOST:-localhost}",
			sources: Sources{
				ProcessEnv: map[string]string{"API_HOST": "prod.example.com"},
			},
			want: "prod.example.com",
		},
		{
			name:  "user token resolves",
			input: "${REGION}",
			sources: Sources{
				UserTokens: map[string]string{"REGION": "eu-west-1"},
			},
			want: "eu-west-1",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Expand(tc.input, tc.sources, "test")
			if err != nil {
				t.Fatalf("Expand returned error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Expand() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExpandUnresolved(t *testing.T) {
	_, err := Expand("${API_HOST}", Sources{}, "services.api.environment.URL")
	if err == nil {
		t.Fatal("expected UnresolvedTokenError")
	}
	var unresolved *UnresolvedTokenError
	if !errors.As(err, &unresolved) {
		t.Fatalf("expected *UnresolvedTokenError, got %T", err)
	}
	if unresolved.Name != "API_HOST" {
		t.Fatalf("unresolved.Name = %q, want API_HOST", unresolved.Name)
	}
}

func TestExpandEnvVars(t *testing.T) {
	env := caseinsens.New()
	env.Set("B", "2")
	env.Set("A", "1")

	got, err := Expand("${ENVVARS}", Sources{ServiceEnv: env}, "test")
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}
	if got != "B=2 A=1" {
		t.Fatalf("Expand(${ENVVARS}) = %q, want insertion order %q", got, "B=2 A=1")
	}
}
