package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"postgres://u:p@localhost:5432/db?sslmode=disable", "pgx5://u:p@localhost:5432/db?sslmode=disable"},
		{"postgresql://u:p@db/clerk", "pgx5://u:p@db/clerk"},
		{"pgx5://u:p@db/clerk", "pgx5://u:p@db/clerk"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, MigrateURL(tt.in))
		})
	}
}

func TestNewBackOff(t *testing.T) {
	b := newBackOff(context.Background(), 7)

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		16 * time.Second,
	}
	for i, want := range expected {
		assert.Equal(t, want, b.NextBackOff(), "retry %d", i+1)
	}
	assert.Equal(t, time.Duration(-1), b.NextBackOff(), "retries must stop after attempts-1")
}

func TestNewBackOff_SingleAttempt(t *testing.T) {
	b := newBackOff(context.Background(), 1)
	assert.Equal(t, time.Duration(-1), b.NextBackOff())
}
