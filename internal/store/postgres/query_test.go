package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

func TestBuildListQuery(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		opts  domain.ListOpts
		query string
		args  int
	}{
		{
			name:  "no filters",
			opts:  domain.ListOpts{},
			query: "SELECT x FROM positions ORDER BY opened_at DESC",
		},
		{
			name:  "status and pagination",
			opts:  domain.ListOpts{Status: domain.PositionStatusClosed, Limit: 10, Offset: 20},
			query: "SELECT x FROM positions WHERE status = $1 ORDER BY opened_at DESC LIMIT $2 OFFSET $3",
			args:  3,
		},
		{
			name:  "time range",
			opts:  domain.ListOpts{Since: &since, Until: &since},
			query: "SELECT x FROM positions WHERE opened_at >= $1 AND opened_at < $2 ORDER BY opened_at DESC",
			args:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args := buildListQuery("SELECT x FROM positions", "opened_at", tt.opts)
			assert.Equal(t, tt.query, q)
			assert.Len(t, args, tt.args)
		})
	}
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/pump?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "pump"}))
	assert.Equal(t, "postgres://custom", DSN(ClientConfig{DSN: " postgres://custom ", Host: "ignored"}))
}
