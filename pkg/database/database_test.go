package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type row struct {
	ID    string `db:"id"`
	Email string `db:"email"`
}

func TestConfigDSN(t *testing.T) {
	t.Run("should default port and ssl mode", func(t *testing.T) {
		cfg := Config{Host: "db", User: "u", Password: "p", Name: "fern"}
		assert.Equal(t, "host=db port=5432 user=u password=p dbname=fern sslmode=disable", cfg.DSN())
	})

	t.Run("should keep explicit values", func(t *testing.T) {
		cfg := Config{Host: "db", Port: "6543", User: "u", Password: "p", Name: "fern", SSLMode: "require"}
		assert.Equal(t, "host=db port=6543 user=u password=p dbname=fern sslmode=require", cfg.DSN())
	})
}

func TestSelectBuilder(t *testing.T) {
	t.Run("should build postgres placeholders with paging", func(t *testing.T) {
		sb := NewSelectBuilder()
		sb.Select("id").From("users").Where(sb.Equal("role", "worker"))
		sb.Page(10, 20)

		query, args := sb.Build()
		assert.Contains(t, query, "SELECT id FROM users WHERE role = $1 LIMIT")
		assert.Contains(t, query, "OFFSET")
		assert.Equal(t, "worker", args[0])
	})

	t.Run("should leave the query unbounded without a limit", func(t *testing.T) {
		sb := NewSelectBuilder()
		sb.Select("id").From("users")
		sb.Page(0, 0)

		query, args := sb.Build()
		assert.Equal(t, "SELECT id FROM users", query)
		assert.Empty(t, args)
	})

	t.Run("should select struct columns", func(t *testing.T) {
		sb := NewStruct(new(row)).SelectFrom("users")

		query, _ := sb.Build()
		assert.Contains(t, query, "users.id")
		assert.Contains(t, query, "users.email")
		assert.Contains(t, query, "FROM users")
	})
}
