package user

import (
	"database/sql"
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

const usersTable = "users"

type UserRow struct {
	ID        string         `db:"id"`
	Username  sql.NullString `db:"username"`
	Email     sql.NullString `db:"email"`
	Role      sql.NullString `db:"role"`
	Provider  sql.NullString `db:"provider"`
	CreatedTS sql.NullTime   `db:"created_at"`
}

var userStruct = database.NewStruct(new(UserRow))

// ToRecord flattens a row into the record shape the duplicate detector reads.
func ToRecord(row *UserRow) models.Record {
	record := models.Record{
		"id":       row.ID,
		"username": row.Username.String,
		"email":    row.Email.String,
		"role":     row.Role.String,
		"provider": row.Provider.String,
	}
	if row.CreatedTS.Valid {
		record["created_at"] = row.CreatedTS.Time.UTC().Format(time.RFC3339)
	}
	return record
}
