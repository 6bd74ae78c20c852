package dbutil

import (
	"github.com/jmoiron/sqlx"
)

// Rebind converts gendry-style "?" placeholders to the $N form expected by
// the postgres driver.
func Rebind(query string) string {
	return sqlx.Rebind(sqlx.DOLLAR, query)
}
