// Package migrations embeds the SQL migration files so the binary and the
// test harness run the same schema without a filesystem dependency.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
