// Package appfs exposes the files embedded in the binary: SQL migrations, email templates and
// the common password list.
package appfs

import "embed"

//go:embed migrations/*.sql assets
var FS embed.FS

const (
	MigrationsDir      = "migrations"
	EmailTemplatesDir  = "assets/templates/email"
	CommonPasswordsTxt = "assets/common-passwords.txt"
)
