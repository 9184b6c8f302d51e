// Package all registers every storage backend.
package all

import (
	_ "surveyetl/internal/storage/mssql"
	_ "surveyetl/internal/storage/postgres"
	_ "surveyetl/internal/storage/sqlite"
)
