package postgresql

import "github.com/dukex/stepflow/pkg/persistence/sqlbase"

var schema = sqlbase.Schema{
	VersionTable: "schema_migrations",
	Migrations: []sqlbase.Migration{
		{
			Version: 1,
			SQL: `
				CREATE TABLE automations (
					id VARCHAR(255) PRIMARY KEY,
					name VARCHAR(255) NOT NULL DEFAULT '',
					trigger_type VARCHAR(50) NOT NULL,
					definition JSONB NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL,
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
					deleted_at TIMESTAMP WITH TIME ZONE
				);

				CREATE INDEX idx_automations_trigger_type ON automations(trigger_type);
				CREATE INDEX idx_automations_deleted_at ON automations(deleted_at);
			`,
		},
	},
}
