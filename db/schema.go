package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// the foreign key has no ON DELETE CASCADE, tickets are removed explicitly in the event delete transaction
const schema = `
CREATE TABLE IF NOT EXISTS events (
	id UUID PRIMARY KEY,
	title VARCHAR(255) NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	event_date VARCHAR(10) NOT NULL,
	event_time VARCHAR(32) NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	organizer TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	price NUMERIC(10, 2) NOT NULL DEFAULT 0 CHECK (price >= 0),
	admission_free BOOLEAN NOT NULL DEFAULT FALSE,
	category VARCHAR(32) NOT NULL DEFAULT 'other',
	creator_id VARCHAR(255) NOT NULL,
	attendees TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS events_event_date_idx ON events (event_date);

CREATE TABLE IF NOT EXISTS tickets (
	id UUID PRIMARY KEY,
	event_id UUID NOT NULL REFERENCES events (id),
	user_id VARCHAR(255) NOT NULL,
	ticket_number VARCHAR(16) NOT NULL,
	quantity INT NOT NULL DEFAULT 1 CHECK (quantity >= 1),
	source VARCHAR(8) NOT NULL,
	checkout_session_id VARCHAR(255),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (event_id, user_id)
);

CREATE INDEX IF NOT EXISTS tickets_user_id_idx ON tickets (user_id);

CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	external_id VARCHAR(255) NOT NULL UNIQUE,
	email VARCHAR(255) NOT NULL DEFAULT '',
	username VARCHAR(255) NOT NULL DEFAULT '',
	first_name VARCHAR(255) NOT NULL DEFAULT '',
	last_name VARCHAR(255) NOT NULL DEFAULT '',
	photo_url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS data_lake_events (
	event_id UUID PRIMARY KEY,
	published_at TIMESTAMPTZ NOT NULL,
	event_name VARCHAR(255) NOT NULL,
	event_payload JSONB NOT NULL
);
`

// InitializeDatabaseSchema is idempotent and safe to run on every start.
func InitializeDatabaseSchema(db *sqlx.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("could not initialize database schema: %w", err)
	}

	return nil
}
