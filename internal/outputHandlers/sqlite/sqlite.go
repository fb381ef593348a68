package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AlfredBerg/rod-jobs/internal/outputHandlers"
	_ "github.com/mattn/go-sqlite3"
)

// SqliteOutput mirrors the listings of every search term of a run into one database.
type SqliteOutput struct {
	Database string
	// RunID groups the rows written by one invocation
	RunID string

	db *sql.DB
}

const createListings = `CREATE TABLE IF NOT EXISTS listings (
	id integer not null primary key,
	run_id text not null,
	term text not null,
	seq integer not null,
	name text not null,
	description text not null,
	apply_link text not null,
	created_at datetime not null
);`

const insertListing = "INSERT into listings(run_id, term, seq, name, description, apply_link, created_at) values(?, ?, ?, ?, ?, ?, ?);"

func (o *SqliteOutput) Init() error {
	if o.Database == "" {
		return errors.New("sqlite database file not set")
	}

	db, err := sql.Open("sqlite3", o.Database)
	if err != nil {
		return err
	}

	if _, err := db.Exec(createListings); err != nil {
		db.Close()
		return fmt.Errorf("failed to create table listings: %w", err)
	}
	o.db = db
	return nil
}

func (o *SqliteOutput) Cleanup() error {
	if o.db == nil {
		return nil
	}
	return o.db.Close()
}

// ForTerm returns the handler receiving the listings of one search term. Closing it
// leaves the database open for the next term.
func (o *SqliteOutput) ForTerm(term string) outputHandlers.Handler {
	return &termOutput{o: o, term: term}
}

type termOutput struct {
	o    *SqliteOutput
	term string
}

func (t *termOutput) HandleListing(l outputHandlers.Listing) error {
	if t.o.db == nil {
		return errors.New("sqlite output not initialized")
	}
	_, err := t.o.db.Exec(insertListing, t.o.RunID, t.term, l.Seq, l.Name, l.Description, l.ApplyLink, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert listing %d for %q: %w", l.Seq, t.term, err)
	}
	return nil
}

func (t *termOutput) Close() error {
	return nil
}

// Listings returns the rows stored for term in the order they were written.
func (o *SqliteOutput) Listings(runID, term string) ([]outputHandlers.Listing, error) {
	rows, err := o.db.Query("SELECT seq, name, description, apply_link FROM listings WHERE run_id = ? AND term = ? ORDER BY id;", runID, term)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []outputHandlers.Listing
	for rows.Next() {
		var l outputHandlers.Listing
		if err := rows.Scan(&l.Seq, &l.Name, &l.Description, &l.ApplyLink); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
