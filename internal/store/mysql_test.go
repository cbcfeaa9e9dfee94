package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

// newTestDB connects to the database named by WAITLIST_TEST_MYSQL_DSN and
// wipes the waitlist tables. Tests are skipped when the variable is unset.
func newTestDB(t *testing.T) *MYSQLStore {
	dsn := os.Getenv("WAITLIST_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("WAITLIST_TEST_MYSQL_DSN not set, skipping store tests")
	}

	db, err := New(context.Background(), Config{
		DSN:         dsn,
		Automigrate: true,
	})
	assert.NoError(t, err)

	_, err = db.db.ExecContext(context.Background(), "SET FOREIGN_KEY_CHECKS = 0")
	assert.NoError(t, err)
	_, err = db.db.ExecContext(context.Background(), "DELETE FROM sequence_tracking")
	assert.NoError(t, err)
	_, err = db.db.ExecContext(context.Background(), "DELETE FROM subscriber_preferences")
	assert.NoError(t, err)
	_, err = db.db.ExecContext(context.Background(), "DELETE FROM referral_record")
	assert.NoError(t, err)
	_, err = db.db.ExecContext(context.Background(), "DELETE FROM waitlist_entry")
	assert.NoError(t, err)
	_, err = db.db.ExecContext(context.Background(), "DELETE FROM send_email_request")
	assert.NoError(t, err)
	_, err = db.db.ExecContext(context.Background(), "SET FOREIGN_KEY_CHECKS = 1")
	assert.NoError(t, err)

	return db
}
