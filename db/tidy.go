package db

import (
	sb "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// Tidy removes expired sessions from the database
func Tidy(database string) error {
	db, err := connection(database)
	if err != nil {
		return err
	}
	defer db.Close()

	deleteSessions := sb.NewDeleteBuilder()
	query, args := deleteSessions.DeleteFrom("sessions").
		Where("expires_at <= datetime('now')").
		Build()

	res, err := db.Exec(query, args...)
	if err != nil {
		return err
	}

	removed, _ := res.RowsAffected()
	log.WithFields(log.Fields{
		"removed": removed,
	}).Info("Tidied expired sessions")

	return nil
}
