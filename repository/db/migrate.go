package db

import (
	"errors"

	errs "taskman/internal/domain/errors"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	log "github.com/sirupsen/logrus"
)

func Migration(dbDSN, migratePath string) error {
	if dbDSN == "" || migratePath == "" {
		return errs.ErrBadRequest
	}

	m, err := migrate.New("file://"+migratePath, dbDSN)
	if err != nil {
		log.Errorln("Не удалось инициализировать миграции:", err)
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Errorln("Не удалось применить миграции:", err)
		return err
	}
	return nil
}
