package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/Apurer/go-gin-crud-server/internal/crud"
)

// classify maps driver failures onto the crud error taxonomy. Errors that are
// already classified, and errors raised by callbacks, pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var verr *crud.ValidationError
	if errors.Is(err, crud.ErrNotFound) || errors.Is(err, crud.ErrIntegrity) ||
		errors.Is(err, crud.ErrUnavailable) || errors.As(err, &verr) {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated) {
		return fmt.Errorf("%w: %w", crud.ErrIntegrity, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		// class 23: integrity constraint violation
		case strings.HasPrefix(pgErr.Code, "23"):
			return fmt.Errorf("%w: %w", crud.ErrIntegrity, err)
		// class 08: connection exception; 57P01..57P03: server going away
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03":
			return fmt.Errorf("%w: %w", crud.ErrUnavailable, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connErr),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return fmt.Errorf("%w: %w", crud.ErrUnavailable, err)
	}
	return err
}
