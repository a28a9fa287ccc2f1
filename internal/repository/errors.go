package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"

	"github.com/hitoshi/devicehub/internal/model"
)

var (
	// ErrDuplicate は一意制約違反を表す。
	ErrDuplicate = errors.New("repository: duplicate key")
	// ErrNotFound は更新・削除対象のレコードが存在しないことを表す。
	ErrNotFound = errors.New("repository: record not found")
)

// PostgreSQLのSQLSTATE
const (
	pqUniqueViolation   pq.ErrorCode = "23505"
	pqInvalidText       pq.ErrorCode = "22P02"
	pqQueryCanceled     pq.ErrorCode = "57014"
	pqAdminShutdown     pq.ErrorCode = "57P01"
	pqCannotConnectNow  pq.ErrorCode = "57P03"
	pqConnectionFailure pq.ErrorClass = "08"
)

// wrapError はドライバーエラーを分類し、操作名を付けてラップする。
// タイムアウトと接続不可は *model.APIError を連結し、上位層が errors.As で判別できるようにする。
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == pqUniqueViolation:
			return fmt.Errorf("%s: %w: %w", op, ErrDuplicate, err)
		case pqErr.Code == pqQueryCanceled:
			return fmt.Errorf("%s: %w: %w", op, model.NewTimeoutError(), err)
		case pqErr.Code == pqAdminShutdown, pqErr.Code == pqCannotConnectNow,
			pqErr.Code.Class() == pqConnectionFailure:
			return fmt.Errorf("%s: %w: %w", op, model.NewStoreUnavailableError(), err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", op, model.NewTimeoutError(), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%s: %w: %w", op, model.NewTimeoutError(), err)
		}
		return fmt.Errorf("%s: %w: %w", op, model.NewStoreUnavailableError(), err)
	}

	if errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%s: %w: %w", op, model.NewStoreUnavailableError(), err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// isInvalidTextRepresentation は入力値が列の型として解釈できなかったエラーかを返す。
// UUID列に外部由来の不正なIDを渡した場合に発生する。
func isInvalidTextRepresentation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqInvalidText
}
