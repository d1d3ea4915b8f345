package errors

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"

	"recipetrail/logging"
)

// WrapDatabaseError 包装数据库错误
//
// sql.ErrNoRows 映射为 NOT_FOUND，其余错误记录警告日志后包装为 DATABASE_ERROR。
func WrapDatabaseError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}
	if stdErrors.Is(err, sql.ErrNoRows) {
		return WrapError(err, ErrCodeNotFound, operation)
	}

	logging.GetLogger().Warn(ctx, fmt.Sprintf("数据库操作失败: %s", operation),
		logging.Error(err),
		logging.String("operation", operation),
	)
	return WrapError(err, ErrCodeDatabase, operation)
}

// NewValidationError 创建验证错误
func NewValidationError(msg string) error {
	return NewError(ErrCodeValidation, msg)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(format string, args ...any) error {
	return Errorf(ErrCodeNotFound, format, args...)
}
