package errors

import (
	"context"
	stdErrors "errors"
)

// Normalize 将引擎返回的错误规范化为边界可见的错误码。
//
// 约定：
//   - NOT_FOUND / INVALID_PRODUCTION_CONTEXT / VALIDATION_ERROR 原样保留；
//   - 数据库错误、冲突以及任何未识别的错误统一映射为 INTERNAL，原始错误保留为 cause；
//   - 上下文取消同样视为 INTERNAL（事务此时已回滚）。
func Normalize(err error) error {
	if err == nil {
		return nil
	}

	switch CodeOf(err) {
	case ErrCodeNotFound, ErrCodeInvalidProductionContext, ErrCodeValidation, ErrCodeInternal:
		return err
	}

	if stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded) {
		return WrapError(err, ErrCodeInternal, "操作被取消")
	}
	return WrapError(err, ErrCodeInternal, "内部服务器错误")
}
