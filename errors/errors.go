// Package errors 提供带错误码的应用错误类型。
//
// 修订引擎对外只暴露少量错误码，调用方（HTTP/CLI 边界）据此区分
// “请求被拒绝”与“存储异常”，不需要识别具体的驱动错误类型。
package errors

import (
	stdErrors "errors"
	"fmt"
)

// ErrorCode 错误代码类型
type ErrorCode string

const (
	// 边界可见的错误代码
	ErrCodeNotFound                 ErrorCode = "NOT_FOUND"
	ErrCodeInvalidProductionContext ErrorCode = "INVALID_PRODUCTION_CONTEXT"
	ErrCodeValidation               ErrorCode = "VALIDATION_ERROR"
	ErrCodeInternal                 ErrorCode = "INTERNAL"

	// 内部错误代码，经 Normalize 后统一映射为 INTERNAL
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeConflict ErrorCode = "CONFLICT"
)

// IError 错误接口
type IError interface {
	error

	Code() ErrorCode
	Message() string
	Cause() error
	Details() map[string]any

	// WithContext 返回附加了上下文字段的新错误，原错误不变
	WithContext(key string, value any) IError
}

// AppError 应用错误实现
type AppError struct {
	code    ErrorCode
	message string
	cause   error
	details map[string]any
}

// NewError 创建新错误
func NewError(code ErrorCode, message string) IError {
	return &AppError{code: code, message: message, details: make(map[string]any)}
}

// Errorf 按格式创建新错误
func Errorf(code ErrorCode, format string, args ...any) IError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// WrapError 包装错误；err 为 nil 时返回 nil
func WrapError(err error, code ErrorCode, message string) IError {
	if err == nil {
		return nil
	}
	return &AppError{code: code, message: message, cause: err, details: make(map[string]any)}
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *AppError) Code() ErrorCode { return e.code }
func (e *AppError) Message() string { return e.message }
func (e *AppError) Cause() error    { return e.cause }
func (e *AppError) Unwrap() error   { return e.cause }

func (e *AppError) Details() map[string]any {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	return e.details
}

// Is 同错误码的 AppError 视为相等，否则沿 cause 继续比较
func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}
	if appErr, ok := target.(*AppError); ok {
		return e.code == appErr.code
	}
	if e.cause != nil {
		return stdErrors.Is(e.cause, target)
	}
	return false
}

func (e *AppError) WithContext(key string, value any) IError {
	details := make(map[string]any, len(e.details)+1)
	for k, v := range e.details {
		details[k] = v
	}
	details[key] = value
	return &AppError{code: e.code, message: e.message, cause: e.cause, details: details}
}

// CodeOf 返回错误链上第一个 AppError 的错误码；不存在时返回空字符串
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}
	return ""
}

// IsCode 判断错误链上是否携带指定错误码
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// 预定义错误变量（用于 errors.Is 比较）
var (
	ErrNotFound                 = NewError(ErrCodeNotFound, "资源未找到")
	ErrInvalidProductionContext = NewError(ErrCodeInvalidProductionContext, "生产上下文无效")
	ErrValidation               = NewError(ErrCodeValidation, "数据验证失败")
	ErrInternal                 = NewError(ErrCodeInternal, "内部服务器错误")
	ErrDatabase                 = NewError(ErrCodeDatabase, "数据库错误")
	ErrConflict                 = NewError(ErrCodeConflict, "资源冲突")
)

// Is/As 透传标准库，便于调用方只导入本包
func Is(err, target error) bool     { return stdErrors.Is(err, target) }
func As(err error, target any) bool { return stdErrors.As(err, target) }
