// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 通用错误类型
	ErrorTypeValidation   ErrorType = "validation_error"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeError        ErrorType = "processing_error"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeTimeout      ErrorType = "timeout"

	// 管线错误分类
	ErrorTypeTransient     ErrorType = "transient_error"      // 外部瞬态失败（模型超时、网络）
	ErrorTypeBestEffort    ErrorType = "best_effort_degraded" // 尽力而为阶段的降级，不中止回合
	ErrorTypeAttribution   ErrorType = "attribution_error"    // 流事件无法归属到角色
	ErrorTypeDataIntegrity ErrorType = "data_integrity"       // 重复消息 ID 等诊断性告警
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewProcessingError 创建处理错误
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

// NewConflictError 创建冲突错误
func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

// NewTransientError 创建瞬态外部失败错误
func NewTransientError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeTransient, message, originalError)
}

// NewAttributionError 创建流归属错误
func NewAttributionError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeAttribution, message, originalError)
}

// NewDataIntegrityError 创建数据完整性告警错误
func NewDataIntegrityError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeDataIntegrity, message, originalError)
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsConflictError 检查是否为冲突错误
func IsConflictError(err error) bool {
	return hasType(err, ErrorTypeConflict)
}

// IsTransientError 检查是否为瞬态外部失败
func IsTransientError(err error) bool {
	return hasType(err, ErrorTypeTransient)
}

// IsAttributionError 检查是否为流归属错误
func IsAttributionError(err error) bool {
	return hasType(err, ErrorTypeAttribution)
}

// IsDataIntegrityError 检查是否为数据完整性告警
func IsDataIntegrityError(err error) bool {
	return hasType(err, ErrorTypeDataIntegrity)
}

func hasType(err error, errType ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == errType
	}
	return false
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeTransient:
		return "TRANSIENT_ERROR"
	case ErrorTypeBestEffort:
		return "BEST_EFFORT_DEGRADED"
	case ErrorTypeAttribution:
		return "ATTRIBUTION_ERROR"
	case ErrorTypeDataIntegrity:
		return "DATA_INTEGRITY"
	default:
		return "UNKNOWN_ERROR"
	}
}
