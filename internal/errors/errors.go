// 包 errors 定义同步流程中的错误分类（认证/令牌交换/抓取/记录拒绝/持久化/配置），
// 调用方通过 errors.As 判定类型并决定是跳过记录、终止端点还是终止进程。
package errors

import "fmt"

// 配置错误

type ErrConfigNotFound struct {
	Path string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ErrConfigParse struct {
	Path string
	Err  error
}

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("parse config %s: %v", e.Path, e.Err)
}

func (e *ErrConfigParse) Unwrap() error { return e.Err }

type ErrConfigValidation struct {
	Field string
	Err   error
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("invalid config %s: %v", e.Field, e.Err)
}

func (e *ErrConfigValidation) Unwrap() error { return e.Err }

// 认证错误

// ErrAuthentication 交互式授权被中止，或回调地址无法解析/state 不匹配。
type ErrAuthentication struct {
	Reason string
	Err    error
}

func (e *ErrAuthentication) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *ErrAuthentication) Unwrap() error { return e.Err }

// ErrTokenExchange 授权码交换或刷新被服务端拒绝（非 2xx），或响应不可用。
// StatusCode 为 0 表示未拿到 HTTP 响应。
type ErrTokenExchange struct {
	Grant      string // authorization_code | refresh_token
	StatusCode int
	Err        error
}

func (e *ErrTokenExchange) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token exchange (%s) rejected with status %d: %v", e.Grant, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("token exchange (%s) failed: %v", e.Grant, e.Err)
}

func (e *ErrTokenExchange) Unwrap() error { return e.Err }

// ErrTokenFile 令牌文件读写失败，属于资源级故障。
type ErrTokenFile struct {
	Path string
	Op   string
	Err  error
}

func (e *ErrTokenFile) Error() string {
	return fmt.Sprintf("token file %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ErrTokenFile) Unwrap() error { return e.Err }

// 抓取错误

type ErrFetch struct {
	Endpoint   string
	URL        string
	StatusCode int
	Err        error
}

func (e *ErrFetch) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: http status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.Endpoint, e.Err)
}

func (e *ErrFetch) Unwrap() error { return e.Err }

// 存储错误

// ErrRecordRejected 记录缺少所需日期字段，被丢弃但不影响同批次其它记录。
type ErrRecordRejected struct {
	DataType string
	Field    string
}

func (e *ErrRecordRejected) Error() string {
	return fmt.Sprintf("record for %s has no %q value", e.DataType, e.Field)
}

type ErrPersistence struct {
	Table     string
	Operation string
	Err       error
}

func (e *ErrPersistence) Error() string {
	return fmt.Sprintf("persist %s (%s): %v", e.Table, e.Operation, e.Err)
}

func (e *ErrPersistence) Unwrap() error { return e.Err }

type ErrDatabaseOpen struct {
	Path string
	Err  error
}

func (e *ErrDatabaseOpen) Error() string {
	return fmt.Sprintf("open database %s: %v", e.Path, e.Err)
}

func (e *ErrDatabaseOpen) Unwrap() error { return e.Err }
