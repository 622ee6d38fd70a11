package preflight

import "fmt"

// エラーコード。HTTP層でステータスに対応付けます。
const (
	CodeInvalidInput   = "INVALID_INPUT"
	CodeLimitExceeded  = "LIMIT_EXCEEDED"
	CodeDecodeFailed   = "DECODE_FAILED"
	CodeAssemblyFailed = "ASSEMBLY_FAILED"
)

// Error はユーザーに提示可能なコード付きエラーです。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
