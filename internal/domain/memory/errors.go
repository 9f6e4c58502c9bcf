package memory

import "errors"

// ErrInvalidInput 输入非法（空会话 id、非法窗口参数等）
var ErrInvalidInput = errors.New("invalid input")
