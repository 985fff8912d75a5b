package errors

/*
	内置通用错误码，各业务包在 4000 之后自行分段
*/

var (
	// ErrServer 服务器错误
	ErrServer = New(1000, 500, "internal error", nil)
	// ErrBadRequest 请求异常
	ErrBadRequest = New(1001, 400, "bad request", nil)
	// ErrUnavailable 服务不可用
	ErrUnavailable = New(1002, 503, "service unavailable", nil)
)
