package protocol

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// Response 命令的响应，result 与 error 二选一
type Response struct {
	ID     int         `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  *Error      `json:"error,omitempty"`
}

// Error 协议错误
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// EmptyResult 没有返回值的命令使用的结果
type EmptyResult map[string]interface{}

func NewResponse(id int, result interface{}) *Response {
	if result == nil {
		result = EmptyResult{}
	}
	return &Response{ID: id, Result: result}
}

func NewErrorResponse(id int, code int, message string) *Response {
	return &Response{
		ID:    id,
		Error: &Error{Code: code, Message: message},
	}
}

// Encode 序列化为协议文本
func Encode(message interface{}) string {
	answer, err := json.Marshal(message)
	if err != nil {
		logrus.Warnf("marshal protocol message fail, err = %v", err)
		return ""
	}
	return string(answer)
}
