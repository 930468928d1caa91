package protocol

import (
	"fmt"

	"github.com/fansqz/lua-inspector/constants"
	e "github.com/fansqz/lua-inspector/error"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Command 客户端发来的一条协议命令
// params 不做结构化解析，由各个处理函数按需读取
type Command struct {
	ID     int
	Method string
	Params gjson.Result
}

// ParseCommand 解析一条协议命令
func ParseCommand(message string) (*Command, error) {
	if !gjson.Valid(message) {
		return nil, fmt.Errorf("%w: message must be a valid JSON", e.ErrInvalidMessage)
	}
	root := gjson.Parse(message)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: message must be an object", e.ErrInvalidMessage)
	}
	id := root.Get("id")
	if id.Type != gjson.Number {
		return nil, fmt.Errorf("%w: message must have integer 'id' property", e.ErrInvalidMessage)
	}
	method := root.Get("method")
	if method.Type != gjson.String {
		return &Command{ID: int(id.Int())}, fmt.Errorf("%w: message must have string 'method' property", e.ErrInvalidMessage)
	}
	return &Command{
		ID:     int(id.Int()),
		Method: method.String(),
		Params: root.Get("params"),
	}, nil
}

// PeekCallID 读取消息中的 id，不存在时返回 false
func PeekCallID(message string) (int, bool) {
	id := gjson.Get(message, "id")
	if id.Type != gjson.Number {
		return 0, false
	}
	return int(id.Int()), true
}

// NewCommand 构造一条不带参数的命令
func NewCommand(id int, method constants.ProtocolMethod) string {
	message, err := sjson.Set("", "id", id)
	if err != nil {
		return ""
	}
	message, err = sjson.Set(message, "method", string(method))
	if err != nil {
		return ""
	}
	return message
}

// BootstrapMessages 连接时下发的启用命令，顺序固定
func BootstrapMessages() []string {
	messages := make([]string, len(constants.BootstrapCommands))
	for i, command := range constants.BootstrapCommands {
		messages[i] = NewCommand(command.ID, command.Method)
	}
	return messages
}

// IsReservedCallID 判断 id 是否被启动命令占用
func IsReservedCallID(id int) bool {
	for _, command := range constants.BootstrapCommands {
		if command.ID == id {
			return true
		}
	}
	return false
}
