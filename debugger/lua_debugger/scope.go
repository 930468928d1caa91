package lua_debugger

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fansqz/lua-inspector/constants"
	e "github.com/fansqz/lua-inspector/error"
	"github.com/fansqz/lua-inspector/protocol"
	lua "github.com/yuin/gopher-lua"
)

const (
	scopeObjectPrefix = "scope"
	globalObjectID    = "scope:global"
)

// scopeObjectID 作用域对象的 id，格式为 scope:<类型>:<栈帧层级>
func scopeObjectID(scopeType constants.ScopeType, level int) string {
	return fmt.Sprintf("%s:%s:%d", scopeObjectPrefix, scopeType, level)
}

// scopeVariables 读取作用域对象中的变量
func scopeVariables(ctx *LuaContext, objectID string) ([]*Variable, error) {
	if objectID == globalObjectID {
		return globalVariables(ctx), nil
	}
	parts := strings.Split(objectID, ":")
	if len(parts) != 3 || parts[0] != scopeObjectPrefix {
		return nil, e.ErrObjectNotFound
	}
	level, err := strconv.Atoi(parts[2])
	if err != nil {
		return nil, e.ErrObjectNotFound
	}
	switch constants.ScopeType(parts[1]) {
	case constants.LocalScope:
		return ctx.Locals(level)
	case constants.ClosureScope:
		return ctx.Upvalues(level)
	}
	return nil, e.ErrObjectNotFound
}

// globalVariables 全局表中的字符串键，按名称排序
func globalVariables(ctx *LuaContext) []*Variable {
	var variables []*Variable
	ctx.L.G.Global.ForEach(func(key lua.LValue, value lua.LValue) {
		if name, ok := key.(lua.LString); ok {
			variables = append(variables, &Variable{Name: string(name), Value: value})
		}
	})
	sort.Slice(variables, func(i, j int) bool {
		return variables[i].Name < variables[j].Name
	})
	return variables
}

func toPropertyDescriptors(variables []*Variable) []*protocol.PropertyDescriptor {
	properties := make([]*protocol.PropertyDescriptor, 0, len(variables))
	for _, variable := range variables {
		properties = append(properties, &protocol.PropertyDescriptor{
			Name:       variable.Name,
			Value:      toRemoteObject(variable.Value),
			Writable:   true,
			Enumerable: true,
			IsOwn:      true,
		})
	}
	return properties
}
