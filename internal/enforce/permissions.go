package enforce

import (
	"github.com/hitoshi/roomguard/internal/access"
)

// 登録済みユーザーが利用できるコマンド
const (
	CommandCheckVariable = "check-variable"
	CommandShowMyID      = "show-my-id"
)

var registeredCommands = []string{CommandCheckVariable, CommandShowMyID}

// Policy はロールとトピックの組み合わせごとの権限表。
//
//	ロール        投稿可能なトピック                 コマンド
//	admin         general, application, tutorial     登録済みの全コマンド（同じ3トピックのみ）
//	registered    general, application, tutorial     check-variable, show-my-id（generalのみ）
//	unregistered  なし                               なし
type Policy struct {
	sub SubChannels
}

// NewPolicy はトピックIDから権限表を生成する。
func NewPolicy(sub SubChannels) Policy {
	return Policy{sub: sub}
}

func (p Policy) sendChannels() []int {
	return []int{p.sub.General, p.sub.Application, p.sub.Tutorial}
}

// CanSend はroleがsubChannelに通常メッセージを投稿できるかを返す。
func (p Policy) CanSend(role access.Role, subChannel int) bool {
	if role == access.RoleUnregistered {
		return false
	}
	for _, id := range p.sendChannels() {
		if id == subChannel {
			return true
		}
	}
	return false
}

// CanCommand はroleがsubChannelでコマンドnameを実行できるかを返す。
// recognizedはコマンドがディスパッチャーに登録されているかどうか。
func (p Policy) CanCommand(role access.Role, name string, subChannel int, recognized bool) bool {
	switch role {
	case access.RoleAdmin:
		return recognized && p.CanSend(role, subChannel)
	case access.RoleRegistered:
		if subChannel != p.sub.General {
			return false
		}
		for _, c := range registeredCommands {
			if c == name {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// AllowedSubChannels は拒否通知に表示する投稿可能トピック名を返す。
func (p Policy) AllowedSubChannels(role access.Role) []string {
	if role == access.RoleUnregistered {
		return nil
	}
	var names []string
	for _, id := range p.sendChannels() {
		names = append(names, p.sub.Name(id))
	}
	return names
}

// AllowedCommandSubChannels は拒否通知に表示するコマンド実行可能トピック名を返す。
func (p Policy) AllowedCommandSubChannels(role access.Role) []string {
	switch role {
	case access.RoleAdmin:
		return p.AllowedSubChannels(role)
	case access.RoleRegistered:
		return []string{p.sub.Name(p.sub.General)}
	default:
		return nil
	}
}

// AllowedCommands は登録済みユーザーが利用できるコマンドを "/" 付きで返す。
func (p Policy) AllowedCommands() []string {
	out := make([]string, len(registeredCommands))
	for i, c := range registeredCommands {
		out[i] = "/" + c
	}
	return out
}
