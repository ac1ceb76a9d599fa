package session

// State 会话状态
type State int

const (
	// StateUnauthenticated 进程启动后的空会话
	StateUnauthenticated State = iota
	// StateValid 最近一次登录或校验成功
	StateValid
	// StateUnverified 从存储恢复了 token，但尚未经后端校验
	StateUnverified
	// StateInvalid 校验失败、401 或重试耗尽
	StateInvalid
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "UNAUTHENTICATED"
	case StateValid:
		return "VALID"
	case StateUnverified:
		return "UNVERIFIED"
	case StateInvalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// Credentials 登录凭据，进程内持有，一经设置不可变直到被替换。
type Credentials struct {
	Username string
	Password string
}

// Empty 凭据未设置。
func (c Credentials) Empty() bool {
	return c.Username == "" || c.Password == ""
}

// RestaurantInfo 随登录响应返回的门店信息，与 token 一并落盘。
type RestaurantInfo struct {
	Name        string `json:"name"`
	CanEditMenu bool   `json:"canEditMenu"`
}
