package gateway

// 订单状态线格式。0 表示待确认（新订单）。
const StatusPending = 0

// Order 后端返回的订单记录。引擎只按 Status 分类，其余字段原样透传。
type Order struct {
	Status int `json:"Status"`
}

// IsPending 订单尚未被确认。
func (o Order) IsPending() bool {
	return o.Status == StatusPending
}
