package enums

// NotificationType labels outbound notification payloads.
type NotificationType string

const (
	NotificationTypeOrderAssigned      NotificationType = "order_assigned"
	NotificationTypeOrderStatusChanged NotificationType = "order_status_changed"
	NotificationTypeOrderDelivered     NotificationType = "order_delivered"
	NotificationTypeWithdrawalUpdated  NotificationType = "withdrawal_updated"
)

// String implements fmt.Stringer.
func (t NotificationType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known NotificationType.
func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationTypeOrderAssigned,
		NotificationTypeOrderStatusChanged,
		NotificationTypeOrderDelivered,
		NotificationTypeWithdrawalUpdated:
		return true
	default:
		return false
	}
}
