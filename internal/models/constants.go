package models

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusApproved  BookingStatus = "approved"
	StatusRejected  BookingStatus = "rejected"
	StatusCompleted BookingStatus = "completed"
	StatusCancelled BookingStatus = "cancelled"

	// StatusAll is a filter value only, never stored.
	StatusAll BookingStatus = "all"
)

// AllStatuses lists stored statuses in lifecycle order.
var AllStatuses = []BookingStatus{
	StatusPending,
	StatusApproved,
	StatusRejected,
	StatusCompleted,
	StatusCancelled,
}

func (s BookingStatus) String() string {
	return string(s)
}

// IsValid reports whether s is a stored status.
func (s BookingStatus) IsValid() bool {
	for _, st := range AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// Role is the acting user's relation to a booking, resolved at the
// authorization boundary.
type Role string

const (
	RoleNone      Role = ""
	RoleRenter    Role = "renter"
	RoleCompanion Role = "companion"
	RoleAdmin     Role = "admin"
)

func (r Role) String() string {
	if r == RoleNone {
		return "none"
	}
	return string(r)
}

const (
	// DefaultMaxBookingDays ограничивает, насколько далеко вперед можно бронировать
	DefaultMaxBookingDays = 90

	// DefaultListLimit размер страницы списка бронирований по умолчанию
	DefaultListLimit = 50

	// MaxListLimit верхняя граница размера страницы
	MaxListLimit = 500

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 128

	// DefaultRecommendationLimit количество рекомендаций по умолчанию
	DefaultRecommendationLimit = 10

	// DateLayout формат даты бронирования
	DateLayout = "2006-01-02"

	// TimeLayout формат времени начала бронирования
	TimeLayout = "15:04"
)
