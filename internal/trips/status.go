package trips

// Status — этап жизненного цикла рейса.
//
//	assigned -> active -> loading -> in_transit -> unloading -> delivered -> completed
//
// cancelled достижим из любого нетерминального статуса.
type Status string

const (
	StatusAssigned  Status = "assigned"
	StatusActive    Status = "active"
	StatusLoading   Status = "loading"
	StatusInTransit Status = "in_transit"
	StatusUnloading Status = "unloading"
	StatusDelivered Status = "delivered"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// forward — прямые рёбра цепочки; каждый шаг разрешён только из
// непосредственного предшественника.
var forward = map[Status]Status{
	StatusAssigned:  StatusActive,
	StatusActive:    StatusLoading,
	StatusLoading:   StatusInTransit,
	StatusInTransit: StatusUnloading,
	StatusUnloading: StatusDelivered,
	StatusDelivered: StatusCompleted,
}

// deliveredFrom — статусы, из которых разрешён переход в delivered
// (через soft-проверку документов).
var deliveredFrom = map[Status]bool{
	StatusUnloading: true,
	StatusActive:    true,
	StatusInTransit: true,
}

// ParseStatus валидирует строку статуса.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusAssigned, StatusActive, StatusLoading, StatusInTransit,
		StatusUnloading, StatusDelivered, StatusCompleted, StatusCancelled:
		return Status(s), true
	}
	return "", false
}

// Terminal: completed и cancelled останавливают дальнейшие переходы.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition отвечает, разрешено ли ребро from -> to.
// Идемпотентность cancel (cancelled -> cancelled как no-op) — забота
// движка, не графа.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case StatusCancelled:
		return true
	case StatusDelivered:
		return deliveredFrom[from]
	default:
		return forward[from] == to
	}
}

// NeedsDocumentGate: вход в delivered гарантируется документами
// (фото выгрузки + УПД) либо явным force.
func NeedsDocumentGate(to Status) bool {
	return to == StatusDelivered
}

// Phase — фаза рейса для проверки комплекта документов.
type Phase string

const (
	PhaseLoading   Phase = "loading"
	PhaseUnloading Phase = "unloading"
)
