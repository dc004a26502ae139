package trips

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("trip not found")

	// ErrValidation — некорректные входные данные; локально исправимо.
	ErrValidation = errors.New("validation failed")

	// ErrForbidden — водитель действует не на своём рейсе.
	ErrForbidden = errors.New("trip is bound to another driver")

	// ErrUnauthorized — действие требует куратора.
	ErrUnauthorized = errors.New("curator access required")

	// ErrTerminal — административные правки по завершённому рейсу.
	ErrTerminal = errors.New("trip is in a terminal status")
)

// InvalidTransitionError возвращается на нелегальное ребро графа статусов;
// несёт фактический статус, чтобы вызывающая сторона поправила своё
// представление (задвоенные клики, гонки).
type InvalidTransitionError struct {
	Current   Status
	Attempted Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition to %q: trip is %q", e.Attempted, e.Current)
}

// SoftGateError — не ошибка, а приглашение подтвердить: документов фазы не
// хватает, переход выполнится повторным вызовом с force.
type SoftGateError struct {
	Phase Phase
	Docs  PhaseDocs
}

func (e *SoftGateError) Error() string {
	return fmt.Sprintf("phase %q documents incomplete: photos=%d, required=%d; force to proceed",
		e.Phase, e.Docs.PhotoCount, e.Docs.RequiredDocCount)
}
