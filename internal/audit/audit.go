// Package audit содержит служебные поля, общие для всех сохраняемых сущностей.
package audit

import "time"

// Envelope заполняют репозитории; сервисы его не трогают.
type Envelope struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Deleted   bool      `json:"-"`
}

// Stamp выставляет обе метки времени перед вставкой строки.
func (e *Envelope) Stamp(now time.Time) {
	e.CreatedAt = now
	e.UpdatedAt = now
	e.Deleted = false
}

// Touch отмечает изменение.
func (e *Envelope) Touch(now time.Time) {
	e.UpdatedAt = now
}
