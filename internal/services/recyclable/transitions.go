package recyclable

import (
	"fmt"
	"strings"

	"github.com/rajivgeraev/recyclables-api/internal/models"
)

// TransitionTable таблица допустимых переходов статуса.
// Пустая таблица разрешает любой переход; переход в тот же статус разрешен всегда.
type TransitionTable[S ~string] struct {
	entity  string
	allowed map[S]map[S]bool
}

// PermissiveTable разрешает любые переходы
func PermissiveTable[S ~string](entity string) *TransitionTable[S] {
	return &TransitionTable[S]{entity: entity}
}

// ParseTransitions разбирает таблицу вида "available:reserved,sold;reserved:available".
// Статус без правой части ("sold:") конечный. Пустая строка дает разрешающую таблицу.
func ParseTransitions[S ~string](entity, rules string, valid func(S) bool) (*TransitionTable[S], error) {
	t := PermissiveTable[S](entity)
	rules = strings.TrimSpace(rules)
	if rules == "" {
		return t, nil
	}

	t.allowed = make(map[S]map[S]bool)
	for _, rule := range strings.Split(rules, ";") {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}
		fromRaw, toRaw, ok := strings.Cut(rule, ":")
		if !ok {
			return nil, fmt.Errorf("%s: правило %q без ':'", entity, rule)
		}

		from := S(strings.TrimSpace(fromRaw))
		if !valid(from) {
			return nil, fmt.Errorf("%s: неизвестный статус %q", entity, from)
		}
		if t.allowed[from] == nil {
			t.allowed[from] = make(map[S]bool)
		}

		for _, raw := range strings.Split(toRaw, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			to := S(raw)
			if !valid(to) {
				return nil, fmt.Errorf("%s: неизвестный статус %q", entity, to)
			}
			t.allowed[from][to] = true
		}
	}
	return t, nil
}

// Permissive сообщает, что таблица не ограничивает переходы
func (t *TransitionTable[S]) Permissive() bool {
	return t.allowed == nil
}

// Check возвращает *models.TransitionError для запрещенного перехода
func (t *TransitionTable[S]) Check(from, to S) error {
	if t.allowed == nil || from == to || t.allowed[from][to] {
		return nil
	}
	return &models.TransitionError{Entity: t.entity, From: string(from), To: string(to)}
}
