// Нормализация номеров телефонов: телефон — единственный надёжный ключ
// между рейсом и водителем до регистрации, поэтому любое сравнение и любая
// запись проходят через Normalize ровно один раз.
package phone

import "strings"

// Normalize приводит номер к E.164-подобному виду: + и только цифры.
// Функция тотальна — никогда не возвращает ошибку; если распарсить номер
// не удалось, исходная строка возвращается как есть (best effort).
//
// Российские варианты записи сводятся к одному виду:
//
//	8 (999) 123-45-67  -> +79991234567
//	7 999 123 45 67    -> +79991234567
//	9991234567         -> +79991234567
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}

	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < 10 || len(digits) > 15 {
		// не похоже на номер — отдаём как есть
		return s
	}

	switch {
	case len(digits) == 11 && digits[0] == '8':
		return "+7" + digits[1:]
	case len(digits) == 10:
		// номер без кода страны — считаем российским
		return "+7" + digits
	default:
		return "+" + digits
	}
}
