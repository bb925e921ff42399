package scheduler

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"remna-bot/internal/syncerr"
)

const timeLayout = "15:04"

type scheduleInput struct {
	Times []string `validate:"required,min=1,dive,datetime=15:04"`
}

// ParseTimes проверяет список времён вида HH:MM и возвращает его отсортированным без повторов.
// Одно неверное значение отклоняет весь список.
func ParseTimes(validate *validator.Validate, times []string) ([]string, error) {
	in := scheduleInput{Times: make([]string, 0, len(times))}
	for _, t := range times {
		in.Times = append(in.Times, strings.TrimSpace(t))
	}

	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Tag() == "datetime" {
				return nil, syncerr.Validationf("times", "%q is not a valid HH:MM time", fe.Value())
			}
			return nil, syncerr.Validationf("times", "at least one time is required")
		}
		return nil, err
	}

	normalized := make([]string, 0, len(in.Times))
	for _, t := range in.Times {
		parsed, err := time.Parse(timeLayout, t)
		if err != nil {
			return nil, syncerr.Validationf("times", "%q is not a valid HH:MM time", t)
		}
		normalized = append(normalized, parsed.Format(timeLayout))
	}
	slices.Sort(normalized)
	return slices.Compact(normalized), nil
}

// cronSpec - ежедневный запуск в HH:MM
func cronSpec(hhmm string) (string, error) {
	t, err := time.Parse(timeLayout, hhmm)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}

// NextRun - ближайший запуск после now среди ежедневных времён, в часовом поясе loc.
// Если сегодня все времена прошли, это первое время завтрашнего дня.
func NextRun(times []string, now time.Time, loc *time.Location) (time.Time, bool) {
	var next time.Time
	for _, hhmm := range times {
		spec, err := cronSpec(hhmm)
		if err != nil {
			continue
		}
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			continue
		}
		t := sched.Next(now.In(loc))
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next, !next.IsZero()
}
