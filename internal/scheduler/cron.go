package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser — пятипольные выражения и дескрипторы (@every 5m, @daily).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSpec разбирает расписание таймера.
func ParseSpec(spec string) (cron.Schedule, error) {
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return schedule, nil
}

// ValidateSpec проверяет валидность расписания.
func ValidateSpec(spec string) error {
	_, err := ParseSpec(spec)
	return err
}

// NextRun вычисляет следующее время срабатывания после from.
func NextRun(spec string, from time.Time) (time.Time, error) {
	schedule, err := ParseSpec(spec)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from), nil
}
