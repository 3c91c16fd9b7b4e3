package checkpoint

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var ErrInvalidSpec = errors.New("invalid checkpoint schedule")

// specParser accepts standard 5-field cron (minute hour day month weekday)
// and descriptors such as @hourly or @every 30s
var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSpec validates and parses a checkpoint schedule
func ParseSpec(spec string) (cron.Schedule, error) {
	sched, err := specParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSpec, err)
	}
	return sched, nil
}

// ValidateSpec checks if a checkpoint schedule is valid
func ValidateSpec(spec string) error {
	_, err := ParseSpec(spec)
	return err
}

// NextSave returns the first save time after the given time
func NextSave(spec string, after time.Time) (time.Time, error) {
	sched, err := ParseSpec(spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
