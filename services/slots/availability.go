package slots

import (
	"context"
	"fmt"
	"slices"
	"time"

	"tutorbook/models"
	"tutorbook/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

func (s *DefaultSlotService) CreateAvailabilityRule(ctx context.Context, in RuleInput) (*models.AvailabilityRule, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.StartMinute >= in.EndMinute {
		return nil, utils.NewValidationError("endMinute", "window must end after it starts")
	}
	if (in.EndMinute-in.StartMinute)%in.CellMinutes != 0 {
		return nil, utils.NewValidationError("cellMinutes", "window of %d minutes is not a multiple of %d", in.EndMinute-in.StartMinute, in.CellMinutes)
	}

	rules, err := s.Repo.ListRules(ctx, in.TutorID)
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		if r.Weekday == in.Weekday && in.StartMinute < r.EndMinute && r.StartMinute < in.EndMinute {
			return nil, utils.NewValidationError("startMinute", "overlaps rule %s", r.ID)
		}
	}

	rule := &models.AvailabilityRule{
		ID:           uuid.New().String(),
		TutorID:      in.TutorID,
		Weekday:      in.Weekday,
		StartMinute:  in.StartMinute,
		EndMinute:    in.EndMinute,
		CellMinutes:  in.CellMinutes,
		PricePerCell: in.PricePerCell,
		Mode:         in.Mode,
		Active:       true,
		CreatedAt:    s.Now(),
	}
	if err := s.Repo.CreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("create availability rule: %w", err)
	}
	s.Logger.Info("availability rule created",
		zap.String("ruleId", rule.ID),
		zap.String("tutorId", rule.TutorID),
		zap.Stringer("weekday", rule.Weekday))
	return rule, nil
}

// SetCellOverride blocks or reprices one dated cell. A second override for
// the same cell replaces the first.
func (s *DefaultSlotService) SetCellOverride(ctx context.Context, tutorID, ruleID string, o models.CellOverride) (*models.AvailabilityRule, error) {
	rule, err := s.Repo.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if rule.TutorID != tutorID {
		return nil, &utils.NotFoundError{Resource: "availability rule", ID: ruleID}
	}
	day, err := time.Parse(dateLayout, o.Date)
	if err != nil {
		return nil, utils.NewValidationError("date", "expected YYYY-MM-DD")
	}
	if day.Weekday() != rule.Weekday {
		return nil, utils.NewValidationError("date", "%s is a %s, rule runs on %s", o.Date, day.Weekday(), rule.Weekday)
	}
	if o.StartMinute >= rule.EndMinute || !cellAligned(*rule, o.StartMinute) {
		return nil, utils.NewValidationError("startMinute", "not the start of a cell")
	}
	if o.Price != nil && *o.Price <= 0 {
		return nil, utils.NewValidationError("price", "must be positive")
	}

	rule.Overrides = slices.DeleteFunc(rule.Overrides, func(c models.CellOverride) bool {
		return c.Date == o.Date && c.StartMinute == o.StartMinute
	})
	rule.Overrides = append(rule.Overrides, o)
	if err := s.Repo.UpdateRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// ListCells expands the tutor's active rules into the open, unreserved,
// future cells that lie wholly inside [from, to).
func (s *DefaultSlotService) ListCells(ctx context.Context, tutorID string, from, to time.Time) ([]models.Cell, error) {
	if !from.Before(to) {
		return nil, utils.NewValidationError("to", "must be after from")
	}
	if horizon := s.Policy.ListHorizon; horizon > 0 && to.Sub(from) > horizon {
		to = from.Add(horizon)
	}
	rules, err := s.Repo.ListRules(ctx, tutorID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	var cells []models.Cell
	for day := truncateDay(from); day.Before(to); day = day.AddDate(0, 0, 1) {
		for _, rule := range rules {
			if rule.Weekday != day.Weekday() {
				continue
			}
			for m := rule.StartMinute; m < rule.EndMinute; m += rule.CellMinutes {
				start := day.Add(time.Duration(m) * time.Minute)
				end := start.Add(time.Duration(rule.CellMinutes) * time.Minute)
				if start.Before(from) || end.After(to) || !start.After(now) {
					continue
				}
				price, open := cellPrice(rule, start)
				if !open {
					continue
				}
				occ, err := s.Repo.GetOccurrence(ctx, models.OccurrenceKey(rule.ID, start))
				if err == nil && occ.Remaining() == 0 {
					continue
				}
				if err != nil && !utils.IsKind(err, utils.KindNotFound) {
					return nil, err
				}
				cells = append(cells, models.Cell{RuleID: rule.ID, Start: start, End: end, Price: price})
			}
		}
	}
	return cells, nil
}

// ReserveRange reserves every cell covering [start, end) on one of the
// tutor's rules. Either all cells are taken or none is.
func (s *DefaultSlotService) ReserveRange(ctx context.Context, tutorID string, start, end time.Time) (*RangeReservation, error) {
	start, end = start.UTC(), end.UTC()
	if !start.Before(end) {
		return nil, utils.NewValidationError("end", "start must be before end")
	}
	if !start.After(s.Now()) {
		return nil, utils.NewValidationError("start", "range has already started")
	}
	day := truncateDay(start)
	if !truncateDay(end.Add(-time.Nanosecond)).Equal(day) {
		return nil, utils.NewValidationError("end", "range must fall on a single day")
	}
	startMin := int(start.Sub(day) / time.Minute)
	endMin := int(end.Sub(day) / time.Minute)
	if start.Sub(day)%time.Minute != 0 || end.Sub(day)%time.Minute != 0 {
		return nil, utils.NewValidationError("start", "range must align to whole minutes")
	}

	rules, err := s.Repo.ListRules(ctx, tutorID)
	if err != nil {
		return nil, err
	}
	var rule *models.AvailabilityRule
	for i := range rules {
		r := rules[i]
		if r.Weekday == day.Weekday() && r.StartMinute <= startMin && endMin <= r.EndMinute &&
			cellAligned(r, startMin) && cellAligned(r, endMin) {
			rule = &r
			break
		}
	}
	if rule == nil {
		return nil, utils.NewValidationError("start", "range does not match the tutor's availability")
	}

	out := &RangeReservation{Mode: rule.Mode}
	var templates []models.Occurrence
	for m := startMin; m < endMin; m += rule.CellMinutes {
		cs := day.Add(time.Duration(m) * time.Minute)
		price, open := cellPrice(*rule, cs)
		if !open {
			return nil, utils.NewValidationError("start", "cell at %s is blocked", cs.Format(time.RFC3339))
		}
		out.Price += price
		templates = append(templates, models.Occurrence{
			Key:      models.OccurrenceKey(rule.ID, cs),
			OwnerID:  rule.ID,
			TutorID:  rule.TutorID,
			Start:    cs,
			End:      cs.Add(time.Duration(rule.CellMinutes) * time.Minute),
			Mode:     rule.Mode,
			Price:    price,
			Capacity: 1,
			Status:   models.SlotOpen,
		})
	}

	err = s.Tx.RunInTx(ctx, func(ctx context.Context) error {
		out.Reservations = out.Reservations[:0]
		for _, t := range templates {
			occ, err := s.Repo.Reserve(ctx, t)
			if err != nil {
				return err
			}
			out.Reservations = append(out.Reservations, models.Reservation{
				OccurrenceKey: occ.Key,
				OwnerID:       occ.OwnerID,
				Start:         occ.Start,
				Remaining:     occ.Remaining(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func cellAligned(rule models.AvailabilityRule, minute int) bool {
	if minute < rule.StartMinute || minute > rule.EndMinute {
		return false
	}
	return (minute-rule.StartMinute)%rule.CellMinutes == 0
}

// cellPrice applies any override for the cell starting at start. open is
// false when the cell is blocked.
func cellPrice(rule models.AvailabilityRule, start time.Time) (price int64, open bool) {
	date := start.Format(dateLayout)
	minute := int(start.Sub(truncateDay(start)) / time.Minute)
	for _, o := range rule.Overrides {
		if o.Date != date || o.StartMinute != minute {
			continue
		}
		if o.Blocked {
			return 0, false
		}
		if o.Price != nil {
			return *o.Price, true
		}
	}
	return rule.PricePerCell, true
}
