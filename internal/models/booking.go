package models

import (
	"strings"
	"time"
)

// DaySlot narrows a day-wise booking to part of a single date.
type DaySlot struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// Booking is the stored reservation record. Exactly one of the time-wise
// (Date, StartTime, EndTime) or day-wise (StartDate, EndDate, DaySlots)
// groups is meaningful; Slot is a legacy free-text label.
type Booking struct {
	ID                 int64              `json:"id"`
	Hall               string             `json:"hallName"`
	Slot               string             `json:"slot,omitempty"`
	BookingName        string             `json:"bookingName,omitempty"`
	Email              string             `json:"email,omitempty"`
	Department         string             `json:"department,omitempty"`
	Phone              string             `json:"phone,omitempty"`
	SlotTitle          string             `json:"slotTitle,omitempty"`
	Remarks            string             `json:"remarks,omitempty"`
	Status             string             `json:"status"`
	CreatedBy          string             `json:"createdBy,omitempty"`
	CancellationReason string             `json:"cancellationReason,omitempty"`
	Date               string             `json:"date,omitempty"`
	StartTime          string             `json:"startTime,omitempty"`
	EndTime            string             `json:"endTime,omitempty"`
	StartDate          string             `json:"startDate,omitempty"`
	EndDate            string             `json:"endDate,omitempty"`
	DaySlots           map[string]DaySlot `json:"daySlots,omitempty"`
	AppliedAt          time.Time          `json:"appliedAt"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
	Version            int64              `json:"version"`
}

// SameHall compares hall names case-insensitively.
func (b *Booking) SameHall(name string) bool {
	return strings.EqualFold(strings.TrimSpace(b.Hall), strings.TrimSpace(name))
}

// Clone returns a deep copy, including the DaySlots map.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	if b.DaySlots != nil {
		c.DaySlots = make(map[string]DaySlot, len(b.DaySlots))
		for k, v := range b.DaySlots {
			c.DaySlots[k] = v
		}
	}
	return &c
}

// BookingPatch carries an edit; nil fields keep the stored value.
type BookingPatch struct {
	Hall               *string             `json:"hallName"`
	Slot               *string             `json:"slot"`
	BookingName        *string             `json:"bookingName"`
	Email              *string             `json:"email"`
	Department         *string             `json:"department"`
	Phone              *string             `json:"phone"`
	SlotTitle          *string             `json:"slotTitle"`
	Remarks            *string             `json:"remarks"`
	Status             *string             `json:"status"`
	CreatedBy          *string             `json:"createdBy"`
	CancellationReason *string             `json:"cancellationReason"`
	Date               *string             `json:"date"`
	StartTime          *string             `json:"startTime"`
	EndTime            *string             `json:"endTime"`
	StartDate          *string             `json:"startDate"`
	EndDate            *string             `json:"endDate"`
	DaySlots           *map[string]DaySlot `json:"daySlots"`
}

// Apply merges the patch into b.
func (p BookingPatch) Apply(b *Booking) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&b.Hall, p.Hall)
	set(&b.Slot, p.Slot)
	set(&b.BookingName, p.BookingName)
	set(&b.Email, p.Email)
	set(&b.Department, p.Department)
	set(&b.Phone, p.Phone)
	set(&b.SlotTitle, p.SlotTitle)
	set(&b.Remarks, p.Remarks)
	set(&b.Status, p.Status)
	set(&b.CancellationReason, p.CancellationReason)
	set(&b.Date, p.Date)
	set(&b.StartTime, p.StartTime)
	set(&b.EndTime, p.EndTime)
	set(&b.StartDate, p.StartDate)
	set(&b.EndDate, p.EndDate)
	if p.CreatedBy != nil && strings.TrimSpace(*p.CreatedBy) != "" {
		b.CreatedBy = strings.TrimSpace(*p.CreatedBy)
	}
	if p.DaySlots != nil {
		b.DaySlots = *p.DaySlots
	}
}

// BookingFilter narrows a booking listing. Empty fields match everything.
// Status, Department, Email and Hall compare case-insensitively, Date is an
// exact YYYY-MM-DD match on time-wise bookings and Slot matches a substring
// of the legacy label.
type BookingFilter struct {
	Status     string
	Department string
	Email      string
	Hall       string
	Date       string
	Slot       string
}
