package model

import (
	"time"

	"github.com/knocktern/hospital-booking/services/hospital-service/internal/scheduling"
)

type Role string

const (
	RoleManager Role = "manager"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func (r Role) Valid() bool {
	switch r {
	case RoleManager, RoleDoctor, RolePatient:
		return true
	}
	return false
}

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Phone        string    `json:"phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

const DefaultConsultationFee = 500.00

type Doctor struct {
	ID              int64            `json:"id"`
	UserID          int64            `json:"user_id"`
	Email           string           `json:"email"`
	Name            string           `json:"name"`
	Department      string           `json:"department"`
	Specialization  string           `json:"specialization,omitempty"`
	Qualification   string           `json:"qualification,omitempty"`
	ExperienceYears int              `json:"experience_years"`
	ConsultationFee float64          `json:"consultation_fee"`
	AvailableFrom   scheduling.Clock `json:"available_from"`
	AvailableTo     scheduling.Clock `json:"available_to"`
	CreatedAt       time.Time        `json:"created_at"`
}

func (d Doctor) WorkingHours() scheduling.WorkingHours {
	return scheduling.WorkingHours{From: d.AvailableFrom, To: d.AvailableTo}
}

type BookingType string

const (
	BookingByManager BookingType = "manager_booking"
	BookingByRequest BookingType = "patient_request"
)

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

type Appointment struct {
	ID            int64            `json:"id"`
	PatientUserID *int64           `json:"patient_user_id,omitempty"`
	ManagerUserID int64            `json:"manager_user_id"`
	DoctorID      int64            `json:"doctor_id"`
	DoctorName    string           `json:"doctor_name,omitempty"`
	Email         string           `json:"email"`
	Name          string           `json:"name"`
	Gender        string           `json:"gender"`
	Age           *int             `json:"age,omitempty"`
	DayPart       string           `json:"slot"`
	Disease       string           `json:"disease"`
	Date          scheduling.Date  `json:"appointment_date"`
	Time          scheduling.Clock `json:"appointment_time"`
	Department    string           `json:"department"`
	Phone         string           `json:"number"`
	Status        Status           `json:"status"`
	BookingType   BookingType      `json:"booking_type"`
	PaymentStatus PaymentStatus    `json:"payment_status"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func (a Appointment) Slot() scheduling.SlotQuery {
	return scheduling.SlotQuery{DoctorID: a.DoctorID, Date: a.Date, Start: a.Time}
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
	RequestExpired  RequestStatus = "expired"
)

type AppointmentRequest struct {
	ID              int64             `json:"id"`
	PatientUserID   int64             `json:"patient_user_id"`
	PatientName     string            `json:"patient_name,omitempty"`
	PatientEmail    string            `json:"patient_email,omitempty"`
	DoctorID        int64             `json:"doctor_id"`
	DoctorName      string            `json:"doctor_name,omitempty"`
	Department      string            `json:"department,omitempty"`
	PreferredDate   scheduling.Date   `json:"preferred_date"`
	PreferredTime   scheduling.Clock  `json:"preferred_time"`
	AlternateDate   *scheduling.Date  `json:"alternate_date,omitempty"`
	AlternateTime   *scheduling.Clock `json:"alternate_time,omitempty"`
	Disease         string            `json:"disease"`
	Message         string            `json:"message,omitempty"`
	Status          RequestStatus     `json:"status"`
	ManagerResponse string            `json:"manager_response,omitempty"`
	RespondedBy     *int64            `json:"responded_by,omitempty"`
	AppointmentID   *int64            `json:"appointment_id,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	RespondedAt     *time.Time        `json:"responded_at,omitempty"`
}

type AuditEvent struct {
	ID            int64     `json:"id"`
	AppointmentID int64     `json:"appointment_id"`
	UserID        int64     `json:"user_id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Action        string    `json:"action"`
	Details       string    `json:"details,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
