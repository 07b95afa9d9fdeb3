// Package events holds the JSON payloads hospital-service publishes to Kafka.
package events

import "time"

// Topic carries every appointment lifecycle event; the event type travels in
// the event_type header and the key is the appointment id.
const Topic = "hospital.appointments"

const (
	AppointmentBooked      = "appointment.booked.v1"
	AppointmentRescheduled = "appointment.rescheduled.v1"
	AppointmentStatus      = "appointment.status_changed.v1"
	AppointmentCancelled   = "appointment.cancelled.v1"
	AppointmentPaid        = "appointment.paid.v1"
	RequestCreated         = "appointment_request.created.v1"
	RequestApproved        = "appointment_request.approved.v1"
	RequestRejected        = "appointment_request.rejected.v1"
	RequestExpired         = "appointment_request.expired.v1"
)

type Appointment struct {
	AppointmentID int64     `json:"appointment_id"`
	DoctorID      int64     `json:"doctor_id"`
	DoctorName    string    `json:"doctor_name"`
	Department    string    `json:"department"`
	PatientName   string    `json:"patient_name"`
	PatientEmail  string    `json:"patient_email"`
	PatientPhone  string    `json:"patient_phone,omitempty"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Status        string    `json:"status"`
	PreviousDate  string    `json:"previous_date,omitempty"`
	PreviousTime  string    `json:"previous_time,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type Request struct {
	RequestID     int64     `json:"request_id"`
	AppointmentID int64     `json:"appointment_id,omitempty"`
	DoctorID      int64     `json:"doctor_id"`
	DoctorName    string    `json:"doctor_name"`
	PatientName   string    `json:"patient_name"`
	PatientEmail  string    `json:"patient_email"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Status        string    `json:"status"`
	Response      string    `json:"response,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
